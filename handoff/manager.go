// Package handoff implements the directory partition handoff manager:
// the component that keeps each silo's grain directory partition
// correct as silos join and leave the consistent-hash ring.
//
// A single background goroutine owns all of the manager's mutable
// state (mirrored partitions, the follower set, the pending operation
// queue). Every mutation is a closure posted to that goroutine's
// mailbox and run to completion before the caller's method returns,
// which gives the same "one mutation at a time, no reader ever sees a
// half-applied change" guarantee a mutex would, without needing one:
// nothing here ever holds a lock across an RPC. Long-running work
// (splitting a partition to a peer, destroying duplicate activations)
// is handed to a FIFO of named operations that a second, single-
// consumer goroutine drains with bounded retry.
package handoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/metrics"
	"github.com/pixperk/siloring/storage"
	"github.com/pixperk/siloring/types"
	"go.uber.org/zap"
)

// mirrorDepth is how many of our own successors we track when a silo
// joins: the immediate successor (who takes over part of our
// partition directly) and the next one out (who may need to receive a
// re-split copy of a partition we mirror on their behalf).
const mirrorDepth = 2

// Config bundles the manager's collaborators and tunables. Ring,
// StatusOracle, Remote and Catalog are required; the rest have usable
// zero values.
type Config struct {
	Self         types.SiloAddress
	Ring         Ring
	StatusOracle StatusOracle
	Remote       RemoteDirectory
	Catalog      Catalog
	Registrar    Registrar
	Scheduler    Scheduler

	RetryDelay time.Duration
	MaxDequeue int

	Logger  *zap.Logger
	Metrics *metrics.Handoff
}

// Manager is the directory partition handoff manager for one silo.
type Manager struct {
	self         types.SiloAddress
	ring         Ring
	statusOracle StatusOracle
	remote       RemoteDirectory
	catalog      Catalog
	registrar    Registrar
	scheduler    Scheduler

	retryDelay time.Duration
	maxDequeue int

	logger  *zap.Logger
	metrics *metrics.Handoff

	// localPartition is this silo's authoritative slice of the grain
	// directory. It carries its own lock, so background operations may
	// touch it directly without going through the mailbox.
	localPartition *storage.Partition

	mailbox chan func()
	stopCh  chan struct{}
	stopped sync.Once

	// Everything below is only ever touched from inside the mailbox
	// goroutine (run) or, for pendingOps/dequeueCount, via the
	// enqueue/peek/report helpers in queue.go that hop through it.
	mirrored     map[types.SiloAddress]*storage.Partition
	followers    []types.SiloAddress
	pendingOps   []operation
	dequeueCount int
}

// New starts a manager's mailbox goroutine and returns it ready to
// receive events. Callers own localPartition's lifetime; the manager
// only reads and mutates it.
func New(cfg Config, localPartition *storage.Partition) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.MaxDequeue <= 0 {
		cfg.MaxDequeue = 2
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = goScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	m := &Manager{
		self:           cfg.Self,
		ring:           cfg.Ring,
		statusOracle:   cfg.StatusOracle,
		remote:         cfg.Remote,
		catalog:        cfg.Catalog,
		registrar:      cfg.Registrar,
		scheduler:      cfg.Scheduler,
		retryDelay:     cfg.RetryDelay,
		maxDequeue:     cfg.MaxDequeue,
		logger:         cfg.Logger.With(zap.String("silo", string(cfg.Self))),
		metrics:        cfg.Metrics,
		localPartition: localPartition,
		mailbox:        make(chan func()),
		stopCh:         make(chan struct{}),
		mirrored:       make(map[types.SiloAddress]*storage.Partition),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	for {
		select {
		case fn := <-m.mailbox:
			fn()
		case <-m.stopCh:
			return
		}
	}
}

// Stop shuts down the mailbox goroutine. Any operation executor still
// draining the queue notices on its next iteration and exits.
func (m *Manager) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// do posts fn to the mailbox and blocks until it has run, giving the
// caller a synchronous view of an otherwise actor-owned mutation. Must
// never be called from inside a closure already running on the
// mailbox goroutine — that would deadlock.
func (m *Manager) do(fn func()) {
	done := make(chan struct{})
	select {
	case m.mailbox <- func() { fn(); close(done) }:
	case <-m.stopCh:
		return
	}
	select {
	case <-done:
	case <-m.stopCh:
	}
}

// MirroredCount reports how many other silos' partitions this silo
// currently mirrors (kept for silos among its watched successors).
func (m *Manager) MirroredCount() int {
	var n int
	m.do(func() { n = len(m.mirrored) })
	return n
}

// Mirrored returns the mirrored partition held for source, if any. The
// returned pointer is the live partition the manager keeps, not a copy.
func (m *Manager) Mirrored(source types.SiloAddress) (*storage.Partition, bool) {
	var part *storage.Partition
	var ok bool
	m.do(func() { part, ok = m.mirrored[source] })
	return part, ok
}

// AddFollower registers a successor as now mirroring this silo. The
// ring/registration path outside this package is responsible for
// deciding when that's true; the manager only tracks the set and tears
// it down on ResetFollowers.
func (m *Manager) AddFollower(f types.SiloAddress) {
	m.do(func() {
		for _, existing := range m.followers {
			if existing == f {
				return
			}
		}
		m.followers = append(m.followers, f)
		m.metrics.SetFollowers(len(m.followers))
	})
}

// Followers returns a snapshot of the current follower set.
func (m *Manager) Followers() []types.SiloAddress {
	var out []types.SiloAddress
	m.do(func() { out = append(out, m.followers...) })
	return out
}

// ProcessSiloAddEvent runs the join-side reaction described for a new
// silo A: resetting followers, splitting off the slice of our
// partition A now owns, and re-splitting a mirrored predecessor copy
// when A landed further out in our mirror depth.
func (m *Manager) ProcessSiloAddEvent(a types.SiloAddress) {
	m.do(func() { m.processSiloAdd(a) })
}

func (m *Manager) processSiloAdd(a types.SiloAddress) {
	m.resetFollowers()

	successors := m.ring.FindSuccessors(m.self, mirrorDepth)
	var found bool
	for _, s := range successors {
		if s == a {
			found = true
			break
		}
	}
	if !found {
		return
	}

	if len(successors) > 0 && successors[0] == a {
		movedToA := func(g types.GrainId) bool { return m.ring.CalculateOwner(g) != m.self }
		split := m.localPartition.Split(movedToA, false)
		list := split.ToList()
		m.enqueueOp(fmt.Sprintf("ProcessAddedSilo(%s)", a), func(ctx context.Context) error {
			return m.processAddedSiloAsync(ctx, a, list)
		})
	} else {
		preds := m.ring.FindPredecessors(a, 1)
		if len(preds) == 0 {
			return
		}
		p := preds[0]
		entry, ok := m.mirrored[p]
		if !ok {
			m.logger.Warn("silo added between us and a predecessor we don't mirror, skipping re-split",
				zap.String("predecessor", string(p)), zap.String("added", string(a)))
		} else {
			movedToA := func(g types.GrainId) bool { return m.ring.CalculateOwner(g) != p }
			m.mirrored[a] = entry.Split(movedToA, true)
		}
	}

	m.evictStaleMirror(successors)
	m.metrics.SetMirroredPartitions(len(m.mirrored))
}

// evictStaleMirror drops at most one mirrored copy whose source is no
// longer among our watched successors, keeping the mirror set bounded
// to what a join event could plausibly still need.
func (m *Manager) evictStaleMirror(successors []types.SiloAddress) {
	watched := make(map[types.SiloAddress]bool, len(successors))
	for _, s := range successors {
		watched[s] = true
	}
	for source := range m.mirrored {
		if !watched[source] {
			delete(m.mirrored, source)
			return
		}
	}
}

func (m *Manager) processAddedSiloAsync(ctx context.Context, a types.SiloAddress, list []types.GrainAddress) error {
	if !m.ring.Running() {
		return nil
	}
	if m.statusOracle.ApproximateStatus(a) != gossip.StatusActive {
		m.logger.Warn("added silo no longer active, dropping split with no retry", zap.String("silo", string(a)))
		return nil
	}
	if err := m.remote.AcceptSplitPartition(ctx, a, list); err != nil {
		return err
	}
	for _, addr := range list {
		m.localPartition.Remove(addr.GrainId)
	}
	return nil
}

// ProcessSiloRemoveEvent runs the leave-side reaction described for a
// departed silo R: resetting followers, folding whatever we mirrored
// for R into its predecessor's partition (ours, if we are that
// predecessor), and queuing destruction of any duplicate activations
// the merge surfaced.
func (m *Manager) ProcessSiloRemoveEvent(r types.SiloAddress) {
	m.do(func() { m.processSiloRemove(r) })
}

func (m *Manager) processSiloRemove(r types.SiloAddress) {
	m.resetFollowers()

	partition, ok := m.mirrored[r]
	if !ok {
		return
	}
	delete(m.mirrored, r)
	m.metrics.SetMirroredPartitions(len(m.mirrored))

	preds := m.ring.FindPredecessors(r, 1)
	target := m.self
	if len(preds) > 0 {
		target = preds[0]
	}

	var duplicates map[types.SiloAddress][]types.GrainAddress
	if target == m.self {
		duplicates = m.localPartition.Merge(partition)
	} else {
		into, exists := m.mirrored[target]
		if !exists {
			into = storage.New()
			m.mirrored[target] = into
			m.metrics.SetMirroredPartitions(len(m.mirrored))
		}
		duplicates = into.Merge(partition)
	}

	if len(duplicates) == 0 {
		return
	}
	m.enqueueOp(fmt.Sprintf("DestroyDuplicates(%s)", r), func(ctx context.Context) error {
		return m.destroyDuplicateActivations(ctx, duplicates)
	})
}

// resetFollowers tears down every tracked follower, scheduling a
// best-effort, non-retried RemoveHandoffPartition for each. Called
// with mutation of m.followers already serialized by the mailbox.
func (m *Manager) resetFollowers() {
	snapshot := append([]types.SiloAddress(nil), m.followers...)
	for _, f := range snapshot {
		m.removeOldFollower(f)
	}
}

func (m *Manager) removeOldFollower(f types.SiloAddress) {
	m.followers = removeAddress(m.followers, f)
	m.metrics.SetFollowers(len(m.followers))

	target := f
	self := m.self
	remote := m.remote
	logger := m.logger
	m.scheduler.QueueTask(func(ctx context.Context) {
		if err := remote.RemoveHandoffPartition(ctx, target, self); err != nil {
			logger.Debug("fire-and-forget RemoveHandoffPartition failed, not retried",
				zap.String("follower", string(target)), zap.Error(err))
		}
	})
}

func removeAddress(list []types.SiloAddress, target types.SiloAddress) []types.SiloAddress {
	out := list[:0]
	for _, s := range list {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

