package handoff

import (
	"context"

	"github.com/pixperk/siloring/storage"
	"github.com/pixperk/siloring/types"
	"go.uber.org/zap"
)

// AcceptHandoffPartition installs an incoming mirrored copy from
// source. A full copy (isFullCopy) replaces whatever we held for that
// source outright; a delta merges into it, creating an empty mirror
// first if none existed yet — which can legitimately happen if a
// delta races ahead of the initial full copy over an unordered
// transport.
func (m *Manager) AcceptHandoffPartition(source types.SiloAddress, snapshot map[types.GrainId]types.GrainInfo, isFullCopy bool) {
	m.do(func() {
		part, exists := m.mirrored[source]
		if !exists {
			if !isFullCopy {
				m.logger.Warn("delta handoff arrived before any full copy, synthesizing an empty mirror",
					zap.String("source", string(source)))
			}
			part = storage.New()
			m.mirrored[source] = part
		}
		if isFullCopy {
			part.Set(snapshot)
		} else {
			part.Update(snapshot)
		}
		m.metrics.SetMirroredPartitions(len(m.mirrored))
	})
}

// RemoveHandoffPartition drops whatever we mirror for source. Called
// when source tells us we're no longer one of its followers.
func (m *Manager) RemoveHandoffPartition(source types.SiloAddress) {
	m.do(func() {
		if _, ok := m.mirrored[source]; !ok {
			return
		}
		delete(m.mirrored, source)
		m.metrics.SetMirroredPartitions(len(m.mirrored))
	})
}

// AcceptExistingRegistrations queues the re-registration of a batch of
// activations whose ownership may have shifted underneath them (a
// takeover mid-flight). The actual work happens asynchronously in
// acceptExistingRegistrationsAsync so the caller isn't blocked on a
// wave of registration RPCs. The pending slice is captured by pointer
// so that as attempts succeed or surface duplicates, the retry set
// shrinks instead of resending the whole original batch.
func (m *Manager) AcceptExistingRegistrations(list []types.GrainAddress) {
	if len(list) == 0 {
		return
	}
	pending := append([]types.GrainAddress(nil), list...)
	m.do(func() {
		m.enqueueOp("AcceptExistingRegistrations", func(ctx context.Context) error {
			return m.acceptExistingRegistrationsAsync(ctx, &pending)
		})
	})
}
