package handoff

import (
	"context"
	"sync"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/types"
)

// fakeStatusOracle reports every silo as active unless explicitly
// marked dead, which is all the manager needs from a StatusOracle.
type fakeStatusOracle struct {
	mu   sync.Mutex
	dead map[types.SiloAddress]bool
}

func newFakeStatusOracle() *fakeStatusOracle {
	return &fakeStatusOracle{dead: make(map[types.SiloAddress]bool)}
}

func (f *fakeStatusOracle) markDead(s types.SiloAddress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[s] = true
}

func (f *fakeStatusOracle) ApproximateStatus(s types.SiloAddress) gossip.SiloStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[s] {
		return gossip.StatusDead
	}
	return gossip.StatusActive
}

func (f *fakeStatusOracle) ApproximateStatuses(activeOnly bool) map[types.SiloAddress]gossip.SiloStatus {
	return nil
}

// fakeRemote records AcceptSplitPartition/RemoveHandoffPartition calls
// and can be configured to fail a fixed number of times before it
// starts succeeding, to exercise the executor's retry path.
type fakeRemote struct {
	mu sync.Mutex

	failSplitTimes int
	splitCalls     []splitCall
	removeCalls    []removeCall

	splitErr error // returned on every call once failSplitTimes is exhausted, if set
}

type splitCall struct {
	target types.SiloAddress
	list   []types.GrainAddress
}

type removeCall struct {
	target types.SiloAddress
	source types.SiloAddress
}

func (f *fakeRemote) AcceptSplitPartition(ctx context.Context, target types.SiloAddress, list []types.GrainAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.splitCalls = append(f.splitCalls, splitCall{target: target, list: append([]types.GrainAddress(nil), list...)})
	if f.failSplitTimes > 0 {
		f.failSplitTimes--
		return errRetryable
	}
	return f.splitErr
}

func (f *fakeRemote) RemoveHandoffPartition(ctx context.Context, target types.SiloAddress, source types.SiloAddress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, removeCall{target: target, source: source})
	return nil
}

func (f *fakeRemote) splitCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.splitCalls)
}

func (f *fakeRemote) lastSplit() splitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.splitCalls[len(f.splitCalls)-1]
}

func (f *fakeRemote) removeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removeCalls)
}

// fakeCatalog records DeleteActivations calls. failOnce, if set for a
// target silo, fails that silo's very next call and then clears itself,
// letting a test simulate one transient RPC failure.
type fakeCatalog struct {
	mu       sync.Mutex
	calls    []deleteCall
	failOnce map[types.SiloAddress]bool
}

type deleteCall struct {
	target types.SiloAddress
	list   []types.GrainAddress
	reason types.DeactivationReason
}

func (f *fakeCatalog) DeleteActivations(ctx context.Context, target types.SiloAddress, list []types.GrainAddress, reason types.DeactivationReason, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce[target] {
		f.failOnce[target] = false
		return errRetryable
	}
	f.calls = append(f.calls, deleteCall{target: target, list: append([]types.GrainAddress(nil), list...), reason: reason})
	return nil
}

func (f *fakeCatalog) failNextFor(target types.SiloAddress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce == nil {
		f.failOnce = make(map[types.SiloAddress]bool)
	}
	f.failOnce[target] = true
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCatalog) allDeleted() []types.GrainAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.GrainAddress
	for _, c := range f.calls {
		out = append(out, c.list...)
	}
	return out
}

// fakeRegistrar resolves each address to a preconfigured winner (or
// error), letting a test simulate a registration race's outcome.
type fakeRegistrar struct {
	mu       sync.Mutex
	winners  map[types.GrainId]types.GrainAddress
	failOnce map[types.GrainId]bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		winners:  make(map[types.GrainId]types.GrainAddress),
		failOnce: make(map[types.GrainId]bool),
	}
}

func (f *fakeRegistrar) Register(ctx context.Context, addr types.GrainAddress) (types.GrainAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOnce[addr.GrainId] {
		f.failOnce[addr.GrainId] = false
		return types.GrainAddress{}, errRetryable
	}
	if winner, ok := f.winners[addr.GrainId]; ok {
		return winner, nil
	}
	return addr, nil
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errRetryable = sentinelErr("simulated transient failure")
