package handoff

import (
	"context"
	"sync"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/types"
)

// destroyDuplicateActivations tells each affected silo to deactivate
// the losing side of a registration race. It makes one pass over the
// map with no internal retry loop — a partial failure surfaces as an
// error so the operation executor retries the whole reconciliation,
// which is safe because DeleteActivations on an already-gone
// activation is a no-op on the peer side.
func (m *Manager) destroyDuplicateActivations(ctx context.Context, duplicates map[types.SiloAddress][]types.GrainAddress) error {
	var firstErr error
	var destroyed int
	for silo, list := range duplicates {
		if m.statusOracle.ApproximateStatus(silo) != gossip.StatusActive {
			continue
		}
		err := m.catalog.DeleteActivations(ctx, silo, list, types.DuplicateActivation, "this grain has been activated elsewhere")
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		destroyed += len(list)
	}
	m.metrics.AddDuplicatesDestroyed(destroyed)
	return firstErr
}

type registrationResult struct {
	original types.GrainAddress
	winner   types.GrainAddress
	err      error
}

// acceptExistingRegistrationsAsync re-registers every address still in
// *pending concurrently, then partitions the outcomes three ways: an
// address that won its own registration is done and dropped from the
// retry set; an address that lost is queued for destruction via the
// reconciler; an address whose registration RPC itself failed stays in
// *pending so the executor's retry resends only the unresolved
// remainder. If the reconciler's destruction pass itself fails
// partway, its addresses go back into *pending too, since re-running
// Register against an already-resolved winner is idempotent and gives
// the retry another shot at destroying the loser.
func (m *Manager) acceptExistingRegistrationsAsync(ctx context.Context, pending *[]types.GrainAddress) error {
	if !m.ring.Running() {
		return nil
	}
	list := *pending
	if len(list) == 0 {
		return nil
	}

	results := make([]registrationResult, len(list))
	var wg sync.WaitGroup
	wg.Add(len(list))
	for i, addr := range list {
		go func(i int, addr types.GrainAddress) {
			defer wg.Done()
			winner, err := m.registrar.Register(ctx, addr)
			results[i] = registrationResult{original: addr, winner: winner, err: err}
		}(i, addr)
	}
	wg.Wait()

	duplicates := make(map[types.SiloAddress][]types.GrainAddress)
	var retry []types.GrainAddress
	var firstErr error
	for _, r := range results {
		switch {
		case r.err != nil:
			if firstErr == nil {
				firstErr = r.err
			}
			retry = append(retry, r.original)
		case r.winner != r.original:
			duplicates[r.original.Silo] = append(duplicates[r.original.Silo], r.original)
		}
		// r.winner == r.original: this registration won outright, drop it.
	}
	if len(duplicates) > 0 {
		if err := m.destroyDuplicateActivations(ctx, duplicates); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// destruction is a no-op on an already-gone activation, so it's
			// safe to fold every duplicate back into the retry set rather
			// than track which silo's DeleteActivations call actually failed.
			for _, list := range duplicates {
				retry = append(retry, list...)
			}
		}
	}
	*pending = retry
	return firstErr
}
