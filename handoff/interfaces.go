package handoff

import (
	"context"

	"github.com/pixperk/siloring/gossip"
	"github.com/pixperk/siloring/ring"
	"github.com/pixperk/siloring/types"
)

// RemoteDirectory is the RPC surface the manager drives on other
// silos: pushing a split partition to a new owner, and telling an old
// follower it no longer needs to mirror us.
type RemoteDirectory interface {
	AcceptSplitPartition(ctx context.Context, target types.SiloAddress, list []types.GrainAddress) error
	RemoveHandoffPartition(ctx context.Context, target types.SiloAddress, source types.SiloAddress) error
}

// Catalog is the grain-activation surface the duplicate reconciler
// drives: telling a silo to deactivate the losing side of a
// registration race.
type Catalog interface {
	DeleteActivations(ctx context.Context, target types.SiloAddress, list []types.GrainAddress, reason types.DeactivationReason, message string) error
}

// Registrar is the single-activation registration entry point of the
// wider grain directory (out of scope here per its own concurrency
// rules): given an address a caller believes should be active, it
// returns the winning address after resolving any race.
type Registrar interface {
	Register(ctx context.Context, addr types.GrainAddress) (types.GrainAddress, error)
}

// Scheduler runs a task in the background without waiting for it,
// used for one-shot fire-and-forget RPCs that carry no retry policy.
type Scheduler interface {
	QueueTask(action func(context.Context))
}

// goScheduler is the default Scheduler: spawn a goroutine.
type goScheduler struct{}

func (goScheduler) QueueTask(action func(context.Context)) {
	go action(context.Background())
}

// Ring and StatusOracle are narrowed re-exports of the collaborators
// the manager actually calls, so callers can pass a *ring.HashRing and
// a *gossip.MemberList directly.
type Ring = ring.Ring
type StatusOracle = gossip.StatusOracle
