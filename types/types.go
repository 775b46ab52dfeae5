// Package types defines the identities and records the directory partition
// handoff manager operates on: grains, silos, and the activation addresses
// that a partition maps grain identities to.
package types

import (
	"fmt"

	"github.com/pixperk/siloring/vclock"
)

// GrainId is the opaque, totally-ordered identity of a virtual actor.
// It is hashable and comparable so it can key a Partition map and be
// positioned on the consistent hash ring.
type GrainId string

// SiloAddress is the opaque identity of a peer node on the ring. Distinct
// type from GrainId even though both are strings underneath, so the two
// id spaces can never be confused at a call site.
type SiloAddress string

func (s SiloAddress) String() string { return string(s) }

// ActivationId distinguishes successive activations of the same grain.
type ActivationId string

// GrainAddress is a single registered activation: which grain, on which
// silo, under which activation id. Equality is on the full tuple.
type GrainAddress struct {
	GrainId      GrainId
	Silo         SiloAddress
	ActivationId ActivationId
}

func (a GrainAddress) String() string {
	return fmt.Sprintf("%s@%s/%s", a.GrainId, a.Silo, a.ActivationId)
}

// GrainInfo is the partition-local record for a GrainId: the activation(s)
// registered for it, plus the registration clock used to break ties when
// two silos independently believe they hold the winning activation.
//
// Single-activation grains (the only mode this manager reconciles
// duplicates for) carry exactly one Address.
type GrainInfo struct {
	Addresses []GrainAddress
	Clock     vclock.VClock
}

// Address returns the single registered address for a single-activation
// grain: the first entry of Addresses. Panics if there are none; with
// more than one, the rest are ignored. Callers only use it on GrainInfo
// they know is single-activation.
func (g GrainInfo) Address() GrainAddress {
	return g.Addresses[0]
}

// Copy returns a deep-enough copy for handing across a partition boundary
// (split/merge) without aliasing the clock map.
func (g GrainInfo) Copy() GrainInfo {
	addrs := make([]GrainAddress, len(g.Addresses))
	copy(addrs, g.Addresses)
	return GrainInfo{Addresses: addrs, Clock: g.Clock.Copy()}
}

// DeactivationReason is passed to the catalog when destroying a losing
// activation.
type DeactivationReason int

const (
	// DuplicateActivation marks an activation destroyed because another
	// silo's registration for the same grain won the race.
	DuplicateActivation DeactivationReason = iota
)

func (r DeactivationReason) String() string {
	switch r {
	case DuplicateActivation:
		return "DuplicateActivation"
	default:
		return "Unknown"
	}
}
