package gossip

import (
	"time"

	"github.com/pixperk/siloring/types"
)

// SiloStatus is the coarse liveness view the handoff manager acts on
// through a SiloStatusOracle's approximate status query.
type SiloStatus int

const (
	StatusActive SiloStatus = iota
	StatusSuspect
	StatusDead
)

func (s SiloStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusSuspect:
		return "Suspect"
	default:
		return "Dead"
	}
}

// StatusOracle is the surface the handoff manager consumes: a coarse,
// eventually-consistent liveness view, never a source of truth for
// membership decisions.
type StatusOracle interface {
	ApproximateStatus(s types.SiloAddress) SiloStatus
	ApproximateStatuses(activeOnly bool) map[types.SiloAddress]SiloStatus
}

// ApproximateStatus reports a silo as Active while its heartbeat is
// fresher than tSuspect, Suspect once it's gone stale past tSuspect but
// not yet past tFail, and Dead beyond that (or if the silo is unknown).
func (m *MemberList) ApproximateStatus(s types.SiloAddress) SiloStatus {
	m.mu.RLock()
	e, exists := m.members[s]
	m.mu.RUnlock()
	if !exists {
		return StatusDead
	}

	age := time.Since(e.Timestamp)
	switch {
	case age < m.tSuspect:
		return StatusActive
	case age < m.tFail:
		return StatusSuspect
	default:
		return StatusDead
	}
}

// ApproximateStatuses returns every known silo's status. When activeOnly
// is set, anything short of Active (Suspect or Dead) is omitted entirely.
func (m *MemberList) ApproximateStatuses(activeOnly bool) map[types.SiloAddress]SiloStatus {
	m.mu.RLock()
	ids := make([]types.SiloAddress, 0, len(m.members))
	for id := range m.members {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make(map[types.SiloAddress]SiloStatus, len(ids))
	for _, id := range ids {
		status := m.ApproximateStatus(id)
		if activeOnly && status != StatusActive {
			continue
		}
		out[id] = status
	}
	return out
}
