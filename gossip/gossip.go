// Package gossip implements a heartbeat-based membership list. It backs
// the concrete SiloStatusOracle this repo wires into the handoff manager
// as an external collaborator; a real runtime could swap in a different
// liveness source without the manager noticing.
package gossip

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pixperk/siloring/types"
)

// MemberEntry represents a silo's membership state as seen by the local silo.
type MemberEntry struct {
	NodeID    types.SiloAddress
	Addr      string
	Heartbeat uint64    // monotonic counter, only the owning silo increments
	Timestamp time.Time // local wall time when we last saw this silo's heartbeat increase
}

// MemberList is a thread-safe gossip membership list.
// Each silo maintains one and merges it with peers during gossip rounds.
type MemberList struct {
	mu       sync.RWMutex
	members  map[types.SiloAddress]*MemberEntry
	selfID   types.SiloAddress
	tFail    time.Duration // if now - timestamp > tFail, silo is considered dead
	tSuspect time.Duration // if now - timestamp > tSuspect, silo is considered merely suspect
}

// NewMemberList creates a membership list with the local silo as the first
// entry. A silo goes Suspect once its heartbeat is stale by half of tFail,
// and Dead once it's stale by the full tFail: the handoff manager treats
// both the same way today (anything short of Active gets a dropped split
// with no retry), but the graduated state lets ApproximateStatuses report
// a silo that's merely running behind separately from one gossip has
// given up on.
func NewMemberList(selfID types.SiloAddress, selfAddr string, tFail time.Duration) *MemberList {
	m := &MemberList{
		members:  make(map[types.SiloAddress]*MemberEntry),
		selfID:   selfID,
		tFail:    tFail,
		tSuspect: tFail / 2,
	}
	m.members[selfID] = &MemberEntry{
		NodeID:    selfID,
		Addr:      selfAddr,
		Heartbeat: 0,
		Timestamp: time.Now(),
	}
	return m
}

// AddSeed adds a seed silo to the membership list.
// Seeds are assumed alive initially; gossip will update their heartbeat.
func (m *MemberList) AddSeed(nodeID types.SiloAddress, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[nodeID]; !exists {
		m.members[nodeID] = &MemberEntry{
			NodeID:    nodeID,
			Addr:      addr,
			Heartbeat: 0,
			Timestamp: time.Now(),
		}
	}
}

// Tick increments this silo's own heartbeat counter.
// Called once per gossip round.
func (m *MemberList) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	self := m.members[m.selfID]
	self.Heartbeat++
	self.Timestamp = time.Now()
}

// Merge integrates a remote silo's membership entries into the local list.
// For each entry: if remote heartbeat > local heartbeat, adopt it and reset timestamp to now.
// New silos are added. Self entry is never overwritten.
func (m *MemberList) Merge(remote []MemberEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, r := range remote {
		if r.NodeID == m.selfID {
			continue
		}
		local, exists := m.members[r.NodeID]
		if !exists {
			m.members[r.NodeID] = &MemberEntry{
				NodeID:    r.NodeID,
				Addr:      r.Addr,
				Heartbeat: r.Heartbeat,
				Timestamp: now,
			}
		} else if r.Heartbeat > local.Heartbeat {
			local.Heartbeat = r.Heartbeat
			local.Addr = r.Addr
			local.Timestamp = now
		}
	}
}

// Entries returns a snapshot of all membership entries for sending to a peer.
func (m *MemberList) Entries() []MemberEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]MemberEntry, 0, len(m.members))
	for _, e := range m.members {
		entries = append(entries, *e)
	}
	return entries
}

// IsAlive reports whether a silo is considered alive.
func (m *MemberList) IsAlive(nodeID types.SiloAddress) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, exists := m.members[nodeID]
	if !exists {
		return false
	}
	return time.Since(e.Timestamp) < m.tFail
}

// Alive returns all members currently considered alive, excluding self.
func (m *MemberList) Alive() []MemberEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var alive []MemberEntry
	for _, e := range m.members {
		if e.NodeID == m.selfID {
			continue
		}
		if time.Since(e.Timestamp) < m.tFail {
			alive = append(alive, *e)
		}
	}
	return alive
}

// RandomPeer picks a random peer (not self) for gossip.
// Includes dead peers so we can detect recoveries.
func (m *MemberList) RandomPeer() (MemberEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]*MemberEntry, 0, len(m.members)-1)
	for _, e := range m.members {
		if e.NodeID == m.selfID {
			continue
		}
		peers = append(peers, e)
	}
	if len(peers) == 0 {
		return MemberEntry{}, false
	}
	return *peers[rand.Intn(len(peers))], true
}
