// Package ring implements the consistent hash ring the directory handoff
// manager consumes as a read-only collaborator: it answers "who owns this
// grain" and "who are my neighbors" queries. It is mutated externally by
// membership events (AddSilo/RemoveSilo) that the manager only reacts to.
package ring

import (
	"crypto/md5"
	"encoding/binary"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"github.com/pixperk/siloring/types"
)

// Ring is the surface the handoff manager consumes: its own address,
// whether it is still serving, and predecessor/successor/owner
// queries. It never mutates ring membership itself; that is driven
// externally through AddSilo/RemoveSilo on the concrete HashRing.
type Ring interface {
	MyAddress() types.SiloAddress
	Running() bool
	FindPredecessors(s types.SiloAddress, k int) []types.SiloAddress
	FindSuccessors(s types.SiloAddress, k int) []types.SiloAddress
	CalculateOwner(id types.GrainId) types.SiloAddress
}

// HashRing is a Chord-style ring: every silo hashes to one token, and a
// grain id is owned by whichever token immediately succeeds the grain
// id's own hash, walking clockwise.
type HashRing struct {
	mu      sync.RWMutex
	self    types.SiloAddress
	running bool
	tokens  *treemap.Map // uint64 hash -> types.SiloAddress
}

// New creates a ring seeded with the given members; self must be one of
// them.
func New(self types.SiloAddress, members []types.SiloAddress) *HashRing {
	r := &HashRing{
		self:    self,
		running: true,
		tokens:  treemap.NewWith(utils.UInt64Comparator),
	}
	for _, m := range members {
		r.tokens.Put(hashOf(string(m)), m)
	}
	return r
}

func hashOf(s string) uint64 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint64(sum[:8])
}

func (r *HashRing) MyAddress() types.SiloAddress { return r.self }

func (r *HashRing) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Stop marks the ring as no longer serving; queued operations check this
// on entry and exit early once it flips.
func (r *HashRing) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

// AddSilo admits a new member. Idempotent.
func (r *HashRing) AddSilo(s types.SiloAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens.Put(hashOf(string(s)), s)
}

// RemoveSilo evicts a member. Idempotent.
func (r *HashRing) RemoveSilo(s types.SiloAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens.Remove(hashOf(string(s)))
}

// Members returns a snapshot of the current membership, in ring order.
func (r *HashRing) Members() []types.SiloAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SiloAddress, 0, r.tokens.Size())
	for _, v := range r.tokens.Values() {
		out = append(out, v.(types.SiloAddress))
	}
	return out
}

// CalculateOwner returns the silo whose token immediately succeeds the
// grain id's hash, wrapping around to the smallest token past the end.
func (r *HashRing) CalculateOwner(id types.GrainId) types.SiloAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.tokens.Empty() {
		return ""
	}
	h := hashOf(string(id))
	keys := r.tokens.Keys()
	idx := ceilingIndex(keys, h)
	if idx == len(keys) {
		idx = 0
	}
	v, _ := r.tokens.Get(keys[idx])
	return v.(types.SiloAddress)
}

// FindSuccessors returns up to k distinct silos walking clockwise from s,
// not including s itself. s need not currently be a member — a removed
// silo's vacated ring position is still a valid query point, since a
// leave reaction may query FindPredecessors(R, 1) after R has already
// been removed from the ring.
func (r *HashRing) FindSuccessors(s types.SiloAddress, k int) []types.SiloAddress {
	return r.walk(s, k, true)
}

// FindPredecessors returns up to k distinct silos walking counter-clockwise
// from s, not including s itself.
func (r *HashRing) FindPredecessors(s types.SiloAddress, k int) []types.SiloAddress {
	return r.walk(s, k, false)
}

func (r *HashRing) walk(s types.SiloAddress, k int, forward bool) []types.SiloAddress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.tokens.Size()
	if n == 0 || k <= 0 {
		return nil
	}

	keys := r.tokens.Keys() // ascending uint64
	h := hashOf(string(s))
	idx := ceilingIndex(keys, h)
	isMember := idx < len(keys) && keys[idx].(uint64) == h

	var start int
	if forward {
		if isMember {
			start = idx + 1
		} else {
			start = idx
		}
	} else {
		start = idx - 1
	}

	out := make([]types.SiloAddress, 0, k)
	for i := 0; i < n && len(out) < k; i++ {
		var pos int
		if forward {
			pos = ((start+i)%n + n) % n
		} else {
			pos = ((start-i)%n + n) % n
		}
		v, _ := r.tokens.Get(keys[pos])
		addr := v.(types.SiloAddress)
		if addr == s {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// ceilingIndex returns the index of the first key >= h, or len(keys) if
// none exists (i.e. h is past the largest token).
func ceilingIndex(keys []interface{}, h uint64) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if keys[mid].(uint64) < h {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
