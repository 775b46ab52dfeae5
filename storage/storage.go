// Package storage implements the directory partition store: the map
// from grain id to its directory record that every silo, mirror,
// and in-flight split carries around. It is the same sibling-resolution
// idea as a dynamo-style KV store's per-key value list, generalized to
// grain registrations and to the split/merge operations a ring
// reconfiguration needs.
package storage

import (
	"crypto/md5"
	"fmt"
	"sort"
	"sync"

	"github.com/pixperk/siloring/merkle"
	"github.com/pixperk/siloring/types"
)

// Partition maps grain ids to their directory record. All methods are
// safe for concurrent use, though the handoff manager in practice only
// ever mutates a given Partition from its own single-owner goroutine.
type Partition struct {
	mu   sync.RWMutex
	data map[types.GrainId]types.GrainInfo
}

// New returns an empty partition.
func New() *Partition {
	return &Partition{data: make(map[types.GrainId]types.GrainInfo)}
}

// Set replaces all entries with the given map. Used on full-copy handoff.
func (p *Partition) Set(m map[types.GrainId]types.GrainInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make(map[types.GrainId]types.GrainInfo, len(m))
	for k, v := range m {
		cp[k] = v.Copy()
	}
	p.data = cp
}

// Update merges entries from m into this partition; each incoming record
// supersedes the existing one for its key. Used on delta handoff.
func (p *Partition) Update(m map[types.GrainId]types.GrainInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range m {
		p.data[k] = v.Copy()
	}
}

// Get returns the record for id, if present.
func (p *Partition) Get(id types.GrainId) (types.GrainInfo, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.data[id]
	return info, ok
}

// Remove deletes the entry for id, if present. Idempotent.
func (p *Partition) Remove(id types.GrainId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, id)
}

// Len reports the number of grain ids currently held, for metrics.
func (p *Partition) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// Snapshot returns a deep copy of every entry, keyed by grain id. Used
// to build a full-copy handoff payload or answer an anti-entropy
// SyncKeys request.
func (p *Partition) Snapshot() map[types.GrainId]types.GrainInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[types.GrainId]types.GrainInfo, len(p.data))
	for k, v := range p.data {
		out[k] = v.Copy()
	}
	return out
}

// KeyHashes returns one merkle leaf per grain id, hashing the id
// together with its address list and clock so a divergent registration
// is caught even when the set of grain ids held on both sides matches.
func (p *Partition) KeyHashes() []merkle.KeyHash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]merkle.KeyHash, 0, len(p.data))
	for id, info := range p.data {
		out = append(out, merkle.KeyHash{Key: id, Hash: hashInfo(info)})
	}
	return out
}

func hashInfo(info types.GrainInfo) [16]byte {
	addrs := append([]types.GrainAddress(nil), info.Addresses...)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })

	nodes := make([]string, 0, len(info.Clock))
	for n := range info.Clock {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	buf := make([]byte, 0, 64)
	for _, a := range addrs {
		buf = append(buf, a.String()...)
	}
	for _, n := range nodes {
		buf = append(buf, fmt.Sprintf("%s:%d;", n, info.Clock[n])...)
	}
	return md5.Sum(buf)
}

// ToList returns the single-activation subset as a flat list of
// addresses. Order is unspecified.
func (p *Partition) ToList() []types.GrainAddress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.GrainAddress, 0, len(p.data))
	for _, info := range p.data {
		if len(info.Addresses) == 1 {
			out = append(out, info.Addresses[0])
		}
	}
	return out
}

// Split returns a new partition holding the entries whose grain id
// satisfies pred. If modifyOriginal is true, those entries are removed
// from the source; otherwise the source is left untouched (used when
// building a read-only copy-split of a mirrored partition).
func (p *Partition) Split(pred func(types.GrainId) bool, modifyOriginal bool) *Partition {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := New()
	for id, info := range p.data {
		if !pred(id) {
			continue
		}
		out.data[id] = info.Copy()
		if modifyOriginal {
			delete(p.data, id)
		}
	}
	return out
}

// Merge incorporates other into this partition. For a grain id present
// on both sides, the winner is chosen by the registration clock: the
// descendant wins outright; a genuine conflict (neither descends the
// other) falls back to VClock.Rank, and a further tie falls back to the
// losing address's silo id sorting lower — see vclock.VClock.Rank and
// DESIGN.md for the reasoning behind this tie-break order.
//
// The loser's addresses are returned grouped by the silo hosting the
// losing activation; the caller is responsible for destroying them.
func (p *Partition) Merge(other *Partition) map[types.SiloAddress][]types.GrainAddress {
	other.mu.RLock()
	incoming := make(map[types.GrainId]types.GrainInfo, len(other.data))
	for k, v := range other.data {
		incoming[k] = v.Copy()
	}
	other.mu.RUnlock()

	duplicates := make(map[types.SiloAddress][]types.GrainAddress)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id, incomingInfo := range incoming {
		existingInfo, exists := p.data[id]
		if !exists {
			p.data[id] = incomingInfo
			continue
		}

		winner, loser := resolve(existingInfo, incomingInfo)
		p.data[id] = winner
		if loser == nil {
			continue
		}
		for _, addr := range loser.Addresses {
			duplicates[addr.Silo] = append(duplicates[addr.Silo], addr)
		}
	}
	return duplicates
}

// resolve picks the winning GrainInfo between two competing records for
// the same grain id, returning the loser (nil if there was no real
// conflict, i.e. one clock strictly descends the other and the "loser"
// is just a stale ancestor with no distinct address to reconcile).
func resolve(a, b types.GrainInfo) (winner types.GrainInfo, loser *types.GrainInfo) {
	aDescends := a.Clock.Descends(b.Clock)
	bDescends := b.Clock.Descends(a.Clock)

	switch {
	case aDescends && bDescends:
		// identical causal history: not a duplicate, keep either.
		return a, nil
	case aDescends:
		return a, nil
	case bDescends:
		return b, nil
	}

	// genuine conflict: both silos independently believe they won the
	// registration race. Higher rank wins; ties broken by silo id.
	if a.Clock.Rank() > b.Clock.Rank() {
		return a, &b
	}
	if b.Clock.Rank() > a.Clock.Rank() {
		return b, &a
	}
	if len(a.Addresses) > 0 && len(b.Addresses) > 0 && a.Addresses[0].Silo > b.Addresses[0].Silo {
		return a, &b
	}
	return b, &a
}
