package storage

import (
	"testing"

	"github.com/pixperk/siloring/types"
	"github.com/pixperk/siloring/vclock"
)

func info(silo, act string, id types.GrainId, incs ...string) types.GrainInfo {
	c := vclock.NewVClock()
	for _, n := range incs {
		c.Increment(n)
	}
	return types.GrainInfo{
		Addresses: []types.GrainAddress{{GrainId: id, Silo: types.SiloAddress(silo), ActivationId: types.ActivationId(act)}},
		Clock:     c,
	}
}

func TestGetMissing(t *testing.T) {
	p := New()
	_, ok := p.Get("nope")
	if ok {
		t.Fatal("expected missing key")
	}
}

func TestSetReplacesAll(t *testing.T) {
	p := New()
	p.Update(map[types.GrainId]types.GrainInfo{"g1": info("s1", "a1", "g1", "s1")})

	p.Set(map[types.GrainId]types.GrainInfo{"g2": info("s2", "a2", "g2", "s2")})

	if _, ok := p.Get("g1"); ok {
		t.Fatal("expected g1 to be gone after Set")
	}
	if _, ok := p.Get("g2"); !ok {
		t.Fatal("expected g2 to be present after Set")
	}
}

func TestUpdateMergesWithoutClearing(t *testing.T) {
	p := New()
	p.Update(map[types.GrainId]types.GrainInfo{"g1": info("s1", "a1", "g1", "s1")})
	p.Update(map[types.GrainId]types.GrainInfo{"g2": info("s2", "a2", "g2", "s2")})

	if _, ok := p.Get("g1"); !ok {
		t.Fatal("expected g1 to survive a delta update")
	}
	if _, ok := p.Get("g2"); !ok {
		t.Fatal("expected g2 from the delta")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	p := New()
	p.Remove("nope") // must not panic
	p.Update(map[types.GrainId]types.GrainInfo{"g1": info("s1", "a1", "g1", "s1")})
	p.Remove("g1")
	p.Remove("g1")
	if _, ok := p.Get("g1"); ok {
		t.Fatal("expected g1 removed")
	}
}

func TestToListReturnsSingleActivationSubset(t *testing.T) {
	p := New()
	p.Update(map[types.GrainId]types.GrainInfo{
		"g1": info("s1", "a1", "g1", "s1"),
		"g2": info("s1", "a2", "g2", "s1"),
	})
	list := p.ToList()
	if len(list) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(list))
	}
}

func TestSplitNonDestructive(t *testing.T) {
	p := New()
	p.Update(map[types.GrainId]types.GrainInfo{
		"g1": info("s1", "a1", "g1", "s1"),
		"g2": info("s1", "a2", "g2", "s1"),
	})

	part := p.Split(func(id types.GrainId) bool { return id == "g1" }, false)
	if part.Len() != 1 {
		t.Fatalf("expected split partition to have 1 entry, got %d", part.Len())
	}
	if p.Len() != 2 {
		t.Fatal("split without modifyOriginal must not mutate the source")
	}
}

func TestSplitDestructive(t *testing.T) {
	p := New()
	p.Update(map[types.GrainId]types.GrainInfo{
		"g1": info("s1", "a1", "g1", "s1"),
		"g2": info("s1", "a2", "g2", "s1"),
	})

	part := p.Split(func(id types.GrainId) bool { return id == "g1" }, true)
	if part.Len() != 1 {
		t.Fatalf("expected split partition to have 1 entry, got %d", part.Len())
	}
	if p.Len() != 1 {
		t.Fatalf("expected source to shrink to 1 entry, got %d", p.Len())
	}
	if _, ok := p.Get("g1"); ok {
		t.Fatal("expected g1 removed from source after destructive split")
	}
}

func TestMergeNoConflictAdoptsIncoming(t *testing.T) {
	a := New()
	b := New()
	b.Update(map[types.GrainId]types.GrainInfo{"g1": info("s2", "a1", "g1", "s2")})

	dups := a.Merge(b)
	if len(dups) != 0 {
		t.Fatalf("expected no duplicates, got %v", dups)
	}
	if _, ok := a.Get("g1"); !ok {
		t.Fatal("expected g1 to be adopted from the merged-in partition")
	}
}

func TestMergeDescendantWinsWithoutDuplicate(t *testing.T) {
	a := New()
	b := New()

	c1 := vclock.NewVClock()
	c1.Increment("s1")
	a.data["g1"] = types.GrainInfo{
		Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s1", ActivationId: "a1"}},
		Clock:     c1,
	}

	c2 := c1.Copy()
	c2.Increment("s1") // descends from c1: same silo re-registered, not a duplicate
	b.data["g1"] = types.GrainInfo{
		Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s1", ActivationId: "a2"}},
		Clock:     c2,
	}

	dups := a.Merge(b)
	if len(dups) != 0 {
		t.Fatalf("expected no duplicate for a causally-descended re-registration, got %v", dups)
	}
	got, _ := a.Get("g1")
	if got.Addresses[0].ActivationId != "a2" {
		t.Fatalf("expected newer activation a2 to win, got %s", got.Addresses[0].ActivationId)
	}
}

func TestMergeConflictProducesDuplicateGroupedBySilo(t *testing.T) {
	a := New()
	b := New()

	c1 := vclock.NewVClock()
	c1.Increment("s1")
	a.data["g1"] = types.GrainInfo{
		Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s1", ActivationId: "a1"}},
		Clock:     c1,
	}

	c2 := vclock.NewVClock()
	c2.Increment("s2")
	c2.Increment("s2") // higher rank, wins the conflict
	b.data["g1"] = types.GrainInfo{
		Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s2", ActivationId: "a2"}},
		Clock:     c2,
	}

	dups := a.Merge(b)
	if len(dups) != 1 {
		t.Fatalf("expected 1 silo with duplicates, got %d", len(dups))
	}
	losers, ok := dups["s1"]
	if !ok || len(losers) != 1 || losers[0].ActivationId != "a1" {
		t.Fatalf("expected s1's activation a1 to be the loser, got %v", dups)
	}
	got, _ := a.Get("g1")
	if got.Addresses[0].Silo != "s2" {
		t.Fatalf("expected s2 to win the conflict, got %s", got.Addresses[0].Silo)
	}
}

func TestMergeIsCommutativeOnDuplicateSet(t *testing.T) {
	build := func() (*Partition, *Partition) {
		a := New()
		b := New()
		c1 := vclock.NewVClock()
		c1.Increment("s1")
		a.data["g1"] = types.GrainInfo{
			Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s1", ActivationId: "a1"}},
			Clock:     c1,
		}
		c2 := vclock.NewVClock()
		c2.Increment("s2")
		c2.Increment("s2")
		b.data["g1"] = types.GrainInfo{
			Addresses: []types.GrainAddress{{GrainId: "g1", Silo: "s2", ActivationId: "a2"}},
			Clock:     c2,
		}
		return a, b
	}

	a, b := build()
	dupsAB := a.Merge(b)

	a2, b2 := build()
	dupsBA := b2.Merge(a2)

	if len(dupsAB) != len(dupsBA) {
		t.Fatalf("expected same number of losing silos regardless of merge direction: %v vs %v", dupsAB, dupsBA)
	}
}
