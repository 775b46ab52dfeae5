package ring

import (
	"testing"

	"github.com/pixperk/siloring/types"
)

func addrs(ids ...string) []types.SiloAddress {
	out := make([]types.SiloAddress, len(ids))
	for i, id := range ids {
		out[i] = types.SiloAddress(id)
	}
	return out
}

func TestCalculateOwnerDeterministic(t *testing.T) {
	r := New("s1", addrs("s1", "s2", "s3"))

	first := r.CalculateOwner("grain-42")
	for i := 0; i < 50; i++ {
		if got := r.CalculateOwner("grain-42"); got != first {
			t.Fatalf("owner not deterministic: got %s, want %s", got, first)
		}
	}
}

func TestCalculateOwnerReturnsMember(t *testing.T) {
	r := New("s1", addrs("s1", "s2", "s3"))
	members := map[types.SiloAddress]bool{"s1": true, "s2": true, "s3": true}

	for _, g := range []string{"a", "b", "c", "grain-1", "grain-999"} {
		owner := r.CalculateOwner(types.GrainId(g))
		if !members[owner] {
			t.Fatalf("CalculateOwner(%q) = %s, not a member", g, owner)
		}
	}
}

func TestFindSuccessorsExcludesSelf(t *testing.T) {
	r := New("s1", addrs("s1", "s2", "s3"))

	succs := r.FindSuccessors("s1", 2)
	if len(succs) != 2 {
		t.Fatalf("expected 2 successors, got %d: %v", len(succs), succs)
	}
	for _, s := range succs {
		if s == "s1" {
			t.Fatal("successors must not include self")
		}
	}
}

func TestFindPredecessorsExcludesSelf(t *testing.T) {
	r := New("s1", addrs("s1", "s2", "s3"))

	preds := r.FindPredecessors("s1", 2)
	if len(preds) != 2 {
		t.Fatalf("expected 2 predecessors, got %d: %v", len(preds), preds)
	}
	for _, s := range preds {
		if s == "s1" {
			t.Fatal("predecessors must not include self")
		}
	}
}

func TestFindSuccessorsCapsAtMembership(t *testing.T) {
	r := New("s1", addrs("s1", "s2"))

	succs := r.FindSuccessors("s1", 5)
	if len(succs) != 1 {
		t.Fatalf("expected 1 successor with only 2 members, got %d", len(succs))
	}
}

func TestFindPredecessorsOfRemovedSilo(t *testing.T) {
	r := New("s1", addrs("s1", "s2", "s3"))
	r.RemoveSilo("s2")

	// s2 is gone but its vacated ring position is still a valid query
	// point: a leave reaction asks for the predecessor of a just-removed silo.
	preds := r.FindPredecessors("s2", 1)
	if len(preds) != 1 {
		t.Fatalf("expected 1 predecessor for removed silo, got %d", len(preds))
	}
	if preds[0] == "s2" {
		t.Fatal("predecessor of removed silo must not be itself")
	}
}

func TestAddSiloIdempotent(t *testing.T) {
	r := New("s1", addrs("s1", "s2"))
	r.AddSilo("s2")
	if len(r.Members()) != 2 {
		t.Fatalf("expected 2 members after re-adding s2, got %d", len(r.Members()))
	}
}

func TestRemoveSiloIdempotent(t *testing.T) {
	r := New("s1", addrs("s1", "s2"))
	r.RemoveSilo("s3")
	if len(r.Members()) != 2 {
		t.Fatalf("removing a non-member should be a no-op, got %d members", len(r.Members()))
	}
}

func TestSoleMemberIsItsOwnRingOfOne(t *testing.T) {
	r := New("s1", addrs("s1"))
	if owner := r.CalculateOwner("anything"); owner != "s1" {
		t.Fatalf("expected sole member to own everything, got %s", owner)
	}
	if succs := r.FindSuccessors("s1", 1); len(succs) != 0 {
		t.Fatalf("expected no successors with a single member, got %v", succs)
	}
}

func TestRunningFlag(t *testing.T) {
	r := New("s1", addrs("s1"))
	if !r.Running() {
		t.Fatal("expected ring to start running")
	}
	r.Stop()
	if r.Running() {
		t.Fatal("expected ring to stop")
	}
}
