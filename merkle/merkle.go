// Package merkle builds and diffs merkle trees over grain-id hashes.
// The server's anti-entropy loop uses it to diff this silo's own
// partition against a replica peer's partition and pull back the
// records for just the grain ids that diverged.
package merkle

import (
	"crypto/md5"
	"sort"

	"github.com/pixperk/siloring/types"
)

type KeyHash struct {
	Key  types.GrainId
	Hash [16]byte
}

type MerkleNode struct {
	Hash  [16]byte
	Left  *MerkleNode
	Right *MerkleNode
	Key   types.GrainId // only set on leaf nodes
}

// Build constructs a merkle tree from a set of key-hash pairs.
// Sorts entries by key, pads to the next power of 2, then merges
// bottom-up: parent hash = md5(left.hash + right.hash).
func Build(entries []KeyHash) *MerkleNode {
	if len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	// create leaf nodes
	leaves := make([]*MerkleNode, len(entries))
	for i, e := range entries {
		leaves[i] = &MerkleNode{Hash: e.Hash, Key: e.Key}
	}

	// pad to next power of 2
	for len(leaves)&(len(leaves)-1) != 0 {
		leaves = append(leaves, &MerkleNode{})
	}

	// merge bottom-up
	layer := leaves
	for len(layer) > 1 {
		var next []*MerkleNode
		for i := 0; i < len(layer); i += 2 {
			parent := &MerkleNode{
				Left:  layer[i],
				Right: layer[i+1],
			}
			var combined [32]byte
			copy(combined[:16], layer[i].Hash[:])
			copy(combined[16:], layer[i+1].Hash[:])
			parent.Hash = md5.Sum(combined[:])
			next = append(next, parent)
		}
		layer = next
	}

	return layer[0]
}

// Diff walks two merkle trees top-down and returns the grain ids that
// differ, in the order they're discovered. limit caps how many diverging
// keys are returned; once reached, the walk stops descending into further
// subtrees. A repair round after a large rebalance can otherwise surface
// thousands of diverging keys in one pass, more than a single SyncKeys
// round trip should carry — the caller repairs the rest on the next tick.
// limit <= 0 means unbounded.
func Diff(a, b *MerkleNode, limit int) []types.GrainId {
	var out []types.GrainId
	diff(a, b, limit, &out)
	return out
}

func diff(a, b *MerkleNode, limit int, out *[]types.GrainId) {
	if limit > 0 && len(*out) >= limit {
		return
	}
	if a == nil && b == nil {
		return
	}
	// one side has data the other doesn't
	if a == nil {
		collectKeys(b, limit, out)
		return
	}
	if b == nil {
		collectKeys(a, limit, out)
		return
	}
	// hashes match, subtree is in sync
	if a.Hash == b.Hash {
		return
	}
	// both are leaves: the key diverged, or each side holds a different key
	if a.Left == nil && b.Left == nil {
		if a.Key != "" {
			*out = append(*out, a.Key)
		}
		if b.Key != "" && b.Key != a.Key && (limit <= 0 || len(*out) < limit) {
			*out = append(*out, b.Key)
		}
		return
	}
	// recurse into children
	diff(a.Left, b.Left, limit, out)
	diff(a.Right, b.Right, limit, out)
}

// collectKeys gathers all non-empty leaf keys from a subtree, stopping
// once limit keys have been collected.
func collectKeys(n *MerkleNode, limit int, out *[]types.GrainId) {
	if n == nil || (limit > 0 && len(*out) >= limit) {
		return
	}
	if n.Left == nil && n.Right == nil {
		if n.Key != "" {
			*out = append(*out, n.Key)
		}
		return
	}
	collectKeys(n.Left, limit, out)
	collectKeys(n.Right, limit, out)
}
