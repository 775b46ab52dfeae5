package ring

// Chord-style ring: one token per silo, hashed from its address.
//
// - Every silo hashes to exactly one point on the ring (its Token).
// - A grain id is owned by the silo whose token immediately succeeds the
//   grain id's own hash, walking clockwise.
// - Unlike a fixed Q-partition strategy, a join/leave only ever affects
//   the two neighbors adjacent to the changed token; every other silo's
//   ownership is untouched.

// Token is a silo's position on the ring: the point its address hashes to.
type Token struct {
	Hash uint64
}
