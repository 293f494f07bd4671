package resultset

import "math/rand/v2"

// Seed is the two-word seed accepted by Shuffle/Sample. Per SPEC_FULL.md §E's
// resolution of the RNG-portability open question, shuffle/sample operations
// are reproducible only within this module (identical seed + identical
// inputs ⇒ identical output sequence here); cross-language bit-for-bit
// portability of the underlying generator is explicitly out of scope.
type Seed struct {
	Lo, Hi uint64
}

// newRand constructs a math/rand/v2 source seeded deterministically from
// seed, pinned to PCG rather than the package-level default source so the
// permutation is stable across Go versions (spec §5: "Shuffle/sample
// operations are reproducible when seeded with an explicit integer seed").
func newRand(seed Seed) *rand.Rand {
	return rand.New(rand.NewPCG(seed.Lo, seed.Hi))
}

// Shuffle returns a new ResultSet with rows permuted deterministically by
// seed (spec §4.10 "shuffle with seeded RNG").
func (rs *ResultSet) Shuffle(seed Seed) *ResultSet {
	out := &ResultSet{rows: append([]Row(nil), rs.rows...)}
	newRand(seed).Shuffle(len(out.rows), func(i, j int) {
		out.rows[i], out.rows[j] = out.rows[j], out.rows[i]
	})
	return out
}

// Sample returns a new ResultSet containing n rows drawn without
// replacement, deterministically by seed (spec §4.10 "sample"). n is clamped
// to the ResultSet's length.
func (rs *ResultSet) Sample(n int, seed Seed) *ResultSet {
	if n > len(rs.rows) {
		n = len(rs.rows)
	}
	if n < 0 {
		n = 0
	}
	shuffled := append([]Row(nil), rs.rows...)
	newRand(seed).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return &ResultSet{rows: shuffled[:n]}
}
