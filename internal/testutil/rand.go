package testutil

import "math/rand/v2"

// NewRand returns a deterministic generator for randomized tests.
//
// The same seed yields the same sequence on every run so failures can be
// replayed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
