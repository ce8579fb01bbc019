package aamf

import "testing"

// oracle is the ground-truth set the tests check filters against: a
// plain Go map stands in for the chained hash set the reference
// implementation uses for the same purpose, since Go's map already
// gives us that exact behavior for free.
type oracle map[uint64]bool

func newOracle() oracle { return make(oracle) }

func (o oracle) insert(v uint64) { o[v] = true }
func (o oracle) has(v uint64) bool { return o[v] }

// randNotIn draws values from gen until it finds one not already a
// member of o, so false-positive-rate tests query a universe that is
// known, by construction, to miss the filter's insert set.
func randNotIn(o oracle, gen func() uint64) uint64 {
	for {
		v := gen()
		if !o.has(v) {
			return v
		}
	}
}

// countMatching runs queries against a containment predicate drawn
// from gen and counts how many it reports positive, used to measure
// observed false-positive rates.
func countMatching(t *testing.T, n int, gen func() uint64, contains func(uint64) (bool, error)) int {
	t.Helper()
	got := 0
	for i := 0; i < n; i++ {
		ok, err := contains(gen())
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			got++
		}
	}
	return got
}
