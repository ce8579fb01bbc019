package aamf

import (
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestHash(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		var h defaultHasher
		for i := 0; i < 100; i++ {
			elt, seed := pcg.Uint64(), pcg.Uint32()
			assert.Equal(t, h.Hash64(elt, seed), h.Hash64(elt, seed))
		}
	})

	t.Run("Seed changes output", func(t *testing.T) {
		var h defaultHasher
		elt := pcg.Uint64()
		a := h.Hash64(elt, 1)
		b := h.Hash64(elt, 2)
		assert.That(t, a != b)
	})

	t.Run("Distinct elements rarely collide", func(t *testing.T) {
		var h defaultHasher
		seen := make(map[uint64]bool)
		collisions := 0
		for i := 0; i < 10000; i++ {
			v := h.Hash64(uint64(i), 7)
			if seen[v] {
				collisions++
			}
			seen[v] = true
		}
		assert.That(t, collisions == 0)
	})

	t.Run("Low bits are not trivially constant", func(t *testing.T) {
		var h defaultHasher
		var orAll uint64
		var andAll uint64 = ^uint64(0)
		for i := 0; i < 256; i++ {
			v := h.Hash64(pcg.Uint64(), 0) & 0xff
			orAll |= v
			andAll &= v
		}
		assert.That(t, orAll != 0)
		assert.That(t, andAll != 0xff)
	})
}
