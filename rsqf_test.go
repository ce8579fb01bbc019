package aamf

import (
	"testing"

	"github.com/zeebo/assert"
)

func TestRsqfCore(t *testing.T) {
	t.Run("NearestPow2", func(t *testing.T) {
		assert.Equal(t, nearestPow2(0), uint64(1))
		assert.Equal(t, nearestPow2(1), uint64(1))
		assert.Equal(t, nearestPow2(63), uint64(64))
		assert.Equal(t, nearestPow2(64), uint64(64))
		assert.Equal(t, nearestPow2(65), uint64(128))
	})

	t.Run("Empty is rankSelectEmpty everywhere", func(t *testing.T) {
		c := newRsqfCore(128, 7, 1)
		for x := uint64(0); x < c.nslots; x++ {
			assert.Equal(t, rankSelectStatus(c.rankSelect(x)), rankSelectEmpty)
		}
	})

	t.Run("Single occupied run", func(t *testing.T) {
		c := newRsqfCore(128, 7, 1)
		c.setOccupiedTo(0, true)
		c.setRunendTo(0, true)

		assert.Equal(t, c.rankSelect(0), int64(0))
		assert.Equal(t, rankSelectStatus(c.rankSelect(1)), rankSelectEmpty)
	})

	t.Run("firstUnused skips a run", func(t *testing.T) {
		c := newRsqfCore(128, 7, 1)
		// one run for quotient 0 filling slots 0 and 1
		c.setOccupiedTo(0, true)
		c.setRunendTo(1, true)
		c.blocks[0].offset = 1

		assert.Equal(t, c.firstUnused(0), int64(2))
	})

	t.Run("shiftRemsAndRunends preserves contents", func(t *testing.T) {
		c := newRsqfCore(128, 7, 1)
		c.setRemainder(5, 0x1a)
		c.setRunendTo(5, true)

		c.shiftRemsAndRunends(5, 5)

		assert.Equal(t, c.remainder(6), uint64(0x1a))
		assert.That(t, c.isRunend(6))
		assert.That(t, !c.isRunend(5))
	})

	t.Run("incOffsets advances a later block's offset", func(t *testing.T) {
		c := newRsqfCore(256, 7, 1)
		c.blocks[1].setOccupied(0)
		c.blocks[1].offset = 5

		c.incOffsets(64+3, 64+5)
		assert.Equal(t, c.blocks[1].offset, uint64(6))

		c.incOffsets(0, 10)
		assert.Equal(t, c.blocks[1].offset, uint64(6))
	})

	t.Run("load reflects inserted count", func(t *testing.T) {
		c := newRsqfCore(64, 7, 1)
		assert.Equal(t, c.load(), float64(0))
		c.nelts = 32
		assert.Equal(t, c.load(), float64(32)/float64(c.nslots))
	})

	t.Run("calcQuot and calcRem partition the hash", func(t *testing.T) {
		c := newRsqfCore(128, 7, 1)
		hash := uint64(0xdeadbeefcafebabe)
		quot := c.calcQuot(hash)
		rem := c.calcRem(hash)
		assert.That(t, quot < c.nslots)
		assert.That(t, rem <= ones(c.r))
		assert.Equal(t, quot, hash&ones(c.q))
	})
}
