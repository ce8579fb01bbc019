package aamf

import (
	"math"
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestBitops(t *testing.T) {
	t.Run("Rank", func(t *testing.T) {
		assert.Equal(t, rank(math.MaxUint64, 0), 1)
		assert.Equal(t, rank(math.MaxUint64, 19), 20)
		assert.Equal(t, rank(math.MaxUint64, 63), 64)
		assert.Equal(t, rank(0x5555555555555555, 15), 8)
	})

	t.Run("Select", func(t *testing.T) {
		assert.Equal(t, sel(1, 0), 0)
		assert.Equal(t, sel(math.MaxUint64, 63), 63)
		assert.Equal(t, sel(math.MaxUint64, 64), 64)
		assert.Equal(t, sel(0, 0), 64)
	})

	t.Run("Ones", func(t *testing.T) {
		assert.Equal(t, ones(0), uint64(0))
		assert.Equal(t, ones(1), uint64(1))
		assert.Equal(t, ones(8), uint64(0xff))
		assert.Equal(t, ones(64), uint64(math.MaxUint64))
	})

	t.Run("Fuzz against popcount/tzcnt", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			x := pcg.Uint64()
			assert.Equal(t, rank(x, 63), popcount(x))
			if x != 0 {
				assert.Equal(t, sel(x, 0), tzcnt(x))
			}
		}
	})
}
