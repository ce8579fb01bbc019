package aamf

import "math/bits"

// rsqfCore is the blocked rank-and-select quotient filter shared by
// every AAMF variant. It tracks which quotients are occupied, where
// each run of colliding quotients ends, and how many blocks the
// filter has grown to. It knows nothing about remotes, extensions,
// or selectors — a variant keeps those in its own arrays, indexed by
// block (extension or selector codes) or by slot (remotes), and shifts
// them in lockstep whenever core shifts remainders and runends.
type rsqfCore struct {
	blocks  []block
	nslots  uint64
	nblocks uint64
	q, r    uint
	seed    uint32
	nelts   uint64
}

func nearestPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

func newRsqfCore(n uint64, r uint, seed uint32) rsqfCore {
	nblocks := nearestPow2(n) / 64
	if nblocks == 0 {
		nblocks = 1
	}
	nslots := nblocks * 64
	q := uint(bits.Len64(nslots - 1))
	blocks := make([]block, nblocks)
	for i := range blocks {
		blocks[i] = newBlock(r)
	}
	return rsqfCore{blocks: blocks, nslots: nslots, nblocks: nblocks, q: q, r: r, seed: seed}
}

func (c *rsqfCore) calcQuot(hash uint64) uint64 {
	return hash & ones(c.q)
}

func (c *rsqfCore) calcRem(hash uint64) uint64 {
	return (hash >> c.q) & ones(c.r)
}

// p is the bit position in a hash where extension/selector material
// begins: everything below p is spoken for by the quotient and
// remainder.
func (c *rsqfCore) p() uint {
	return c.q + c.r
}

// rankSelectStatus distinguishes the two non-hit outcomes of
// rankSelect from an actual slot location.
type rankSelectStatus int

const (
	rankSelectEmpty    rankSelectStatus = -1
	rankSelectOverflow rankSelectStatus = -2
)

// selectRunend returns the absolute index of the rank-th (0-indexed)
// set bit of runends at or after blockIndex*64, or -1 if there is no
// such bit before the filter runs out of blocks.
func (c *rsqfCore) selectRunend(blockIndex uint64, rank uint64) int64 {
	loc := blockIndex * 64
	for {
		b := &c.blocks[loc/64]
		r := rank
		if r >= 64 {
			r = 63
		}
		step := sel(b.runend, uint(r))
		loc += uint64(step)
		if step != 64 || loc >= c.nslots {
			break
		}
		rank -= uint64(popcount(b.runend))
	}
	if loc >= c.nslots {
		return -1
	}
	return int64(loc)
}

// rankSelect computes the blocked equivalent of the unblocked
// operation y = select(runends, rank(occupieds, x)), x indexed from 0.
// It returns rankSelectEmpty if y < x, the absolute location if
// y >= x, or rankSelectOverflow if y runs off the edge of the filter.
func (c *rsqfCore) rankSelect(x uint64) int64 {
	if x >= c.nslots {
		return int64(rankSelectOverflow)
	}
	blockI := x / 64
	slotI := x % 64
	b := &c.blocks[blockI]

	if !b.isOccupied(0) && b.offset == 0 && !b.isRunend(0) {
		// negative offset: this block owns no run that starts before it
		if slotI == 0 {
			return int64(rankSelectEmpty)
		}
	} else {
		if slotI == 0 {
			return int64(blockI*64 + b.offset)
		}
		blockI += b.offset / 64
	}

	if blockI >= c.nblocks {
		return int64(rankSelectOverflow)
	}

	var occ0 uint64
	if b.isOccupied(0) {
		occ0 = 1
	}
	d := uint64(rank(b.occupied, uint(slotI))) - occ0

	offset := b.offset % 64
	b = &c.blocks[blockI]
	d += uint64(rank(b.runend, uint(offset)))

	if d == 0 {
		return int64(rankSelectEmpty)
	}
	loc := c.selectRunend(blockI, d-1)
	if loc == -1 {
		return int64(rankSelectOverflow)
	} else if uint64(loc) < x {
		return int64(rankSelectEmpty)
	}
	return loc
}

// firstUnused finds the first unused slot at or after absolute
// location x, or -1 if the filter is full (an overflow occurred
// before one was found).
func (c *rsqfCore) firstUnused(x uint64) int64 {
	for {
		loc := c.rankSelect(x)
		switch rankSelectStatus(loc) {
		case rankSelectEmpty:
			return int64(x)
		case rankSelectOverflow:
			return -1
		default:
			if x <= uint64(loc) {
				x = uint64(loc) + 1
			} else {
				return int64(x)
			}
		}
	}
}

// shiftRemsAndRunends shifts the remainders and runends in [a, b]
// forward by one slot, into [a+1, b+1].
func (c *rsqfCore) shiftRemsAndRunends(a, b int64) {
	if a > b {
		return
	}
	for i := b; i >= a; i-- {
		c.setRemainder(uint64(i+1), c.remainder(uint64(i)))
		c.setRunendTo(uint64(i+1), c.isRunend(uint64(i)))
	}
	c.setRunendTo(uint64(a), false)
}

// incOffsets increments every non-negative block offset whose target
// slot falls within [a, b].
func (c *rsqfCore) incOffsets(a, b uint64) {
	if a > b {
		return
	}
	start := b/64 + 1
	if last := c.nblocks - 1; start > last {
		start = last
	}
	for i := int64(start); i >= 0; i-- {
		blk := &c.blocks[i]
		blockStart := uint64(i) * 64
		if !blk.isOccupied(0) && blk.offset == 0 && !blk.isRunend(0) {
			continue
		}
		target := blockStart + blk.offset
		if target < a {
			break
		} else if target <= b {
			blk.offset++
		}
	}
}

// incOffsetsForNewRun increments non-negative offsets to accommodate
// the insertion of a new run for quot at loc.
func (c *rsqfCore) incOffsetsForNewRun(quot, loc uint64) {
	start := loc/64 + 1
	if last := c.nblocks - 1; start > last {
		start = last
	}
	for i := int64(start); i >= 0; i-- {
		blk := &c.blocks[i]
		blockStart := uint64(i) * 64
		if !blk.isOccupied(0) && blk.offset == 0 && !blk.isRunend(0) {
			continue
		}
		target := blockStart + blk.offset
		if target < loc {
			break
		} else if target == loc && !blk.isOccupied(0) && quot <= blockStart {
			blk.offset++
		}
	}
}

func (c *rsqfCore) remainder(i uint64) uint64 {
	return c.blocks[i/64].remainder(uint(i))
}

func (c *rsqfCore) setRemainder(i, v uint64) {
	c.blocks[i/64].setRemainder(uint(i), v)
}

func (c *rsqfCore) isOccupied(i uint64) bool { return c.blocks[i/64].isOccupied(uint(i)) }
func (c *rsqfCore) isRunend(i uint64) bool   { return c.blocks[i/64].isRunend(uint(i)) }

func (c *rsqfCore) setOccupiedTo(i uint64, v bool) {
	if v {
		c.blocks[i/64].setOccupied(uint(i))
	} else {
		c.blocks[i/64].clearOccupied(uint(i))
	}
}

func (c *rsqfCore) setRunendTo(i uint64, v bool) {
	if v {
		c.blocks[i/64].setRunend(uint(i))
	} else {
		c.blocks[i/64].clearRunend(uint(i))
	}
}

func (c *rsqfCore) load() float64 {
	return float64(c.nelts) / float64(c.nslots)
}
