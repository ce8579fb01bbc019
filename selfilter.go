package aamf

import (
	"github.com/zeebo/errs"
	"github.com/zeebo/mon"
)

// SelErr classes every error SelFilter returns.
var SelErr = errs.Class("selfilter")

const maxSelUncompressed = 1 << 8

// remoteElt is what the selector variant keeps beside each slot: the
// element itself and its full hash, so a new remainder can be
// recomputed from a different slice of the hash on adaptation without
// ever calling the hasher again.
type remoteElt struct {
	elt  uint64
	hash uint64
}

// SelFilter is the selector-layer AAMF variant: a blocked RSQF where
// each slot picks which r-bit slice of its member's hash serves as
// the remainder via a small per-slot selector. A false positive is
// resolved by incrementing the colliding slot's selector modulo
// maxSel, effectively re-hashing just that slot from material the
// filter already has on hand.
//
// Selectors are stored one byte per slot (uncompressed); use
// NewCompressedSelFilter for the space-optimized variant that packs
// them through the arithmetic coder instead.
type SelFilter struct {
	core       rsqfCore
	sel        [][64]uint8
	selCode    [][codeBytes]byte
	compressed bool
	remote     []remoteElt
	hash       Hasher
	maxSel     int
}

// NewSelFilter returns an uncompressed SelFilter sized to hold at
// least n elements at the given remainder width, seeded for hash,
// using h to hash elements (DefaultHasher if h is nil).
func NewSelFilter(n uint64, r uint, seed uint32, h Hasher) *SelFilter {
	if h == nil {
		h = DefaultHasher
	}
	core := newRsqfCore(n, r, seed)
	return &SelFilter{
		core:   core,
		sel:    make([][64]uint8, core.nblocks),
		remote: make([]remoteElt, core.nslots),
		hash:   h,
		maxSel: maxSelUncompressed,
	}
}

// NewCompressedSelFilter is like NewSelFilter, but packs all 64
// selectors of a block through the arithmetic coder into a 56-bit
// code instead of storing one byte per slot. It trades a tighter
// selector range (maxSelector+1 values instead of 256) for roughly a
// block's worth of memory per block.
func NewCompressedSelFilter(n uint64, r uint, seed uint32, h Hasher) *SelFilter {
	if h == nil {
		h = DefaultHasher
	}
	core := newRsqfCore(n, r, seed)
	return &SelFilter{
		core:       core,
		selCode:    make([][codeBytes]byte, core.nblocks),
		compressed: true,
		remote:     make([]remoteElt, core.nslots),
		hash:       h,
		maxSel:     maxSelector + 1,
	}
}

// Load returns the fraction of slots currently in use.
func (f *SelFilter) Load() float64 { return f.core.load() }

// Clear zeroes every slot, selector, and remote entry while keeping
// the filter's current capacity.
func (f *SelFilter) Clear() {
	for i := range f.core.blocks {
		f.core.blocks[i] = newBlock(f.core.r)
	}
	if f.compressed {
		for i := range f.selCode {
			f.selCode[i] = [codeBytes]byte{}
		}
	} else {
		for i := range f.sel {
			f.sel[i] = [64]uint8{}
		}
	}
	for i := range f.remote {
		f.remote[i] = remoteElt{}
	}
	f.core.nelts = 0
}

func (f *SelFilter) nRems() int {
	return (64 - int(f.core.q)) / int(f.core.r)
}

// calcRem returns the k-th r-bit slice of hash, wrapping k modulo the
// number of slices the hash actually has room for beyond q.
func (f *SelFilter) calcRem(hash uint64, k int) uint64 {
	if n := f.nRems(); k >= n {
		k %= n
	}
	return (hash >> (f.core.q + uint(k)*f.core.r)) & ones(f.core.r)
}

func (f *SelFilter) decodeBlockSels(blockI uint64) [64]uint8 {
	if !f.compressed {
		return f.sel[blockI]
	}
	return decodeSel(getCode(&f.selCode[blockI]))
}

func (f *SelFilter) encodeBlockSels(blockI uint64, sels *[64]uint8) {
	if !f.compressed {
		f.sel[blockI] = *sels
		return
	}
	code, ok := encodeSel(sels)
	if !ok {
		code = 0
	}
	setCode(&f.selCode[blockI], code)
}

func (f *SelFilter) getSelector(i uint64) uint8 {
	return f.decodeBlockSels(i / 64)[i%64]
}

func (f *SelFilter) setSelector(i uint64, v uint8) {
	sels := f.decodeBlockSels(i / 64)
	sels[i%64] = v
	f.encodeBlockSels(i/64, &sels)
}

// shiftRemoteElts shifts the remote array in [a, b] forward by one
// slot.
func (f *SelFilter) shiftRemoteElts(a, b int64) {
	if a > b {
		return
	}
	for i := b; i >= a; i-- {
		f.remote[i+1] = f.remote[i]
	}
	f.remote[a] = remoteElt{}
}

// shiftSels shifts the selectors in [a, b] forward by one slot.
func (f *SelFilter) shiftSels(a, b int64) {
	if a > b {
		return
	}
	for i := b; i >= a; i-- {
		f.setSelector(uint64(i+1), f.getSelector(uint64(i)))
	}
	f.setSelector(uint64(a), 0)
}

func (f *SelFilter) addBlock() {
	f.core.blocks = append(f.core.blocks, newBlock(f.core.r))
	if f.compressed {
		f.selCode = append(f.selCode, [codeBytes]byte{})
	} else {
		f.sel = append(f.sel, [64]uint8{})
	}
	f.remote = append(f.remote, make([]remoteElt, 64)...)
	f.core.nblocks++
	f.core.nslots += 64
}

// adaptLoc increments the selector at loc modulo maxSel and rewrites
// its remainder from the stored hash under the new selector — no
// rehashing needed since remote keeps the full hash.
func (f *SelFilter) adaptLoc(loc uint64) {
	oldSel := int(f.getSelector(loc))
	newSel := (oldSel + 1) % f.maxSel
	f.setSelector(loc, uint8(newSel))
	f.core.setRemainder(loc, f.calcRem(f.remote[loc].hash, newSel))
}

// adapt repairs every remaining collision in the run containing loc
// after a false positive was observed for query.
func (f *SelFilter) adapt(query uint64, loc int64, quot uint64, hash uint64) {
	runStart := int64(quot)
	for i := loc; i >= runStart; i-- {
		if i != loc && f.core.isRunend(uint64(i)) {
			break
		}
		if f.remote[i].elt == query {
			return
		}
	}
	for i := loc; i >= runStart; i-- {
		if i != loc && f.core.isRunend(uint64(i)) {
			break
		}
		if f.core.remainder(uint64(i)) == f.calcRem(hash, int(f.getSelector(uint64(i)))) {
			f.adaptLoc(uint64(i))
		}
	}
}

// Insert adds elt to the filter.
func (f *SelFilter) Insert(elt uint64) (err error) {
	defer mon.Start().Stop(&err)

	hash := f.hash.Hash64(elt, f.core.seed)
	quot := f.core.calcQuot(hash)
	rem := f.calcRem(hash, 0)
	f.core.nelts++

	r := f.core.rankSelect(quot)
	switch rankSelectStatus(r) {
	case rankSelectEmpty:
		f.core.setOccupiedTo(quot, true)
		f.core.setRunendTo(quot, true)
		f.core.setRemainder(quot, rem)
		f.remote[quot] = remoteElt{elt: elt, hash: hash}
		return nil
	case rankSelectOverflow:
		return SelErr.New("lost track of runend (nslots=%d, quot=%d)", f.core.nslots, quot)
	}

	u := f.core.firstUnused(uint64(r) + 1)
	if u == -1 {
		f.addBlock()
		u = int64(f.core.nslots - 64)
	}
	f.core.incOffsets(uint64(r)+1, uint64(u)-1)
	f.core.shiftRemsAndRunends(r+1, u-1)
	f.shiftRemoteElts(r+1, u-1)
	f.shiftSels(r+1, u-1)

	if f.core.isOccupied(quot) {
		f.core.incOffsets(uint64(r), uint64(r))
		f.core.setRunendTo(uint64(r), false)
	} else {
		f.core.incOffsetsForNewRun(quot, uint64(r))
		f.core.setOccupiedTo(quot, true)
	}
	f.core.setRunendTo(uint64(r)+1, true)
	f.core.setRemainder(uint64(r)+1, rem)
	f.remote[r+1] = remoteElt{elt: elt, hash: hash}

	return nil
}

// Contains reports whether elt was (probably) inserted. It may adapt
// the filter in place if it observes a false positive.
func (f *SelFilter) Contains(elt uint64) (found bool, err error) {
	defer mon.Start().Stop(&err)

	hash := f.hash.Hash64(elt, f.core.seed)
	quot := f.core.calcQuot(hash)

	if !f.core.isOccupied(quot) {
		return false, nil
	}
	loc := f.core.rankSelect(quot)
	if rankSelectStatus(loc) == rankSelectEmpty || rankSelectStatus(loc) == rankSelectOverflow {
		return false, nil
	}

	for {
		sel := int(f.getSelector(uint64(loc)))
		rem := f.calcRem(hash, sel)
		if f.core.remainder(uint64(loc)) == rem {
			if f.remote[loc].elt != elt {
				f.adapt(elt, loc, quot, hash)
			}
			return true, nil
		}
		loc--
		if loc < int64(quot) || f.core.isRunend(uint64(loc)) {
			break
		}
	}
	return false, nil
}
