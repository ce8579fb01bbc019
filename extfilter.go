package aamf

import (
	"github.com/zeebo/errs"
	"github.com/zeebo/mon"
)

// ExtErr classes every error ExtFilter returns.
var ExtErr = errs.Class("extfilter")

// ExtFilter is the extension-layer AAMF variant: a blocked RSQF where
// each slot's fingerprint can be lengthened by a per-slot variable
// length "extension" recovered from the member's full hash whenever a
// false positive is observed. Extensions for all 64 slots in a block
// are packed together through the arithmetic coder into a 56-bit code
// stored once per block, not once per slot.
type ExtFilter struct {
	core    rsqfCore
	extCode [][codeBytes]byte
	remote  []uint64
	hash    Hasher
}

// NewExtFilter returns an ExtFilter sized to hold at least n elements
// at the given remainder width, seeded for hash, using h to hash
// elements (DefaultHasher if h is nil).
func NewExtFilter(n uint64, r uint, seed uint32, h Hasher) *ExtFilter {
	if h == nil {
		h = DefaultHasher
	}
	core := newRsqfCore(n, r, seed)
	return &ExtFilter{
		core:    core,
		extCode: make([][codeBytes]byte, core.nblocks),
		remote:  make([]uint64, core.nslots),
		hash:    h,
	}
}

// Load returns the fraction of slots currently in use.
func (f *ExtFilter) Load() float64 { return f.core.load() }

// Clear zeroes every slot, extension code, and remote entry while
// keeping the filter's current capacity — a fresh NewExtFilter of the
// same size would behave identically, but Clear avoids reallocating.
func (f *ExtFilter) Clear() {
	for i := range f.core.blocks {
		f.core.blocks[i] = newBlock(f.core.r)
	}
	for i := range f.extCode {
		f.extCode[i] = [codeBytes]byte{}
	}
	for i := range f.remote {
		f.remote[i] = 0
	}
	f.core.nelts = 0
}

func (f *ExtFilter) getExtCode(blockI uint64) uint64 {
	return getCode(&f.extCode[blockI])
}

func (f *ExtFilter) setExtCode(blockI uint64, code uint64) {
	setCode(&f.extCode[blockI], code)
}

func (f *ExtFilter) decodeBlockExts(blockI uint64) [64]ext {
	return decodeExt(f.getExtCode(blockI))
}

func (f *ExtFilter) encodeBlockExts(blockI uint64, exts *[64]ext) {
	code, ok := encodeExt(exts)
	if !ok {
		// Budget exhausted for this block: rebuild the code around
		// nothing rather than leave it holding a previous, now
		// inconsistent, arithmetic state.
		code = 0
	}
	f.setExtCode(blockI, code)
}

func (f *ExtFilter) calcExtBits(hash uint64, length int) uint64 {
	return (hash >> f.core.p()) & ones(uint(length))
}

// shortestDiffExt computes the shortest extension, starting at the
// bit beyond the quotient and remainder, of memberHash that disagrees
// with nonMemberHash. It returns a zero-length extension when the two
// hashes are identical beyond that point — in which case no extension
// can ever distinguish them.
func (f *ExtFilter) shortestDiffExt(memberHash, nonMemberHash uint64) ext {
	a := memberHash >> f.core.p()
	b := nonMemberHash >> f.core.p()
	if a == b {
		return ext{}
	}
	length := tzcnt(a^b) + 1
	return ext{bits: a & ones(uint(length)), len: length}
}

func (f *ExtFilter) extMatchesHash(e ext, hash uint64) bool {
	if e.len == 0 {
		return true
	}
	return f.calcExtBits(hash, e.len) == e.bits
}

// shiftRemoteElts shifts the remote array in [a, b] forward by one
// slot, mirroring shiftRemsAndRunends.
func (f *ExtFilter) shiftRemoteElts(a, b int64) {
	if a > b {
		return
	}
	for i := b; i >= a; i-- {
		f.remote[i+1] = f.remote[i]
	}
	f.remote[a] = 0
}

func (f *ExtFilter) shiftBlockExts(blockI int64, exts *[64]ext, prevExts *[64]ext, b int) {
	for i := b; i > 0; i-- {
		exts[i] = exts[i-1]
	}
	exts[0] = prevExts[63]
	f.encodeBlockExts(uint64(blockI), exts)
}

// shiftExts shifts the extensions in [a, b] forward by one slot,
// decoding and re-encoding whatever blocks the shift touches. When
// the shift crosses a block boundary, slot 63 of each earlier block
// carries into slot 0 of the next, same as the remainders do.
func (f *ExtFilter) shiftExts(a, b int64) {
	if a > b {
		return
	}
	if a/64 == (b+1)/64 {
		exts := f.decodeBlockExts(uint64(a) / 64)
		for i := (b + 1) % 64; i > a%64; i-- {
			exts[i] = exts[i-1]
		}
		exts[a%64] = ext{}
		f.encodeBlockExts(uint64(a)/64, &exts)
		return
	}

	blockI := (b + 1) / 64
	exts := f.decodeBlockExts(uint64(blockI))
	prevExts := f.decodeBlockExts(uint64(blockI - 1))
	f.shiftBlockExts(blockI, &exts, &prevExts, int((b+1)%64))
	exts, prevExts = prevExts, exts

	for blockI--; blockI > a/64; blockI-- {
		prevExts = f.decodeBlockExts(uint64(blockI - 1))
		f.shiftBlockExts(blockI, &exts, &prevExts, 63)
		exts, prevExts = prevExts, exts
	}

	for i := 63; i > int(a%64); i-- {
		exts[i] = exts[i-1]
	}
	exts[a%64] = ext{}
	f.encodeBlockExts(uint64(a)/64, &exts)
}

func (f *ExtFilter) addBlock() {
	f.core.blocks = append(f.core.blocks, newBlock(f.core.r))
	f.extCode = append(f.extCode, [codeBytes]byte{})
	f.remote = append(f.remote, make([]uint64, 64)...)
	f.core.nblocks++
	f.core.nslots += 64
}

// adaptLoc rewrites the extension at loc to the shortest one that
// still recognizes inHash (the hash of the element already stored at
// loc) while rejecting outHash (the hash of the query that collided
// with it).
func (f *ExtFilter) adaptLoc(loc uint64, inHash, outHash uint64) {
	newExt := f.shortestDiffExt(inHash, outHash)
	if newExt.len == 0 {
		// Member and query hashes agree past the fingerprint: no
		// extension, however long, can tell them apart.
		return
	}
	blockI := loc / 64
	exts := f.decodeBlockExts(blockI)
	exts[loc%64] = newExt
	if code, ok := encodeExt(&exts); ok {
		f.setExtCode(blockI, code)
		return
	}
	// This block's code can't fit all 64 extensions plus the new one:
	// drop everything else in the block rather than lose the new,
	// more urgent discriminator.
	exts = [64]ext{}
	exts[loc%64] = newExt
	if code, ok := encodeExt(&exts); ok {
		f.setExtCode(blockI, code)
		return
	}
	exts[loc%64] = ext{}
	f.setExtCode(blockI, 0)
}

// adapt repairs every remaining collision in the run containing loc
// after a false positive was observed for query.
func (f *ExtFilter) adapt(query uint64, loc int64, quot uint64, rem uint64, hash uint64, decoded [64]ext) {
	runStart := int64(quot)
	for i := loc; i >= runStart; i-- {
		if i != loc && f.core.isRunend(uint64(i)) {
			break
		}
		if f.remote[i] == query {
			// The query is genuinely stored under a different slot in
			// this run: not a false positive, nothing to adapt.
			return
		}
	}
	for i := loc; i >= runStart; i-- {
		if i != loc && f.core.isRunend(uint64(i)) {
			break
		}
		if i != loc && i%64 == 63 {
			decoded = f.decodeBlockExts(uint64(i) / 64)
		}
		e := decoded[i%64]
		if f.core.remainder(uint64(i)) == rem && f.extMatchesHash(e, hash) {
			inHash := f.hash.Hash64(f.remote[i], f.core.seed)
			f.adaptLoc(uint64(i), inHash, hash)
		}
	}
}

// Insert adds elt to the filter.
func (f *ExtFilter) Insert(elt uint64) (err error) {
	defer mon.Start().Stop(&err)

	hash := f.hash.Hash64(elt, f.core.seed)
	quot := f.core.calcQuot(hash)
	rem := f.core.calcRem(hash)
	f.core.nelts++

	r := f.core.rankSelect(quot)
	switch rankSelectStatus(r) {
	case rankSelectEmpty:
		f.core.setOccupiedTo(quot, true)
		f.core.setRunendTo(quot, true)
		f.core.setRemainder(quot, rem)
		f.remote[quot] = elt
		return nil
	case rankSelectOverflow:
		return ExtErr.New("lost track of runend (nslots=%d, quot=%d)", f.core.nslots, quot)
	}

	u := f.core.firstUnused(uint64(r) + 1)
	if u == -1 {
		f.addBlock()
		u = int64(f.core.nslots - 64)
	}
	f.core.incOffsets(uint64(r)+1, uint64(u)-1)
	f.core.shiftRemsAndRunends(r+1, u-1)
	f.shiftRemoteElts(r+1, u-1)
	f.shiftExts(r+1, u-1)

	if f.core.isOccupied(quot) {
		f.core.incOffsets(uint64(r), uint64(r))
		f.core.setRunendTo(uint64(r), false)
	} else {
		f.core.incOffsetsForNewRun(quot, uint64(r))
		f.core.setOccupiedTo(quot, true)
	}
	f.core.setRunendTo(uint64(r)+1, true)
	f.core.setRemainder(uint64(r)+1, rem)
	f.remote[r+1] = elt

	return nil
}

// Contains reports whether elt was (probably) inserted. It may adapt
// the filter in place if it observes a false positive — a slot whose
// fingerprint matches elt's but whose remote element doesn't.
func (f *ExtFilter) Contains(elt uint64) (found bool, err error) {
	defer mon.Start().Stop(&err)

	hash := f.hash.Hash64(elt, f.core.seed)
	quot := f.core.calcQuot(hash)
	rem := f.core.calcRem(hash)

	if !f.core.isOccupied(quot) {
		return false, nil
	}
	loc := f.core.rankSelect(quot)
	if rankSelectStatus(loc) == rankSelectEmpty || rankSelectStatus(loc) == rankSelectOverflow {
		return false, nil
	}

	var decoded [64]ext
	decodedBlock := int64(-1)
	for {
		if f.core.remainder(uint64(loc)) == rem {
			if blockI := loc / 64; decodedBlock != blockI {
				decodedBlock = blockI
				decoded = f.decodeBlockExts(uint64(blockI))
			}
			e := decoded[loc%64]
			if f.extMatchesHash(e, hash) {
				if f.remote[loc] != elt {
					f.adapt(elt, loc, quot, rem, hash, decoded)
				}
				return true, nil
			}
		}
		loc--
		if loc < int64(quot) || f.core.isRunend(uint64(loc)) {
			break
		}
	}
	return false, nil
}
