package aamf

// block is the fixed 64-slot bookkeeping unit shared by every variant of
// the filter. occupied marks which quotients have a home in this block;
// runend marks the last slot of each run; offset lets rank-and-select
// start its search for this block's own run without walking every block
// before it. rem packs the block's 64 r-bit remainders tightly, without
// wasting a full byte per slot when r isn't 8.
//
// A variant adds whatever extra per-slot state it needs (an extension
// code, a selector) alongside a block, never inside it; block only ever
// knows about occupied/runend/offset/remainder.
type block struct {
	offset   uint64
	occupied uint64
	runend   uint64
	rem      remSlots
}

func newBlock(r uint) block {
	return block{rem: newRemSlots(r)}
}

func (b *block) remainder(i uint) uint64       { return b.rem.get(i % 64) }
func (b *block) setRemainder(i uint, v uint64) { b.rem.put(i%64, v) }

func (b *block) isOccupied(i uint) bool { return b.occupied&(1<<(i%64)) != 0 }
func (b *block) isRunend(i uint) bool   { return b.runend&(1<<(i%64)) != 0 }

func (b *block) setOccupied(i uint)   { b.occupied |= 1 << (i % 64) }
func (b *block) clearOccupied(i uint) { b.occupied &^= 1 << (i % 64) }
func (b *block) setRunend(i uint)     { b.runend |= 1 << (i % 64) }
func (b *block) clearRunend(i uint)   { b.runend &^= 1 << (i % 64) }

// remSlots packs a block's 64 r-bit remainders into a tightly bit-packed
// byte buffer: slot i's bits start at bit i*r, with no byte-alignment
// padding between slots. AAMF blocks always hold exactly 64 slots (the
// fixed block layout of §3), so unlike a general bit-packed array this
// only ever needs a slot index in [0, 64) and a single fixed width r.
type remSlots struct {
	buf  []byte
	bits uint
	mask uint64
}

func newRemSlots(r uint) remSlots {
	// +7 bytes of slack so the 8-byte read/write of the last
	// slot never walks past the end of buf.
	buf := make([]byte, (64*r+7)/8+7)
	return remSlots{buf: buf, bits: r, mask: ones(r)}
}

// read8 returns the 8 bytes of buf starting at byteOff as a
// little-endian uint64.
func (s *remSlots) read8(byteOff uint) uint64 {
	var v uint64
	for i := uint(0); i < 8; i++ {
		v |= uint64(s.buf[byteOff+i]) << (8 * i)
	}
	return v
}

// write8 stores v's low 8 bytes into buf starting at byteOff, little
// endian.
func (s *remSlots) write8(byteOff uint, v uint64) {
	for i := uint(0); i < 8; i++ {
		s.buf[byteOff+i] = byte(v >> (8 * i))
	}
}

func (s *remSlots) get(slot uint) uint64 {
	b := slot * s.bits
	return s.read8(b/8) >> (b % 8) & s.mask
}

func (s *remSlots) put(slot uint, v uint64) {
	b := slot * s.bits
	n, o := b/8, b%8
	cur := s.read8(n)        // read the existing 8 bytes at n
	cur &^= s.mask << o      // clear the bits we're about to set
	cur |= v & s.mask << o   // set the bits from v
	s.write8(n, cur)         // write it back
}
