package aamf

import "github.com/aviddiviner/go-murmur"

// Hasher is the external collaborator that turns an element into the
// bits a filter derives its quotient, remainder, and extension or
// selector material from. Only the contract matters to the filters:
// deterministic per seed, and uniform enough that quotients and
// remainders don't cluster. Neither variant cares how the bits were
// produced, so callers may substitute their own for testing.
type Hasher interface {
	// Hash64 returns a single 64-bit value derived from elt and seed.
	// The low q bits become the quotient, the next r bits the
	// remainder, and any bits above q+r feed extensions or selectors.
	Hash64(elt uint64, seed uint32) uint64
}

// defaultHasher hashes with MurmurHash64A, the same mixer family the
// reference quotient filter keys every slot with (MurmurHash3_x64_128,
// seeded per filter instance) — the filters here only ever consume 64
// bits per the hash contract, so the 64-bit variant is enough.
type defaultHasher struct{}

// DefaultHasher is used when no Hasher is supplied to a filter
// constructor.
var DefaultHasher Hasher = defaultHasher{}

func (defaultHasher) Hash64(elt uint64, seed uint32) uint64 {
	var buf [8]byte
	buf[0] = byte(elt)
	buf[1] = byte(elt >> 8)
	buf[2] = byte(elt >> 16)
	buf[3] = byte(elt >> 24)
	buf[4] = byte(elt >> 32)
	buf[5] = byte(elt >> 40)
	buf[6] = byte(elt >> 48)
	buf[7] = byte(elt >> 56)
	return murmur.MurmurHash64A(buf[:], uint64(seed))
}
