package packedmap

import "hash/maphash"

// HashFunc computes a 64-bit digest for a key. A Map reduces the digest
// modulo its current bucket count; callers supplying their own HashFunc via
// WithHash do not need to worry about the low bits being low-quality, since
// the reduction is a plain modulo, not a mask.
type HashFunc[K comparable] func(K) uint64

// defaultHashFunc returns the map's default hash function: maphash over the
// key's comparable representation, seeded once per Map so that two Maps of
// the same key type don't share a seed (and so hash-flooding one doesn't
// predict collisions in the other).
func defaultHashFunc[K comparable]() HashFunc[K] {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		return maphash.Comparable(seed, k)
	}
}
