// Package packedmap implements an unordered hash map that never touches the
// general-purpose allocator on its hot paths. Every live key/value pair
// lives in one of two fixed-capacity, densely packed slabs ("stack pools"):
// one pool of bare Entry[K,V] values, holding a bucket's lone key or the
// last key of a chain, and one pool of node[K,V] values (an Entry plus a
// forward pointer) holding every other position of a chain. A bucket is a
// single machine word: its low
// two bits record whether the word addresses a bare entry or a node, so a
// bucket transitioning between states never allocates or frees a Bucket
// object of its own.
//
// This trades the open-addressing, SIMD-friendly design most production Go
// hash maps favor for separate chaining over packed pools. The payoff is
// that deleting an entry is always an O(1) pool-compaction operation with no
// tombstones and no periodic "clean up the graveyard" rehash, at the cost of
// pointer-chasing on collision and no SIMD probe sequence. Good fit for
// workloads with many short-lived maps or heavy insert/delete churn at a
// stable size; a poor fit for anything latency-sensitive on long collision
// chains, since there is no bound on chain length besides the load factor.
//
// A Map is not safe for concurrent use, holds no stable addresses across
// mutating calls, and does not support ordered iteration.
package packedmap
