// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package packedmap

import (
	"fmt"
	"iter"
	"unsafe"
)

const defaultMaxLoadFactor = 1.0
const minPoolCapacity = 64
const targetPoolBytes = 1 << 20 // 1MiB

// Map is an unordered hash map from comparable keys K to values V. Every
// live entry lives in one of two fixed-capacity stack pools (see pool.go,
// cascade.go); buckets encode which pool a key lives in, and whether it is
// alone in its bucket or chained, using the low two bits of a single
// pointer-sized word (see bucket.go).
//
// A Map is not safe for concurrent use. It holds no stable addresses: a
// pointer returned by GetOrInsert is valid only until the next call that
// mutates the Map (Erase, Clear, Rehash, or a GetOrInsert that triggers a
// rehash). Iteration order is unspecified and may change across any
// mutating call.
type Map[K comparable, V any] struct {
	buckets []bucket[K, V]

	entries *cascadePool[Entry[K, V]]
	nodes   *cascadePool[node[K, V]]

	hash HashFunc[K]

	count          int
	maxLoadFactor  float64
	poolCapacity   int
	entryAllocator PoolAllocator[Entry[K, V]]
}

// New constructs an empty Map with initialBucketCount buckets (clamped to
// at least 1).
func New[K comparable, V any](initialBucketCount int, opts ...option[K, V]) *Map[K, V] {
	if initialBucketCount < 1 {
		initialBucketCount = 1
	}

	m := &Map[K, V]{
		buckets:       make([]bucket[K, V], initialBucketCount),
		maxLoadFactor: defaultMaxLoadFactor,
	}
	for _, o := range opts {
		o.apply(m)
	}
	if m.maxLoadFactor <= 0 {
		panic("packedmap: WithMaxLoadFactor requires f > 0")
	}
	if m.hash == nil {
		m.hash = defaultHashFunc[K]()
	}
	if m.entryAllocator == nil {
		m.entryAllocator = defaultPoolAllocator[Entry[K, V]]{}
	}

	entryCap := m.poolCapacity
	if entryCap <= 0 {
		entryCap = defaultPoolCapacity[Entry[K, V]]()
	}
	nodeCap := m.poolCapacity
	if nodeCap <= 0 {
		nodeCap = defaultPoolCapacity[node[K, V]]()
	}

	m.entries = newCascadePool[Entry[K, V]](entryCap, m.entryAllocator)
	m.nodes = newCascadePool[node[K, V]](nodeCap, defaultPoolAllocator[node[K, V]]{})
	return m
}

func defaultPoolCapacity[T any]() int {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		size = 1
	}
	n := targetPoolBytes / size
	if n < minPoolCapacity {
		n = minPoolCapacity
	}
	return n
}

func (m *Map[K, V]) bucketIndex(k K, n int) int {
	return int(m.hash(k) % uint64(n))
}

func (m *Map[K, V]) nextBucketCount() int {
	return 2*len(m.buckets) + 1
}

// GetOrInsert returns a pointer to the value for k, inserting a
// zero-valued entry first if k is absent. The returned pointer is valid
// only until the Map's next mutating call.
func (m *Map[K, V]) GetOrInsert(k K) (*V, error) {
	idx := m.bucketIndex(k, len(m.buckets))
	if e := m.buckets[idx].search(k); e != nil {
		return &e.Value, nil
	}

	if m.LoadFactor() >= m.maxLoadFactor {
		if err := m.rehash(m.nextBucketCount()); err != nil {
			return nil, err
		}
		idx = m.bucketIndex(k, len(m.buckets))
	}

	b := &m.buckets[idx]
	var value *V
	if b.isEmpty() {
		slot, err := m.entries.allocate()
		if err != nil {
			return nil, err
		}
		*slot = Entry[K, V]{Key: k}
		b.insertEntry(slot)
		value = &slot.Value
	} else {
		slot, err := m.nodes.allocate()
		if err != nil {
			return nil, err
		}
		*slot = node[K, V]{entry: Entry[K, V]{Key: k}}
		b.insertNode(slot)
		value = &slot.entry.Value
	}

	m.count++
	tracef("packedmap: inserted key into bucket %d, count=%d\n", idx, m.count)
	if invariants {
		m.checkInvariants()
	}
	return value, nil
}

// Get returns the value for k and true, or the zero value and false if k
// is absent.
func (m *Map[K, V]) Get(k K) (V, bool) {
	idx := m.bucketIndex(k, len(m.buckets))
	if e := m.buckets[idx].search(k); e != nil {
		return e.Value, true
	}
	var zero V
	return zero, false
}

// At returns the value for k, or ErrNotFound if k is absent.
func (m *Map[K, V]) At(k K) (V, error) {
	v, ok := m.Get(k)
	if !ok {
		return v, ErrNotFound
	}
	return v, nil
}

// Count returns 1 if k is present and 0 otherwise. It exists to mirror the
// associative-container convention of a multiplicity-returning Count; this
// Map never holds more than one value per key.
func (m *Map[K, V]) Count(k K) int {
	if _, ok := m.Get(k); ok {
		return 1
	}
	return 0
}

// Erase removes k if present, returning 1, or 0 if k was absent.
func (m *Map[K, V]) Erase(k K) int {
	idx := m.bucketIndex(k, len(m.buckets))
	b := &m.buckets[idx]
	e := b.search(k)
	if e == nil {
		return 0
	}

	wasEntry, demote := b.remove(unsafe.Pointer(e))
	if wasEntry {
		m.destroyEntry(e)
	} else {
		// e is &n.entry for the node n that search matched; entry is n's
		// first field, so e's address is also n's address.
		m.destroyNode((*node[K, V])(unsafe.Pointer(e)))
	}

	if demote != nil {
		replacement, err := m.entries.allocate()
		if err != nil {
			// Erase has no documented failure mode for allocation exhaustion:
			// this path only triggers under genuine OOM, at which point the
			// program has bigger problems than a clean error return.
			panic("packedmap: " + err.Error())
		}
		*replacement = demote.entry
		b.patchEntry(unsafe.Pointer(demote), unsafe.Pointer(replacement))
		m.destroyNode(demote)
	}

	m.count--
	tracef("packedmap: erased key from bucket %d, count=%d\n", idx, m.count)
	if invariants {
		m.checkInvariants()
	}
	return 1
}

// destroyEntry frees ptr from the entry pool and repairs whichever
// bucket's back-reference the resulting compaction invalidated.
func (m *Map[K, V]) destroyEntry(ptr *Entry[K, V]) {
	relocatedFrom := m.entries.destroy(ptr)
	if relocatedFrom == nil {
		return
	}
	j := m.bucketIndex(ptr.Key, len(m.buckets))
	m.buckets[j].patchEntry(unsafe.Pointer(relocatedFrom), unsafe.Pointer(ptr))
}

// destroyNode frees ptr from the node pool and repairs whichever bucket's
// back-reference the resulting compaction invalidated.
func (m *Map[K, V]) destroyNode(ptr *node[K, V]) {
	relocatedFrom := m.nodes.destroy(ptr)
	if relocatedFrom == nil {
		return
	}
	j := m.bucketIndex(ptr.entry.Key, len(m.buckets))
	m.buckets[j].patchNode(unsafe.Pointer(relocatedFrom), unsafe.Pointer(ptr))
}

// Clear removes every key, releasing pool slots but not the pools
// themselves.
func (m *Map[K, V]) Clear() {
	m.entries.destroyAll()
	m.nodes.destroyAll()
	for i := range m.buckets {
		m.buckets[i] = bucket[K, V]{}
	}
	m.count = 0
}

// Close releases all pool storage back through the configured allocators.
// A Map must not be used after Close.
func (m *Map[K, V]) Close() {
	m.entries.close()
	m.nodes.close()
	m.buckets = nil
}

// Len returns the number of keys in the Map.
func (m *Map[K, V]) Len() int { return m.count }

// Empty reports whether the Map holds no keys.
func (m *Map[K, V]) Empty() bool { return m.count == 0 }

// BucketCount returns the current number of buckets.
func (m *Map[K, V]) BucketCount() int { return len(m.buckets) }

// LoadFactor returns Len() / BucketCount().
func (m *Map[K, V]) LoadFactor() float64 {
	return float64(m.count) / float64(len(m.buckets))
}

// MaxLoadFactor returns the load factor threshold that triggers a rehash.
func (m *Map[K, V]) MaxLoadFactor() float64 { return m.maxLoadFactor }

// SetMaxLoadFactor changes the load factor threshold. It returns
// ErrInvalidLoadFactor for f <= 0 and does not itself trigger a rehash,
// even if the new threshold is already exceeded; the next insert will.
func (m *Map[K, V]) SetMaxLoadFactor(f float64) error {
	if f <= 0 {
		return ErrInvalidLoadFactor
	}
	m.maxLoadFactor = f
	return nil
}

// Rehash grows the bucket table to at least n buckets, redistributing every
// key. It is a no-op if n is not greater than the current bucket count.
func (m *Map[K, V]) Rehash(n int) error {
	if n <= len(m.buckets) {
		return nil
	}
	return m.rehash(n)
}

// rehash drains every live key into a temporary buffer, builds a fresh
// bucket table of size n, and reinserts every key into it. If an allocation
// fails part-way, it refills the current table from the buffer and returns
// the error, leaving the bucket count unchanged. This trades a
// transient O(count) buffer for a far simpler implementation than a
// two-pass, non-copying rehash that must track mid-flight relocations
// (which requires journaling to undo safely on an OOM part-way through);
// see DESIGN.md for why that tradeoff was chosen.
func (m *Map[K, V]) rehash(n int) error {
	type pair struct {
		key K
		val V
	}

	buf := make([]pair, 0, m.count)
	m.entries.each(func(e *Entry[K, V]) bool {
		buf = append(buf, pair{e.Key, e.Value})
		return true
	})
	m.nodes.each(func(nd *node[K, V]) bool {
		buf = append(buf, pair{nd.entry.Key, nd.entry.Value})
		return true
	})

	fill := func(buckets []bucket[K, V]) error {
		m.entries.destroyAll()
		m.nodes.destroyAll()
		for _, p := range buf {
			idx := m.bucketIndex(p.key, len(buckets))
			b := &buckets[idx]
			if b.isEmpty() {
				slot, err := m.entries.allocate()
				if err != nil {
					return err
				}
				*slot = Entry[K, V]{Key: p.key, Value: p.val}
				b.insertEntry(slot)
			} else {
				slot, err := m.nodes.allocate()
				if err != nil {
					return err
				}
				*slot = node[K, V]{entry: Entry[K, V]{Key: p.key, Value: p.val}}
				b.insertNode(slot)
			}
		}
		return nil
	}

	newBuckets := make([]bucket[K, V], n)
	if err := fill(newBuckets); err != nil {
		// Under the old bucket count the keys split between the two pools
		// exactly as they did before the drain, so refilling the old table
		// fits in slots the pools already have.
		clear(m.buckets)
		_ = fill(m.buckets)
		return err
	}

	m.buckets = newBuckets
	tracef("packedmap: rehashed to %d buckets, count=%d\n", n, m.count)
	if invariants {
		m.checkInvariants()
	}
	return nil
}

// All returns an iterator over every key/value pair in the Map. Order is
// unspecified. Mutating the Map during iteration is not supported.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.buckets {
			if !m.buckets[i].forEach(func(e *Entry[K, V]) bool {
				return yield(e.Key, e.Value)
			}) {
				return
			}
		}
	}
}

// checkInvariants walks every bucket and panics if anything is out of
// shape: every key lives in its own correct bucket exactly once, bucket
// tags agree with chain length, and the pool-wide live count matches Len().
func (m *Map[K, V]) checkInvariants() {
	seen := make(map[K]bool, m.count)
	total := 0

	for i := range m.buckets {
		b := &m.buckets[i]
		length := 0
		b.forEach(func(e *Entry[K, V]) bool {
			if seen[e.Key] {
				panic(fmt.Sprintf("packedmap: key %v appears more than once", e.Key))
			}
			seen[e.Key] = true
			length++
			if j := m.bucketIndex(e.Key, len(m.buckets)); j != i {
				panic(fmt.Sprintf("packedmap: key %v lives in bucket %d, wants %d", e.Key, i, j))
			}
			return true
		})
		total += length

		switch {
		case length == 0 && !b.isEmpty():
			panic(fmt.Sprintf("packedmap: bucket %d is empty but not tagged empty", i))
		case length == 1 && !b.isSingle():
			panic(fmt.Sprintf("packedmap: bucket %d holds one key but is not tagged single", i))
		case length >= 2 && !b.isChained():
			panic(fmt.Sprintf("packedmap: bucket %d holds %d keys but is not tagged chained", i, length))
		}
	}

	if total != m.count {
		panic(fmt.Sprintf("packedmap: counted %d live keys, Len() reports %d", total, m.count))
	}
	if live := m.entries.len() + m.nodes.len(); live != m.count {
		panic(fmt.Sprintf("packedmap: pools hold %d live slots, Len() reports %d", live, m.count))
	}
}
