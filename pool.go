package packedmap

import "unsafe"

// stackPool is a fixed-capacity slab of T whose live slots always occupy
// the contiguous prefix [0, size) of the backing array. Destroying any slot
// moves the current top slot down into the vacated position, so allocate
// and destroy are both O(1) and iteration never has to skip holes.
type stackPool[T any] struct {
	slots []T
	size  int
}

func newStackPool[T any](capacity int, alloc PoolAllocator[T]) *stackPool[T] {
	return &stackPool[T]{slots: alloc.AllocSlots(capacity)}
}

func (p *stackPool[T]) capacity() int { return len(p.slots) }
func (p *stackPool[T]) len() int      { return p.size }
func (p *stackPool[T]) full() bool    { return p.size == len(p.slots) }

// allocate returns the address of a fresh slot, or nil if the pool is full.
func (p *stackPool[T]) allocate() *T {
	if p.full() {
		return nil
	}
	s := &p.slots[p.size]
	p.size++
	return s
}

// owns reports whether ptr addresses a currently live slot in this pool.
func (p *stackPool[T]) owns(ptr *T) bool {
	if p.size == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	addr := uintptr(unsafe.Pointer(ptr))
	top := base + uintptr(p.size)*unsafe.Sizeof(p.slots[0])
	return addr >= base && addr < top
}

func (p *stackPool[T]) indexOf(ptr *T) int {
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	addr := uintptr(unsafe.Pointer(ptr))
	return int((addr - base) / unsafe.Sizeof(p.slots[0]))
}

// destroy removes the slot at ptr, compacting the pool by moving the
// current top slot into the vacated position if ptr wasn't already the top
// slot. It returns the address the relocated slot used to occupy — callers
// holding a back-reference to that address must repair it to point at ptr
// instead — or nil if nothing moved.
func (p *stackPool[T]) destroy(ptr *T) *T {
	idx := p.indexOf(ptr)
	last := p.size - 1

	var relocatedFrom *T
	if idx != last {
		p.slots[idx] = p.slots[last]
		relocatedFrom = &p.slots[last]
	}

	var zero T
	p.slots[last] = zero
	p.size = last
	return relocatedFrom
}

// destroyAll resets the pool to empty without releasing its backing array.
func (p *stackPool[T]) destroyAll() {
	var zero T
	for i := 0; i < p.size; i++ {
		p.slots[i] = zero
	}
	p.size = 0
}

func (p *stackPool[T]) at(i int) *T { return &p.slots[i] }
