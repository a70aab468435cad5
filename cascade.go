package packedmap

// PoolAllocator supplies backing storage for a stack pool. The default
// implementation wraps make()/a no-op free; a caller-supplied allocator can
// back pools with externally managed memory as long as a slice returned by
// AllocSlots is safe to pass back to FreeSlots unmodified in length.
type PoolAllocator[T any] interface {
	AllocSlots(n int) []T
	FreeSlots([]T)
}

type defaultPoolAllocator[T any] struct{}

func (defaultPoolAllocator[T]) AllocSlots(n int) []T { return make([]T, n) }
func (defaultPoolAllocator[T]) FreeSlots([]T)        {}

// cascadePool aggregates an unbounded number of live objects across a
// sequence of fixed-capacity stack pools. The first element of pools is
// always the "hot" pool: allocate tries it first, and whichever pool
// allocate actually succeeds against (including a freshly created one) is
// swapped to the front, so the next allocation hits it directly without a
// linear scan.
type cascadePool[T any] struct {
	pools     []*stackPool[T]
	capacity  int
	allocator PoolAllocator[T]
}

func newCascadePool[T any](capacity int, allocator PoolAllocator[T]) *cascadePool[T] {
	if allocator == nil {
		allocator = defaultPoolAllocator[T]{}
	}
	return &cascadePool[T]{capacity: capacity, allocator: allocator}
}

// allocate returns the address of a fresh slot, creating a new pool if
// every existing pool is full. The only failure mode is the new pool's
// backing slice failing to allocate.
func (c *cascadePool[T]) allocate() (*T, error) {
	for i, p := range c.pools {
		if v := p.allocate(); v != nil {
			c.swapToFront(i)
			return v, nil
		}
	}

	p, err := c.newPool()
	if err != nil {
		return nil, err
	}
	c.pools = append(c.pools, p)
	c.swapToFront(len(c.pools) - 1)
	return c.pools[0].allocate(), nil
}

func (c *cascadePool[T]) newPool() (p *stackPool[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, ErrCapacityExhausted
		}
	}()
	return newStackPool(c.capacity, c.allocator), nil
}

func (c *cascadePool[T]) swapToFront(i int) {
	c.pools[0], c.pools[i] = c.pools[i], c.pools[0]
}

// destroy locates the pool that owns ptr and forwards to its destroy,
// returning the relocated-from address exactly as stackPool.destroy does.
func (c *cascadePool[T]) destroy(ptr *T) *T {
	for _, p := range c.pools {
		if p.owns(ptr) {
			return p.destroy(ptr)
		}
	}
	panic("packedmap: destroy of pointer not owned by any pool")
}

// destroyAll empties every pool at once. The pools and their backing arrays
// are kept for reuse; nothing is released through the allocator.
func (c *cascadePool[T]) destroyAll() {
	for _, p := range c.pools {
		p.destroyAll()
	}
}

// close releases every pool's backing storage through the allocator and
// leaves the cascadePool empty.
func (c *cascadePool[T]) close() {
	for _, p := range c.pools {
		c.allocator.FreeSlots(p.slots)
	}
	c.pools = nil
}

// each calls yield for every live object across every pool, stopping early
// if yield returns false.
func (c *cascadePool[T]) each(yield func(*T) bool) bool {
	for _, p := range c.pools {
		for i := 0; i < p.len(); i++ {
			if !yield(p.at(i)) {
				return false
			}
		}
	}
	return true
}

func (c *cascadePool[T]) len() int {
	n := 0
	for _, p := range c.pools {
		n += p.len()
	}
	return n
}
