package fiber

// fiberPool is a bounded free-list of StateInvalid fibers with preserved
// scratch buffers (§4.3). Unlike remoteTaskQueue/remoteReadyQueue, the pool
// is touched only from the scheduler's owning goroutine (see the
// thread-safety matrix in SPEC_FULL.md §5), so — in contrast to the
// teacher's CAS-based parked-goroutine stack in pool.go/stack.go, which
// itogami needs because any goroutine can call Submit — this free list is
// a plain Go slice used stack-wise (LIFO, for cache-warmth, matching the
// teacher's own "using a stack keeps cpu caches warm" comment).
type fiberPool struct {
	free []*Fiber
	max  uint32

	allocated uint64
}

func newFiberPool(max uint32) *fiberPool {
	return &fiberPool{max: max}
}

// acquire pops a pooled fiber, or allocates a fresh one via alloc if the
// pool is empty. alloc is responsible for incrementing fibersAllocated
// bookkeeping on the manager; acquire itself only manages the free list.
func (p *fiberPool) acquire(alloc func() *Fiber) *Fiber {
	n := len(p.free)
	if n == 0 {
		return alloc()
	}
	f := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return f
}

// release pushes f back onto the free list if there's room, otherwise
// returns false so the caller can destroy f and decrement fibersAllocated.
// Per §4.3, f must already be StateInvalid with its scratch buffer intact.
func (p *fiberPool) release(f *Fiber) bool {
	if uint32(len(p.free)) >= p.max {
		return false
	}
	p.free = append(p.free, f)
	return true
}

func (p *fiberPool) size() int {
	return len(p.free)
}

// drainAll empties the free list, returning every pooled fiber so the
// caller can release their scratch buffers. Used by FiberManager.Close.
func (p *fiberPool) drainAll() []*Fiber {
	out := p.free
	p.free = nil
	return out
}
