package fiber

import "testing"

func TestFiberPoolAcquireAllocatesWhenEmpty(t *testing.T) {
	p := newFiberPool(2)
	allocCalls := 0
	f := p.acquire(func() *Fiber {
		allocCalls++
		return newFiber(1, &StackMemory{Buf: make([]byte, 16)})
	})
	if f == nil || allocCalls != 1 {
		t.Fatalf("allocCalls=%d, want 1", allocCalls)
	}
}

func TestFiberPoolReleaseRespectsMax(t *testing.T) {
	p := newFiberPool(1)
	f1 := newFiber(1, &StackMemory{Buf: make([]byte, 16)})
	f2 := newFiber(2, &StackMemory{Buf: make([]byte, 16)})

	if !p.release(f1) {
		t.Fatalf("release of first fiber should succeed under max")
	}
	if p.release(f2) {
		t.Fatalf("release of second fiber should fail, pool is at max 1")
	}
	if p.size() != 1 {
		t.Fatalf("size=%d, want 1", p.size())
	}
}

func TestFiberPoolAcquireReusesReleased(t *testing.T) {
	p := newFiberPool(4)
	f := newFiber(7, &StackMemory{Buf: make([]byte, 16)})
	p.release(f)

	allocCalls := 0
	got := p.acquire(func() *Fiber {
		allocCalls++
		return nil
	})
	if got != f || allocCalls != 0 {
		t.Fatalf("acquire did not reuse the released fiber")
	}
}

func TestFiberPoolDrainAllEmptiesFreeList(t *testing.T) {
	p := newFiberPool(4)
	p.release(newFiber(1, &StackMemory{Buf: make([]byte, 16)}))
	p.release(newFiber(2, &StackMemory{Buf: make([]byte, 16)}))

	drained := p.drainAll()
	if len(drained) != 2 {
		t.Fatalf("drainAll returned %d fibers, want 2", len(drained))
	}
	if p.size() != 0 {
		t.Fatalf("size=%d after drainAll, want 0", p.size())
	}
}
