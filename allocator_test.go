package fiber

import "testing"

func TestHeapAllocatorAllocSize(t *testing.T) {
	a := HeapAllocator{}
	sm, err := a.Alloc(4096)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(sm.Buf) != 4096 {
		t.Fatalf("len(Buf)=%d, want 4096", len(sm.Buf))
	}
	sm.Release() // no-op for HeapAllocator, must not panic
}

func TestStackMemoryReleaseIsIdempotent(t *testing.T) {
	called := 0
	sm := &StackMemory{Buf: make([]byte, 8), free: func() { called++ }}
	sm.Release()
	sm.Release()
	if called != 1 {
		t.Fatalf("free called %d times, want 1", called)
	}
}

func TestStackMemoryReleaseOnNilIsSafe(t *testing.T) {
	var sm *StackMemory
	sm.Release() // must not panic
}

func TestGuardedAllocatorAllocSize(t *testing.T) {
	g := NewGuardedAllocator()
	sm, err := g.Alloc(4096)
	if err != nil {
		t.Skipf("mmap unavailable in this environment: %v", err)
	}
	defer sm.Release()
	if len(sm.Buf) != 4096 {
		t.Fatalf("len(Buf)=%d, want 4096", len(sm.Buf))
	}
}
