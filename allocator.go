package fiber

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// sentinelByte fills a freshly allocated scratch buffer when debug
// watermark tracking is enabled. Grounded on the magic-byte / header
// validation idiom in other_examples/OpenListTeam-...__alloc_mempool.go,
// repurposed here from use-after-free detection to stack-depth scanning.
const sentinelByte = 0xFC

// StackMemory is a fiber's auxiliary scratch buffer. The real goroutine
// stack backing a fiber is owned and grown by the Go runtime and is not
// reachable from user code; StackMemory stands in for the "fixed-size
// stack buffer" the spec's data model (§3) assigns to each Fiber, and is
// what the guard-paged allocator and the debug watermark scanner operate
// on (see SPEC_FULL.md §3 "Representation notes").
type StackMemory struct {
	Buf  []byte
	free func()
}

// Release returns the underlying memory to the OS/runtime. Safe to call on
// a zero-value StackMemory (no-op) and more than once.
func (s *StackMemory) Release() {
	if s == nil || s.free == nil {
		return
	}
	f := s.free
	s.free = nil
	f()
}

// StackAllocator allocates and frees fixed-size fiber scratch buffers
// (§4.1). Two implementations are provided: HeapAllocator (plain make) and
// GuardedAllocator (one inaccessible guard page below the buffer).
type StackAllocator interface {
	Alloc(size uint32) (*StackMemory, error)
}

// HeapAllocator is the plain heap-backed allocator.
type HeapAllocator struct{}

// Alloc allocates size bytes from the Go heap.
func (HeapAllocator) Alloc(size uint32) (*StackMemory, error) {
	return &StackMemory{Buf: make([]byte, size)}, nil
}

// GuardedAllocator places one inaccessible page immediately below each
// allocated buffer so that an overflowing write into the guard page faults
// instead of silently corrupting adjacent memory. Grounded on
// other_examples/andypeng2015-tinygo__task_stack_unicore.go's stack-canary
// overflow check, implemented here as a hardware fault via mmap/mprotect
// rather than a software canary comparison, per spec §4.1's "detects
// overflow via fault" requirement.
type GuardedAllocator struct {
	pageSize int
}

// NewGuardedAllocator constructs a GuardedAllocator using the host's page size.
func NewGuardedAllocator() *GuardedAllocator {
	return &GuardedAllocator{pageSize: os.Getpagesize()}
}

// Alloc mmaps size bytes plus one guard page and protects the guard page.
func (g *GuardedAllocator) Alloc(size uint32) (*StackMemory, error) {
	pageSize := g.pageSize
	if pageSize <= 0 {
		pageSize = os.Getpagesize()
	}
	total := int(size) + pageSize
	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("fiber: mmap stack: %w", err)
	}
	if err := unix.Mprotect(mapping[:pageSize], unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mapping)
		return nil, fmt.Errorf("fiber: mprotect guard page: %w", err)
	}
	buf := mapping[pageSize:]
	return &StackMemory{
		Buf: buf,
		free: func() {
			_ = unix.Munmap(mapping)
		},
	}, nil
}
