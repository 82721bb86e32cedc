// Package baton provides a single-waiter, single-fulfiller rendezvous
// primitive for suspending a fiber until exactly one external producer has
// a result ready (SPEC_FULL.md §4.6/§4.7).
//
// A Baton is the external collaborator a blocking call (an RPC client, a
// timer, a channel read) uses to park the calling fiber: the fiber's code
// calls Wait, which internally drives fiber.FiberManager.Await, and some
// other goroutine later calls Post once, which drives
// fiber.FiberManager.RemoteReadyInsert to resume it. It is a fiber-aware
// analogue of a sync.WaitGroup of size one — grounded on Folly's Baton
// (see original_source's fiber usage of folly::fibers::Baton) and, for the
// shape of "exactly one Post is legal, Wait may run before or after it",
// on the single-shot gate idiom in
// joeycumines-go-utilpkg/eventloop/promisify.go's one-resolution contract.
package baton

import (
	"sync"

	fiber "github.com/alphadose/fibermgr"
)

// Baton[T] is posted at most once and waited on at most once. It is not
// reusable; construct a fresh Baton for each rendezvous.
type Baton[T any] struct {
	mu        sync.Mutex
	posted    bool
	value     T
	fulfiller *Fiber
}

// Fiber is a type alias kept local to this package so call sites don't need
// to import the core package just to spell the Wait signature.
type Fiber = fiber.Fiber

// New constructs an unposted Baton.
func New[T any]() *Baton[T] {
	return &Baton[T]{}
}

// Post fulfills the Baton with value, waking the waiting fiber if Wait has
// already suspended it. Safe to call from any goroutine, including one
// unrelated to the FiberManager that owns the waiting fiber. Calling Post
// more than once panics.
func (b *Baton[T]) Post(m *fiber.FiberManager, value T) {
	b.mu.Lock()
	if b.posted {
		b.mu.Unlock()
		panic("baton: Post called twice on the same Baton")
	}
	b.posted = true
	b.value = value
	waiter := b.fulfiller
	b.mu.Unlock()

	if waiter != nil {
		m.RemoteReadyInsert(waiter)
	}
}

// Wait suspends the calling fiber until Post is called, then returns the
// posted value. Must be called from within a running fiber on m. If Post
// has already run by the time Wait is called, Wait returns immediately
// without suspending.
func (b *Baton[T]) Wait(m *fiber.FiberManager) T {
	b.mu.Lock()
	if b.posted {
		v := b.value
		b.mu.Unlock()
		return v
	}
	b.mu.Unlock()

	m.Await(func(f *fiber.Fiber) {
		b.mu.Lock()
		if b.posted {
			// Post raced ahead between our unlocked check and here; resume
			// immediately instead of recording ourselves as the fulfiller.
			b.mu.Unlock()
			m.RemoteReadyInsert(f)
			return
		}
		b.fulfiller = f
		b.mu.Unlock()
	})

	b.mu.Lock()
	v := b.value
	b.mu.Unlock()
	return v
}
