package fiber

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sync/atomic"
)

// State is a Fiber's position in its lifecycle (§3).
type State int32

const (
	// StateInvalid is the state of a destroyed or not-yet-initialized Fiber,
	// and of every Fiber sitting idle in the pool.
	StateInvalid State = iota
	// StateNotStarted means prepare() has installed a task but the backing
	// goroutine has not yet been launched.
	StateNotStarted
	// StateReady means the fiber is sitting in the scheduler's ready queue.
	StateReady
	// StateAwaiting means the fiber called Await and is suspended, detached
	// from the scheduler, waiting for an external wake via remoteReadyInsert.
	StateAwaiting
	// StateYielded means the fiber bounced to main context via
	// RunInMainContext and is waiting for its immediate function to run.
	StateYielded
	// StateCompleted means the task functor has returned or panicked; the
	// fiber is ready to be reset and released to the pool.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "Invalid"
	case StateNotStarted:
		return "NotStarted"
	case StateReady:
		return "Ready"
	case StateAwaiting:
		return "Awaiting"
	case StateYielded:
		return "Yielded"
	case StateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// Task is the type-erased functor a Fiber runs. It matches the void()
// signature the spec's data model assigns to the task functor (§3); a
// caller wanting a result reports it through a closure capture, a Baton
// (see the baton subpackage), or RunInMainContext's generic return value.
type Task func()

// Fiber owns one stack-bearing execution context: a backing goroutine, its
// saved handoff channels, fiber-local storage, and the intrusive list hook
// for the lock-free remote-ready queue (the local ready queue is a deque and
// needs no hook in the fiber). See
// SPEC_FULL.md §1 for why a Fiber is realized as a park/wake-able real
// goroutine rather than a raw ucontext swap.
type Fiber struct {
	id uint64

	// mgr is set by FiberManager.acquireFiber and read by trampoline to bind
	// this fiber's backing goroutine into the thread-local engine registry
	// (registry.go) for the duration of the task.
	mgr   *FiberManager
	state State

	task    Task
	finally func(Try)
	exc     error

	locals map[reflect.Type]any

	// handoff channels: exactly one of {main-context goroutine,
	// this fiber's backing goroutine} ever runs at a time per manager.
	resumeCh chan struct{}
	doneCh   chan struct{}
	started  bool

	// goroutineID is the id of this fiber's backing goroutine, recorded once
	// it starts running. Because the engine hands control back and forth
	// between exactly one of {the owning goroutine, this goroutine} at a
	// time, code running on it is — for assertOwningGoroutine's purposes —
	// just as much "on the owning thread" as the manager's creator: see
	// DESIGN.md for why a fixed single goroutine id
	// isn't enough to recognize that.
	goroutineID int64

	// set by Await/RunInMainContext while the fiber is suspended; read by
	// the scheduler's dispatch step on main context, then cleared.
	awaitFunc     func(*Fiber)
	immediateFunc func()

	// onFirstSwitchIn backs addTaskReadyFunc: invoked on main context
	// immediately before the fiber's first switchIn.
	onFirstSwitchIn func()

	// scratch is the auxiliary buffer described in SPEC_FULL.md §3; used
	// only for the optional debug high-watermark gauge.
	scratch *StackMemory

	// remoteNext is the intrusive list hook used by FiberManager's
	// lock-free remoteReadyQueue (§4.4). Untouched while the fiber is
	// anywhere else.
	remoteNext atomic.Pointer[Fiber]
}

func newFiber(id uint64, scratch *StackMemory) *Fiber {
	return &Fiber{
		id:       id,
		state:    StateInvalid,
		scratch:  scratch,
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// prepare binds task onto a pooled (StateInvalid) Fiber and transitions it
// to StateNotStarted. Idempotent only across distinct tasks after reset(),
// per §4.2.
func (f *Fiber) prepare(t Task) {
	if f.state != StateInvalid {
		panic(fmt.Sprintf("fiber: prepare called on fiber in state %s, want Invalid", f.state))
	}
	f.task = t
	f.state = StateNotStarted
}

// reset clears task, fiber-local data, and the exception slot, returning
// the fiber to StateInvalid so it may be pooled. The backing goroutine, if
// any, has already handed control back for the last time by the time reset
// is called (only reachable from StateCompleted); it may still be unwinding
// its deferred calls, but it no longer touches the fiber.
func (f *Fiber) reset() {
	f.task = nil
	f.finally = nil
	f.exc = nil
	f.locals = nil
	f.awaitFunc = nil
	f.immediateFunc = nil
	f.onFirstSwitchIn = nil
	f.started = false
	f.state = StateInvalid
}

// switchIn runs on main context. It hands control to the fiber's backing
// goroutine (launching it on first use) and blocks until that goroutine
// yields back via switchOut. Postcondition per §4.2: f.state is one of
// Awaiting, Yielded, or Completed.
func (f *Fiber) switchIn() {
	if f.onFirstSwitchIn != nil {
		fn := f.onFirstSwitchIn
		f.onFirstSwitchIn = nil
		fn()
	}
	if !f.started {
		f.started = true
		go f.trampoline()
	} else {
		f.resumeCh <- struct{}{}
	}
	<-f.doneCh
}

// switchOut runs on the fiber's own backing goroutine. It hands control
// back to whoever is blocked in switchIn, then — unless the fiber just
// completed — blocks until switchIn sends on resumeCh again. Because this
// is an ordinary Go function call rather than a raw stack swap, the fiber's
// Go call stack is preserved across the suspension for free; execution
// resumes exactly where switchOut returns.
func (f *Fiber) switchOut() {
	// Read the state before handing control back: once doneCh is sent on,
	// main context may reset or re-prepare this fiber.
	completed := f.state == StateCompleted
	f.doneCh <- struct{}{}
	if !completed {
		<-f.resumeCh
	}
}

// trampoline is the fiber's entry point, launched as a goroutine by
// switchIn on first use. It never returns control via a normal return —
// per §4.2 the trampoline "never returns" — it only exits by sending once
// more on doneCh from within switchOut's Completed branch, at which point
// the goroutine itself ends.
func (f *Fiber) trampoline() {
	f.goroutineID = currentGoroutineID()
	if f.mgr != nil {
		bindGoroutine(f.goroutineID, f.mgr)
		defer unbindGoroutine(f.goroutineID)
	}
	defer func() {
		if r := recover(); r != nil {
			f.exc = &TaskException{Value: r, Stack: debug.Stack()}
		}
		f.state = StateCompleted
		f.switchOut()
	}()
	f.task()
}

// snapshotLocals returns a fresh, independent copy of the fiber's local
// storage, suitable for installing on a child task submitted via
// addTaskRemote (§4.6, §8 invariant on fiber-local inheritance). Each
// entry is copied by value (not by reference), matching the
// "copy-constructible blob" requirement in §3.
func (f *Fiber) snapshotLocals() map[reflect.Type]any {
	if len(f.locals) == 0 {
		return nil
	}
	out := make(map[reflect.Type]any, len(f.locals))
	for t, v := range f.locals {
		out[t] = cloneLocalValue(v)
	}
	return out
}

func cloneLocalValue(v any) any {
	rv := reflect.ValueOf(v) // always a pointer, see localFor
	nv := reflect.New(rv.Type().Elem())
	nv.Elem().Set(rv.Elem())
	return nv.Interface()
}

// Exception returns the task exception captured by the trampoline, or nil
// if the task completed without panicking. Only meaningful once the fiber
// has reached StateCompleted.
func (f *Fiber) Exception() error {
	return f.exc
}

// ID returns the fiber's internal, manager-scoped identifier — useful for
// log correlation, never for identity comparison (use the *Fiber pointer).
func (f *Fiber) ID() uint64 {
	return f.id
}
