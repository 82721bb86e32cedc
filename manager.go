package fiber

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// FiberManager is the engine (§4): the single-threaded scheduler that owns a
// pool of fibers, a local ready queue, and the two lock-free cross-thread
// queues, and drives them through a LoopController. Exactly one goroutine —
// the owning goroutine (bound by the first owning-thread-only call), or
// whichever fiber currently holds the baton — may touch its
// owning-thread-only state at a time; see
// assertOwningGoroutine and SPEC_FULL.md §5's thread-safety matrix.
//
// Grounded on the teacher's Pool (pool.go) playing the same "owns a
// goroutine pool plus a submission surface" role, generalized from
// fire-and-forget goroutine reuse to suspend/resume fiber scheduling.
type FiberManager struct {
	opts Options

	// ownerGoroutineID is unbound (-1) until the first owning-thread-only
	// call binds it to whichever goroutine made that call. It is deliberately
	// not fixed to the goroutine that called NewFiberManager: with
	// loopctl.ChannelLoopController driving RunLoop from its own dedicated
	// goroutine, the "owning" goroutine is that loop goroutine, not
	// whichever one happened to construct the manager. See DESIGN.md.
	ownerGoroutineID atomic.Int64

	pool  *fiberPool
	ready *deque.Deque[*Fiber]

	remoteTasks remoteTaskQueue
	remoteReady remoteReadyQueue

	loop            LoopController
	isLoopScheduled atomic.Bool

	// current is the fiber presently running on this manager, or nil when
	// main context holds the baton. Written only by the owning goroutine,
	// immediately before a switchIn that hands control to that very fiber's
	// backing goroutine — so the fiber goroutine's read of it, once running,
	// is never concurrent with a write.
	current *Fiber

	offFiberLocals map[reflect.Type]any

	fibersAllocated    atomic.Int64
	fibersActive       atomic.Int64
	awaitingCount      atomic.Int64
	stackHighWatermark atomic.Uint64
	nextFiberID        atomic.Uint64

	exceptionCallback func(err error, description string)

	closed bool
}

// NewFiberManager constructs a FiberManager bound to loop, which is asked to
// drive RunLoop from here on (§6). The owning goroutine is not bound here;
// the first owning-thread-only call binds it. loop must not be nil.
func NewFiberManager(loop LoopController, opts ...Option) (*FiberManager, error) {
	if loop == nil {
		return nil, fmt.Errorf("fiber: NewFiberManager: loop controller is nil")
	}
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	m := &FiberManager{
		opts:              o,
		pool:              newFiberPool(o.MaxFibersPoolSize),
		ready:             deque.New[*Fiber](),
		loop:              loop,
		exceptionCallback: o.ExceptionCallback,
	}
	m.ownerGoroutineID.Store(-1)
	loop.SetFiberManager(m)
	return m, nil
}

// assertOwningGoroutine panics (when StrictMode is set) if the calling
// goroutine is neither the manager's owning goroutine nor the backing
// goroutine of the fiber currently running on it — the two ways, per this
// module's translation of "owning OS thread" into real goroutines, that a
// call can be on the engine's single logical thread of control (see the
// comment on Fiber.goroutineID). The owning goroutine itself is bound
// lazily, to whichever goroutine makes the first owning-thread-only call,
// rather than fixed at construction time. Outside StrictMode the violation
// is left as the spec's documented undefined behavior.
func (m *FiberManager) assertOwningGoroutine(op string) {
	gid := currentGoroutineID()
	if f := m.current; f != nil && gid == f.goroutineID {
		return
	}
	if m.ownerGoroutineID.CompareAndSwap(-1, gid) {
		bindGoroutine(gid, m)
		return
	}
	if gid == m.ownerGoroutineID.Load() {
		return
	}
	if m.opts.StrictMode {
		panic(fmt.Sprintf("%v: %s", ErrOwningThreadOnly, op))
	}
}

// acquireFiber pops a pooled fiber or allocates a fresh one, bumping the
// active-fiber gauge either way.
func (m *FiberManager) acquireFiber() *Fiber {
	f := m.pool.acquire(func() *Fiber {
		scratch, err := m.opts.allocator.Alloc(m.opts.StackSize)
		if err != nil {
			panic(fmt.Sprintf("fiber: stack allocation failed: %v", err))
		}
		if m.opts.DebugRecordStackUsed {
			fillSentinel(scratch.Buf)
		}
		id := m.nextFiberID.Add(1)
		nf := newFiber(id, scratch)
		m.fibersAllocated.Add(1)
		m.logFiberAllocated(nf)
		return nf
	})
	f.mgr = m
	m.fibersActive.Add(1)
	return f
}

// releaseFiber returns a StateInvalid fiber to the pool, or destroys it and
// frees its scratch buffer if the pool is already at capacity.
func (m *FiberManager) releaseFiber(f *Fiber) {
	m.fibersActive.Add(-1)
	if m.opts.DebugRecordStackUsed {
		m.recordWatermark(f)
		fillSentinel(f.scratch.Buf)
	}
	f.reset()
	if m.pool.release(f) {
		m.logFiberPooled(f)
		return
	}
	f.scratch.Release()
	m.fibersAllocated.Add(-1)
	m.logFiberDestroyed(f)
}

func (m *FiberManager) recordWatermark(f *Fiber) {
	buf := f.scratch.Buf
	used := 0
	for i, b := range buf {
		if b != sentinelByte {
			used = len(buf) - i
			break
		}
	}
	for {
		cur := m.stackHighWatermark.Load()
		if uint64(used) <= cur {
			return
		}
		if m.stackHighWatermark.CompareAndSwap(cur, uint64(used)) {
			return
		}
	}
}

func fillSentinel(buf []byte) {
	for i := range buf {
		buf[i] = sentinelByte
	}
}

// pushReady enqueues a StateReady fiber onto the local ready queue.
func (m *FiberManager) pushReady(f *Fiber) {
	m.ready.PushBack(f)
}

func (m *FiberManager) popReady() *Fiber {
	if m.ready.Len() == 0 {
		return nil
	}
	return m.ready.PopFront()
}

// scheduleLoop ensures the LoopController is asked to invoke RunLoop
// exactly once between now and the next time RunLoop actually runs (§4.5).
// isLoopScheduled is reset at the *end* of RunLoop rather than at entry —
// a deliberate deviation from the source's "reset at loop entry" wording,
// recorded in DESIGN.md, that avoids a synchronous LoopController
// recursing into itself when a running task calls AddTask.
func (m *FiberManager) scheduleLoop() {
	if m.isLoopScheduled.CompareAndSwap(false, true) {
		m.loop.Schedule()
	}
}

// AddTask submits t to run as a new fiber, with no completion continuation.
// Owning-thread only (§4.6).
func (m *FiberManager) AddTask(t Task) {
	m.addTaskInternal(t, nil, nil)
}

// AddTaskReadyFunc submits t, invoking ready on main context immediately
// before the new fiber's first switchIn. Owning-thread only.
func (m *FiberManager) AddTaskReadyFunc(t Task, ready func()) {
	m.addTaskInternal(t, nil, ready)
}

// AddTaskFinally submits t, routing its Try — success or exception — to
// finally once the fiber completes, instead of the manager's exception
// callback. Owning-thread only.
func (m *FiberManager) AddTaskFinally(t Task, finally func(Try)) {
	m.addTaskInternal(t, finally, nil)
}

func (m *FiberManager) addTaskInternal(t Task, finally func(Try), ready func()) {
	m.assertOwningGoroutine("AddTask")
	if m.closed {
		panic(ErrPoolShutdown)
	}
	f := m.acquireFiber()
	f.prepare(t)
	f.finally = finally
	f.onFirstSwitchIn = ready
	f.state = StateReady
	m.pushReady(f)
	m.scheduleLoop()
}

// AddTaskRemote submits t from any goroutine (§4.4). If the caller happens
// to be running on a fiber of this very manager, that fiber's local storage
// is deep-copied onto the new task per §4.6's cross-thread inheritance
// rule; a plain same-thread AddTask never copies locals, only
// AddTaskRemote does.
func (m *FiberManager) AddTaskRemote(t Task) {
	var locals map[reflect.Type]any
	if f := m.current; f != nil && currentGoroutineID() == f.goroutineID {
		locals = f.snapshotLocals()
	}
	m.remoteTasks.push(&remoteTask{task: t, locals: locals})
	m.loop.ScheduleThreadSafe()
}

// RemoteReadyInsert is the thread-safe wake hook an external synchronization
// primitive (see the baton subpackage) calls to resume a fiber previously
// suspended via Await (§4.6). Safe from any goroutine, including the one
// that is about to switch out the very fiber being woken.
func (m *FiberManager) RemoteReadyInsert(f *Fiber) {
	m.awaitingCount.Add(-1)
	gid := currentGoroutineID()
	if gid == m.ownerGoroutineID.Load() || (m.current != nil && gid == m.current.goroutineID) {
		f.state = StateReady
		m.pushReady(f)
		m.scheduleLoop()
		return
	}
	f.state = StateReady
	m.remoteReady.push(f)
	m.loop.ScheduleThreadSafe()
}

// Await suspends the calling fiber, invoking waitFn with the Fiber itself
// once it has been detached from the scheduler so waitFn can arrange a
// later RemoteReadyInsert call. Must be called from within a running fiber,
// on the owning goroutine's logical thread (§4.6).
func (m *FiberManager) Await(waitFn func(f *Fiber)) {
	m.assertOwningGoroutine("Await")
	f := m.current
	if f == nil {
		panic(ErrNotOnFiber)
	}
	f.awaitFunc = waitFn
	f.state = StateAwaiting
	f.switchOut()
}

// RunInMainContext runs fn on main context — outside any fiber's stack —
// and returns its result to the calling fiber once it resumes (§4.6).
// Called off-fiber, it just runs fn directly. Implemented as a package
// function rather than a method because Go methods cannot carry their own
// type parameters.
func RunInMainContext[T any](m *FiberManager, fn func() T) T {
	var result T
	m.runInMainContextRaw(func() { result = fn() })
	return result
}

func (m *FiberManager) runInMainContextRaw(fn func()) {
	m.assertOwningGoroutine("RunInMainContext")
	f := m.current
	if f == nil {
		fn()
		return
	}
	f.immediateFunc = fn
	f.state = StateYielded
	f.switchOut()
}

// RunLoop drains the ready queue and both cross-thread queues until no
// fiber is immediately runnable, then reports whether any outstanding work
// remains (an Awaiting fiber, or a non-empty remote queue) so the
// LoopController knows whether to expect a future wake (§4.5, §9). Called
// only by the LoopController, only from the owning goroutine.
func (m *FiberManager) RunLoop() bool {
	m.assertOwningGoroutine("RunLoop")
	hasWork := m.loopUntilNoReady()
	m.isLoopScheduled.Store(false)
	return hasWork
}

func (m *FiberManager) loopUntilNoReady() bool {
	for {
		m.drainRemoteTasks()
		m.drainRemoteReady()
		f := m.popReady()
		if f == nil {
			break
		}
		m.current = f
		f.switchIn()
		m.current = nil

		switch f.state {
		case StateCompleted:
			m.dispatchCompleted(f)
		case StateAwaiting:
			m.awaitingCount.Add(1)
			waitFn := f.awaitFunc
			f.awaitFunc = nil
			waitFn(f)
		case StateYielded:
			fn := f.immediateFunc
			f.immediateFunc = nil
			fn()
			f.state = StateReady
			m.pushReady(f)
		default:
			panic(fmt.Sprintf("fiber: fiber %d left in unexpected state %s after switchIn", f.id, f.state))
		}
	}
	return m.hasOutstandingWork()
}

func (m *FiberManager) drainRemoteTasks() {
	for _, rt := range m.remoteTasks.drain() {
		f := m.acquireFiber()
		f.prepare(rt.task)
		f.locals = rt.locals
		f.state = StateReady
		m.pushReady(f)
	}
}

func (m *FiberManager) drainRemoteReady() {
	for _, f := range m.remoteReady.drain() {
		m.pushReady(f)
	}
}

func (m *FiberManager) hasOutstandingWork() bool {
	return m.awaitingCount.Load() > 0 || !m.remoteTasks.empty() || !m.remoteReady.empty()
}

// dispatchCompleted routes a finished fiber's Try to its finally
// continuation, or to the manager's exception callback, or — with neither
// present and an exception pending — treats it as fatal (§4.8, §7).
func (m *FiberManager) dispatchCompleted(f *Fiber) {
	try := Try{Err: f.exc}
	switch {
	case f.finally != nil:
		m.logFinallyDispatch(f, try)
		f.finally(try)
	case try.HasException():
		if m.exceptionCallback != nil {
			m.logExceptionCallbackDispatch(f, try.Err)
			m.exceptionCallback(try.Err, "fiber task completed with an uncaught exception")
		} else {
			m.logFatalUncaughtException(f, try.Err)
			m.releaseFiber(f)
			panic(try.Err)
		}
	}
	m.releaseFiber(f)
}

// HasTasks reports whether the manager has any active fiber or pending
// cross-thread work (§4.7's diagnostic surface).
func (m *FiberManager) HasTasks() bool {
	return m.fibersActive.Load() > 0 || !m.remoteTasks.empty() || !m.remoteReady.empty()
}

// HasActiveFiber reports whether a fiber is currently running on this
// manager (true while called from within that fiber's own task).
func (m *FiberManager) HasActiveFiber() bool {
	return m.current != nil
}

// FibersAllocated returns the number of live fiber objects, pooled or
// active.
func (m *FiberManager) FibersAllocated() int64 {
	return m.fibersAllocated.Load()
}

// FibersPoolSize returns the number of idle fibers currently held in the
// pool.
func (m *FiberManager) FibersPoolSize() int {
	return m.pool.size()
}

// StackHighWatermark returns the largest scratch-buffer usage observed so
// far, or 0 if DebugRecordStackUsed was never enabled.
func (m *FiberManager) StackHighWatermark() uint64 {
	return m.stackHighWatermark.Load()
}

// SetExceptionCallback replaces the manager's default exception callback
// (§4.6). Owning-thread only.
func (m *FiberManager) SetExceptionCallback(cb func(err error, description string)) {
	m.assertOwningGoroutine("SetExceptionCallback")
	m.exceptionCallback = cb
}

// Close releases every pooled fiber's scratch buffer. It refuses to run
// while fibers are still active, so a caller cannot tear down a manager out
// from under a suspended or running fiber.
func (m *FiberManager) Close() error {
	m.assertOwningGoroutine("Close")
	if m.fibersActive.Load() > 0 {
		return ErrFibersOutstanding
	}
	for _, f := range m.pool.drainAll() {
		f.scratch.Release()
	}
	m.fibersAllocated.Store(0)
	m.closed = true
	if owner := m.ownerGoroutineID.Load(); owner != -1 {
		unbindGoroutine(owner)
	}
	return nil
}

// DebugTouchScratch writes the top n bytes (clamped to the buffer's length)
// of the currently-running fiber's scratch buffer — the end a
// downward-growing stack uses first, which is how recordWatermark measures
// usage. It exists only to let tests
// and the demo program exercise StackHighWatermark deterministically;
// production code has no legitimate reason to call it.
func DebugTouchScratch(m *FiberManager, n int) {
	m.assertOwningGoroutine("DebugTouchScratch")
	f := m.current
	if f == nil {
		panic(ErrNotOnFiber)
	}
	buf := f.scratch.Buf
	if n > len(buf) {
		n = len(buf)
	}
	for i := len(buf) - n; i < len(buf); i++ {
		buf[i] = 0x01
	}
}
