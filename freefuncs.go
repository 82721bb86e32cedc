package fiber

// addTask, await, and local are the free-function surface SPEC_FULL.md §4.6
// and §9 describe sitting on top of the thread-local engine registry: code
// that already knows it is running on some FiberManager's owning goroutine
// or inside one of its fibers can reach the engine without threading a
// *FiberManager argument through every call site, the way original source's
// equivalents resolve "the current engine" off TLS. FiberManager.AddTask,
// FiberManager.Await, and Local[T] remain the primary, explicit-argument
// API these delegate to — the free functions exist for callers deep inside
// a call tree that didn't receive the manager as a parameter, not as a
// replacement for passing it around normally.

// addTask submits t on the FiberManager bound to the calling goroutine.
// Panics with ErrNoBoundManager if none is bound.
func addTask(t Task) {
	m := onFiber()
	if m == nil {
		panic(ErrNoBoundManager)
	}
	m.AddTask(t)
}

// await suspends the calling fiber via the FiberManager bound to the
// calling goroutine. Panics with ErrNoBoundManager if none is bound.
func await(waitFn func(f *Fiber)) {
	m := onFiber()
	if m == nil {
		panic(ErrNoBoundManager)
	}
	m.Await(waitFn)
}

// local returns the fiber-local datum of type T on the FiberManager bound
// to the calling goroutine. Panics with ErrNoBoundManager if none is bound.
func local[T any]() *T {
	m := onFiber()
	if m == nil {
		panic(ErrNoBoundManager)
	}
	return Local[T](m)
}
