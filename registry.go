package fiber

import "sync"

// engineRegistry is the thread-local engine binding described in
// SPEC_FULL.md §4.6 and §9: a package-level map from goroutine id to the
// FiberManager currently occupying that goroutine's logical thread of
// control, so the free functions below can find "the" engine without an
// explicit *FiberManager argument. Go has no addressable thread-local slot
// to hang this off of the way the source's TLS pointer does, so — per the
// same reasoning as currentGoroutineID's own doc comment — this is the
// idiomatic substitute: a map keyed by the goroutine id extracted via the
// runtime.Stack-parsing trick.
//
// A goroutine is registered in two cases: once it becomes a FiberManager's
// bound owning goroutine (assertOwningGoroutine's first successful CAS),
// and for the lifetime of a fiber's backing goroutine (trampoline binds on
// entry, unbinds just before the goroutine exits). At most one FiberManager
// is ever active per owning goroutine at a time (§3), so last-bind-wins is
// never actually contended in a well-behaved caller.
var engineRegistry sync.Map // int64 -> *FiberManager

func bindGoroutine(gid int64, m *FiberManager) {
	engineRegistry.Store(gid, m)
}

func unbindGoroutine(gid int64) {
	engineRegistry.Delete(gid)
}

// onFiber returns the FiberManager bound to the calling goroutine, or nil
// if the calling goroutine is neither a FiberManager's owning goroutine nor
// a fiber's backing goroutine.
func onFiber() *FiberManager {
	v, ok := engineRegistry.Load(currentGoroutineID())
	if !ok {
		return nil
	}
	return v.(*FiberManager)
}
