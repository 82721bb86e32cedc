package fiber

import "reflect"

// Local returns a pointer to the fiber-local datum of type T for the
// currently-running fiber on m's owning goroutine, lazily
// default-constructing it on first access (§4.6). If called off-fiber (but
// still on the owning goroutine), it returns a pointer to an
// engine-scoped default for T instead of a genuine OS-thread-local —
// because at most one FiberManager is ever active per owning goroutine at a
// time (§3), "engine-scoped" and "thread-scoped" coincide in practice.
//
// Must be called with the same T at a given call site throughout a fiber's
// lifetime, per §9's "Fiber-local storage keyed by static type" strategy.
func Local[T any](m *FiberManager) *T {
	m.assertOwningGoroutine("Local")
	if f := m.current; f != nil {
		return localFor[T](&f.locals)
	}
	return localFor[T](&m.offFiberLocals)
}

func localFor[T any](store *map[reflect.Type]any) *T {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if *store == nil {
		*store = make(map[reflect.Type]any)
	}
	if v, ok := (*store)[typ]; ok {
		return v.(*T)
	}
	nv := new(T)
	(*store)[typ] = nv
	return nv
}
