package fiber

// Structured diagnostic events, emitted through the zerolog logger supplied
// via WithLogger (defaults to zerolog.Nop(), i.e. silent). The teacher logs
// nothing at all; zerolog is grounded on
// joeycumines-go-utilpkg/logiface-zerolog and .../logiface/zerolog, which
// exist in the pack specifically to drive zerolog from a facade — here the
// engine plays the role of the thing being logged from directly, so we
// reach for the backend those adapters target rather than the facade
// itself.

func (m *FiberManager) logFiberAllocated(f *Fiber) {
	m.opts.Logger.Debug().
		Uint64("fiber_id", f.id).
		Int64("fibers_allocated", m.fibersAllocated.Load()).
		Msg("fiber allocated")
}

func (m *FiberManager) logFiberPooled(f *Fiber) {
	m.opts.Logger.Debug().
		Uint64("fiber_id", f.id).
		Int("pool_size", m.pool.size()).
		Msg("fiber returned to pool")
}

func (m *FiberManager) logFiberDestroyed(f *Fiber) {
	m.opts.Logger.Debug().
		Uint64("fiber_id", f.id).
		Msg("fiber destroyed, pool at capacity")
}

func (m *FiberManager) logFinallyDispatch(f *Fiber, try Try) {
	m.opts.Logger.Debug().
		Uint64("fiber_id", f.id).
		Bool("has_exception", try.HasException()).
		Msg("dispatching task result to finally continuation")
}

func (m *FiberManager) logExceptionCallbackDispatch(f *Fiber, err error) {
	m.opts.Logger.Warn().
		Uint64("fiber_id", f.id).
		Err(err).
		Msg("dispatching uncaught task exception to exception callback")
}

func (m *FiberManager) logFatalUncaughtException(f *Fiber, err error) {
	m.opts.Logger.Error().
		Uint64("fiber_id", f.id).
		Err(err).
		Msg("uncaught task exception with no exception callback registered; terminating process")
}
