package fiber

// Metrics is a point-in-time snapshot of a FiberManager's internal counters
// (SPEC_FULL.md §2 DOMAIN "Metrics snapshot"). It carries no network
// surface of its own — per the spec, exposing it over Prometheus or any
// other wire format is a host application's job; Metrics just gives that
// exporter a stable, independent copy to read instead of a set of live
// pointers it would otherwise have to poll one counter at a time.
//
// Grounded on evan-idocoding-zkit/ops/provided_snapshot.go's
// snapshot-the-values-into-a-plain-struct discipline (there: named values
// copied into a map at construction time so concurrent mutation of the
// source can't corrupt an in-flight response; here: the manager's counters
// read once each into a value type). The counters are loaded one after
// another, not under a common lock, so the snapshot is not atomic across
// fields. zkit wires
// its snapshot through an http.Handler because it's serving an admin
// endpoint; this module has no such surface, so Metrics stops at the plain
// struct and leaves exporting it to the caller.
type Metrics struct {
	// FibersAllocated is the number of live fiber objects, pooled or active.
	FibersAllocated int64
	// FibersActive is the number of fibers currently running or suspended
	// (i.e. not sitting idle in the pool).
	FibersActive int64
	// FibersPooled is the number of idle fibers held in the pool for reuse.
	FibersPooled int
	// AwaitingCount is the number of fibers currently suspended in Await,
	// detached from the scheduler and waiting on an external wake.
	AwaitingCount int64
	// RemoteTasksPending is the number of AddTaskRemote submissions not yet
	// drained into the local ready queue.
	RemoteTasksPending int
	// RemoteReadyPending is the number of RemoteReadyInsert wakeups not yet
	// drained into the local ready queue.
	RemoteReadyPending int
	// StackHighWatermark is the largest scratch-buffer usage observed so
	// far, or 0 if DebugRecordStackUsed was never enabled.
	StackHighWatermark uint64
	// HasActiveFiber reports whether a fiber is running on the manager at
	// the instant this snapshot was taken.
	HasActiveFiber bool
}

// Metrics returns a snapshot of the manager's current counters. It never
// mutates scheduler state. The atomic counters may be read from any
// goroutine, but FibersPooled and HasActiveFiber read owning-goroutine state
// without synchronization, so they are reliable only when Metrics is called
// from the owning goroutine or from a fiber running on it.
func (m *FiberManager) Metrics() Metrics {
	return Metrics{
		FibersAllocated:    m.fibersAllocated.Load(),
		FibersActive:       m.fibersActive.Load(),
		FibersPooled:       m.pool.size(),
		AwaitingCount:      m.awaitingCount.Load(),
		RemoteTasksPending: m.remoteTasks.len(),
		RemoteReadyPending: m.remoteReady.len(),
		StackHighWatermark: m.stackHighWatermark.Load(),
		HasActiveFiber:     m.current != nil,
	}
}
