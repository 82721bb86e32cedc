package fiber

import "testing"

func TestMetricsReflectsFiberLifecycle(t *testing.T) {
	m := newTestManager(t, WithDebugRecordStackUsed(true))

	before := m.Metrics()
	if before.FibersAllocated != 0 || before.FibersActive != 0 {
		t.Fatalf("before=%+v, want zero counters", before)
	}

	m.AddTask(func() {
		DebugTouchScratch(m, 64)
		if got := m.Metrics(); !got.HasActiveFiber {
			t.Fatalf("Metrics().HasActiveFiber=false while a fiber is running")
		}
	})

	after := m.Metrics()
	if after.FibersAllocated != 1 {
		t.Fatalf("after.FibersAllocated=%d, want 1", after.FibersAllocated)
	}
	if after.FibersActive != 0 {
		t.Fatalf("after.FibersActive=%d, want 0 (fiber returned to pool)", after.FibersActive)
	}
	if after.FibersPooled != 1 {
		t.Fatalf("after.FibersPooled=%d, want 1", after.FibersPooled)
	}
	if after.HasActiveFiber {
		t.Fatalf("after.HasActiveFiber=true, want false once RunLoop has drained")
	}
	if after.StackHighWatermark == 0 {
		t.Fatalf("after.StackHighWatermark=0, want > 0 after DebugTouchScratch")
	}
}

func TestMetricsCountsPendingRemoteWork(t *testing.T) {
	m := newTestManager(t)
	m.AddTask(func() {}) // binds the owning goroutine without touching remote queues

	m.remoteTasks.push(&remoteTask{task: func() {}})
	m.remoteReady.push(newFiber(99, &StackMemory{Buf: make([]byte, 16)}))

	got := m.Metrics()
	if got.RemoteTasksPending != 1 {
		t.Fatalf("RemoteTasksPending=%d, want 1", got.RemoteTasksPending)
	}
	if got.RemoteReadyPending != 1 {
		t.Fatalf("RemoteReadyPending=%d, want 1", got.RemoteReadyPending)
	}
}
