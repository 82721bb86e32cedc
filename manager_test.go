package fiber

import (
	"errors"
	"sync"
	"testing"
)

type inlineLoop struct {
	m *FiberManager
}

func (l *inlineLoop) SetFiberManager(m *FiberManager) { l.m = m }
func (l *inlineLoop) Schedule()                       { l.m.RunLoop() }

// ScheduleThreadSafe is a no-op: tests that submit via AddTaskRemote poll
// HasTasks/RunLoop themselves afterward rather than relying on a real
// cross-thread wakeup mechanism (that's loopctl.ChannelLoopController's job).
func (l *inlineLoop) ScheduleThreadSafe() {}

func newTestManager(t *testing.T, opts ...Option) *FiberManager {
	t.Helper()
	m, err := NewFiberManager(&inlineLoop{}, opts...)
	if err != nil {
		t.Fatalf("NewFiberManager: %v", err)
	}
	return m
}

func TestAddTaskRunsToCompletion(t *testing.T) {
	m := newTestManager(t)
	ran := false
	m.AddTask(func() { ran = true })
	if !ran {
		t.Fatalf("task did not run")
	}
	if m.HasTasks() {
		t.Fatalf("HasTasks=true, want false after completion")
	}
}

func TestAddTaskFinallySuccess(t *testing.T) {
	m := newTestManager(t)
	var got Try
	var called bool
	m.AddTaskFinally(func() {}, func(try Try) {
		called = true
		got = try
	})
	if !called {
		t.Fatalf("finally was not called")
	}
	if got.HasException() {
		t.Fatalf("got=%+v, want no exception", got)
	}
}

func TestAddTaskFinallyException(t *testing.T) {
	m := newTestManager(t)
	boom := errors.New("boom")
	var got Try
	m.AddTaskFinally(func() { panic(boom) }, func(try Try) {
		got = try
	})
	if !got.HasException() {
		t.Fatalf("got=%+v, want exception", got)
	}
	var te *TaskException
	if !errors.As(got.Err, &te) {
		t.Fatalf("Err=%v, want *TaskException", got.Err)
	}
	if !errors.Is(got.Err, boom) {
		t.Fatalf("errors.Is(%v, %v)=false, want true", got.Err, boom)
	}
}

func TestExceptionCallbackReceivesUncaughtPanic(t *testing.T) {
	var gotErr error
	var gotDesc string
	m := newTestManager(t, WithExceptionCallback(func(err error, desc string) {
		gotErr = err
		gotDesc = desc
	}))
	boom := errors.New("kaboom")
	m.AddTask(func() { panic(boom) })

	if gotErr == nil {
		t.Fatalf("exception callback was not invoked")
	}
	if gotDesc == "" {
		t.Fatalf("exception callback description was empty")
	}
}

func TestUncaughtExceptionWithNoCallbackPanics(t *testing.T) {
	m := newTestManager(t)
	boom := errors.New("fatal")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected RunLoop to panic with no exception callback registered")
		}
	}()
	m.AddTask(func() { panic(boom) })
}

func TestReadyFuncRunsBeforeFirstSwitchIn(t *testing.T) {
	m := newTestManager(t)
	var order []string
	m.AddTaskReadyFunc(func() {
		order = append(order, "task")
	}, func() {
		order = append(order, "ready")
	})
	if len(order) != 2 || order[0] != "ready" || order[1] != "task" {
		t.Fatalf("order=%v, want [ready task]", order)
	}
}

func TestNestedAddTaskRunsAfterParentYields(t *testing.T) {
	m := newTestManager(t)
	var order []string
	m.AddTask(func() {
		order = append(order, "parent-start")
		m.AddTask(func() {
			order = append(order, "child")
		})
		order = append(order, "parent-end")
	})
	want := []string{"parent-start", "parent-end", "child"}
	if len(order) != len(want) {
		t.Fatalf("order=%v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v, want %v", order, want)
		}
	}
}

func TestFiberPoolReusesReleasedFibers(t *testing.T) {
	m := newTestManager(t, WithMaxFibersPoolSize(4))
	for i := 0; i < 3; i++ {
		m.AddTask(func() {})
	}
	if got := m.FibersAllocated(); got != 1 {
		t.Fatalf("FibersAllocated=%d, want 1 (pool should reuse a single fiber)", got)
	}
	if got := m.FibersPoolSize(); got != 1 {
		t.Fatalf("FibersPoolSize=%d, want 1", got)
	}
}

func TestCloseRefusesWithActiveFiber(t *testing.T) {
	m := newTestManager(t)
	m.AddTask(func() {
		m.Await(func(f *Fiber) {
			// Never woken: this test only checks that Close refuses to run
			// while the fiber is suspended, not that it ever resumes.
		})
	})
	if err := m.Close(); !errors.Is(err, ErrFibersOutstanding) {
		t.Fatalf("Close err=%v, want ErrFibersOutstanding", err)
	}
}

func TestLocalLazilyDefaultConstructsPerFiber(t *testing.T) {
	type counter struct{ n int }
	m := newTestManager(t)

	var seen []int
	m.AddTask(func() {
		c := Local[counter](m)
		c.n++
		seen = append(seen, c.n)
	})
	m.AddTask(func() {
		c := Local[counter](m)
		c.n += 10
		seen = append(seen, c.n)
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 10 {
		t.Fatalf("seen=%v, want [1 10] (locals must not leak across fibers)", seen)
	}
}

func TestRunInMainContextRunsOffFiberStack(t *testing.T) {
	m := newTestManager(t)
	var sawActiveFiber bool
	var result int
	m.AddTask(func() {
		result = RunInMainContext(m, func() int {
			sawActiveFiber = m.HasActiveFiber()
			return 7
		})
	})
	if sawActiveFiber {
		t.Fatalf("HasActiveFiber=true inside RunInMainContext callback, want false")
	}
	if result != 7 {
		t.Fatalf("result=%d, want 7", result)
	}
}

func TestCloseDrainsPool(t *testing.T) {
	m := newTestManager(t)
	m.AddTask(func() {})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := m.FibersAllocated(); got != 0 {
		t.Fatalf("FibersAllocated=%d after Close, want 0", got)
	}
}

func TestAddTaskAfterCloseFails(t *testing.T) {
	m := newTestManager(t)
	m.AddTask(func() {})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected AddTask after Close to panic")
		}
	}()
	m.AddTask(func() {})
}

func TestConcurrentAddTaskRemoteEachRunsExactlyOnce(t *testing.T) {
	m := newTestManager(t)
	const n = 50
	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.AddTaskRemote(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	// Drain in a loop since remote tasks may still be arriving when the
	// owning goroutine's drain pass runs.
	for m.HasTasks() {
		m.RunLoop()
	}

	mu.Lock()
	defer mu.Unlock()
	if count != n {
		t.Fatalf("count=%d, want %d", count, n)
	}
}
