package loopctl

import (
	"sync"
	"testing"
	"time"

	fiber "github.com/alphadose/fibermgr"
)

func TestChannelLoopControllerRunsRemoteTasks(t *testing.T) {
	loop := NewChannelLoopController()
	m, err := fiber.NewFiberManager(loop)
	if err != nil {
		t.Fatalf("NewFiberManager: %v", err)
	}
	loop.Start()
	defer loop.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	m.AddTaskRemote(func() {
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("remote task did not run within timeout")
	}
}

func TestChannelLoopControllerStopIsIdempotent(t *testing.T) {
	loop := NewChannelLoopController()
	if _, err := fiber.NewFiberManager(loop); err != nil {
		t.Fatalf("NewFiberManager: %v", err)
	}
	loop.Start()
	loop.Stop()
	loop.Stop() // must not block or panic
}

func TestChannelLoopControllerStopWithoutStartIsSafe(t *testing.T) {
	loop := NewChannelLoopController()
	if _, err := fiber.NewFiberManager(loop); err != nil {
		t.Fatalf("NewFiberManager: %v", err)
	}
	loop.Stop() // must not block; loop goroutine was never launched
}
