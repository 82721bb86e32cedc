// Command fiberdemo exercises the fiber engine the way
// alphadose/itogami/examples/main.go exercises the teacher's goroutine
// pool: submit a batch of tasks from many goroutines, wait for them to
// finish, print a summary. Every task is submitted cross-thread via
// AddTaskRemote and, once running as a fiber, uses a Baton to await a
// separate background goroutine's result before finishing — exercising
// both the remote-submission path and the remote-wake path in the same
// run.
package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	fiber "github.com/alphadose/fibermgr"
	"github.com/alphadose/fibermgr/baton"
	"github.com/alphadose/fibermgr/loopctl"
	"golang.org/x/sync/errgroup"
)

var sum int64

func main() {
	loop := loopctl.NewChannelLoopController()
	m, err := fiber.NewFiberManager(loop,
		fiber.WithMaxFibersPoolSize(64),
		fiber.WithDebugRecordStackUsed(true),
		fiber.WithExceptionCallback(func(err error, description string) {
			fmt.Printf("task failed: %s: %v\n", description, err)
		}),
	)
	if err != nil {
		panic(err)
	}
	loop.Start()
	defer loop.Stop()

	const runTimes = 1000
	done := make(chan struct{}, runTimes)

	var g errgroup.Group
	for i := 0; i < runTimes; i++ {
		i := i
		g.Go(func() error {
			m.AddTaskRemote(func() {
				fiber.DebugTouchScratch(m, 4096)
				b := baton.New[int]()
				go func() {
					time.Sleep(time.Millisecond)
					b.Post(m, i)
				}()
				v := b.Wait(m)
				atomic.AddInt64(&sum, int64(v))
				done <- struct{}{}
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		panic(err)
	}
	for i := 0; i < runTimes; i++ {
		<-done
	}

	fmt.Printf("finished %d tasks, sum=%d, stack high watermark=%d bytes\n",
		runTimes, atomic.LoadInt64(&sum), m.StackHighWatermark())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	waitIdle(ctx, m)
}

// waitIdle blocks until the manager reports no active fibers, or ctx
// expires.
func waitIdle(ctx context.Context, m *fiber.FiberManager) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for m.HasTasks() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
