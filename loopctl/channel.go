package loopctl

import (
	"sync"
	"sync/atomic"

	fiber "github.com/alphadose/fibermgr"
)

// ChannelLoopController drives the engine from a single dedicated
// goroutine, woken by a capacity-1 wakeup channel. Both Schedule and
// ScheduleThreadSafe are non-blocking sends that coalesce: any number of
// wake requests that arrive before the loop goroutine gets around to
// draining them collapse into a single RunLoop call, the same coalescing
// idiom joeycumines-go-utilpkg/eventloop/wakeup_dedup_test.go exercises for
// its own wakeup-pipe.
//
// Start must be called once, after NewFiberManager, before any task is
// submitted; Stop shuts the loop goroutine down once the caller is done
// with the manager.
type ChannelLoopController struct {
	m      *fiber.FiberManager
	wake   chan struct{}
	done   chan struct{}
	stopCh chan struct{}

	started atomic.Bool
	once    sync.Once
}

// NewChannelLoopController constructs a ChannelLoopController. Call Start
// before submitting any task.
func NewChannelLoopController() *ChannelLoopController {
	return &ChannelLoopController{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		stopCh: make(chan struct{}),
	}
}

func (c *ChannelLoopController) SetFiberManager(m *fiber.FiberManager) {
	c.m = m
}

// Start launches the dedicated loop goroutine. Calls after the first are
// no-ops.
func (c *ChannelLoopController) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run()
}

func (c *ChannelLoopController) run() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
			c.m.RunLoop()
		case <-c.stopCh:
			return
		}
	}
}

// Schedule and ScheduleThreadSafe are identical here: the wakeup channel
// is safe for any goroutine to send on, so there's no separate fast path
// for the owning goroutine.
func (c *ChannelLoopController) Schedule() {
	c.wakeUp()
}

func (c *ChannelLoopController) ScheduleThreadSafe() {
	c.wakeUp()
}

func (c *ChannelLoopController) wakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
		// A wake is already pending; the loop goroutine hasn't drained it
		// yet, so this request is redundant.
	}
}

// Stop signals the loop goroutine to exit and waits for it to do so. Safe
// to call even if Start was never called.
func (c *ChannelLoopController) Stop() {
	c.once.Do(func() {
		close(c.stopCh)
	})
	if c.started.Load() {
		<-c.done
	}
}
