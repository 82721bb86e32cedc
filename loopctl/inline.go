// Package loopctl provides concrete LoopController implementations for
// driving a fiber.FiberManager's run loop (SPEC_FULL.md §6). The core
// package deliberately has no opinion on how RunLoop gets invoked; these
// are the two host-loop strategies the examples corpus converges on for
// that kind of collaborator — a synchronous "just call it now" controller
// for embedding into an already-looping host (grounded on the teacher's
// Pool.Submit dispatching work with no intermediate scheduling step), and a
// dedicated-goroutine controller for when nothing else is already driving
// cycles (grounded on
// joeycumines-go-utilpkg/eventloop/loop.go's own-goroutine run loop).
package loopctl

import (
	"sync/atomic"

	fiber "github.com/alphadose/fibermgr"
)

// InlineLoopController runs the engine's RunLoop synchronously, on whatever
// goroutine calls Schedule — appropriate when the caller is itself a tight
// loop (a test, a request handler that wants fiber-backed concurrency
// without spinning up extra machinery). ScheduleThreadSafe panics: a
// cross-thread wake has nowhere synchronous to land, so InlineLoopController
// cannot be the LoopController for a FiberManager that ever receives
// AddTaskRemote or Baton.Post calls from another goroutine; use
// ChannelLoopController for that.
type InlineLoopController struct {
	m       *fiber.FiberManager
	running atomic.Bool
}

// NewInlineLoopController constructs an InlineLoopController.
func NewInlineLoopController() *InlineLoopController {
	return &InlineLoopController{}
}

func (c *InlineLoopController) SetFiberManager(m *fiber.FiberManager) {
	c.m = m
}

// Schedule runs RunLoop immediately unless a RunLoop call started by this
// controller is already in progress (on any goroutine), in which case it is
// a no-op — that outer call's own drain loop will pick up the newly
// submitted work on its next iteration without any help from here.
func (c *InlineLoopController) Schedule() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	defer c.running.Store(false)
	c.m.RunLoop()
}

func (c *InlineLoopController) ScheduleThreadSafe() {
	panic("loopctl: InlineLoopController.ScheduleThreadSafe called; use ChannelLoopController for a FiberManager that receives cross-thread submissions")
}
