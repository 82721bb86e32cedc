package fiber

import (
	"reflect"
	"sync/atomic"
)

// remoteTask is a cross-thread task submission record (§4.4). Allocated by
// a non-owner thread, consumed exactly once when the scheduler drains
// remoteTaskQueue and promotes it into a Fiber.
type remoteTask struct {
	next   atomic.Pointer[remoteTask]
	task   Task
	locals map[reflect.Type]any
}

// remoteTaskQueue and remoteReadyQueue (below) are lock-free
// multi-producer single-consumer intrusive singly-linked lists, built the
// way the teacher (alphadose/itogami) builds its parked-goroutine
// free-list stacks in pool.go/pool_stack.go/stack.go/pool_func_stack.go:
// an atomic.Pointer "top" and a compare-and-swap push loop. Those four
// teacher files all implemented the same CAS stack three times over for
// three payload types (*node, *slot, unsafe.Pointer); here that's
// collapsed into two concrete, intrusive lists — one per queue the spec
// requires — since Go's type system doesn't force itogami's
// unsafe.Pointer-based genericity (see DESIGN.md for why the duplicate
// teacher files were merged rather than kept as-is).
//
// A plain CAS stack is LIFO, which would reorder submissions from a single
// producer — violating §5's per-submitter-thread FIFO ordering guarantee.
// Both queues solve this the standard lock-free-MPSC way: push prepends
// (LIFO), and drain atomically swaps the whole chain out, then walks and
// reverses it once. Reversing a fully-captured LIFO chain restores the
// original push order for every producer's subsequence, which is exactly
// the ordering guarantee required.
type remoteTaskQueue struct {
	top atomic.Pointer[remoteTask]
}

// push atomically prepends t. Wait-free for a single producer, lock-free
// under contention, matching the contract in §4.4.
func (q *remoteTaskQueue) push(t *remoteTask) {
	for {
		old := q.top.Load()
		t.next.Store(old)
		if q.top.CompareAndSwap(old, t) {
			return
		}
	}
}

func (q *remoteTaskQueue) empty() bool {
	return q.top.Load() == nil
}

// len walks the chain without detaching it, for Metrics' benefit. Safe
// under concurrent pushes: once a node is linked in, nothing mutates its
// next pointer again until a drain consumes it, so a concurrent walk only
// ever sees a momentary snapshot of the chain, never a half-written node.
func (q *remoteTaskQueue) len() int {
	n := 0
	for p := q.top.Load(); p != nil; p = p.next.Load() {
		n++
	}
	return n
}

// drain atomically detaches the entire chain and returns it in original
// push (FIFO) order. Only the engine's owning goroutine may call drain;
// producers may continue appending concurrently with (and even during) a
// drain, per §4.4's "batch-move to a private stack" consumer contract.
func (q *remoteTaskQueue) drain() []*remoteTask {
	head := q.top.Swap(nil)
	if head == nil {
		return nil
	}
	var out []*remoteTask
	for n := head; n != nil; {
		next := n.next.Load()
		n.next.Store(nil)
		out = append(out, n)
		n = next
	}
	reverseRemoteTasks(out)
	return out
}

func reverseRemoteTasks(s []*remoteTask) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// remoteReadyQueue is the cross-thread wake list (§4.4). Its nodes are
// already-existing Fibers, threaded intrusively through Fiber.remoteNext
// so no allocation happens on wake — the same "no allocation on queueing"
// design goal the spec calls out in §9.
type remoteReadyQueue struct {
	top atomic.Pointer[Fiber]
}

func (q *remoteReadyQueue) push(f *Fiber) {
	for {
		old := q.top.Load()
		f.remoteNext.Store(old)
		if q.top.CompareAndSwap(old, f) {
			return
		}
	}
}

func (q *remoteReadyQueue) empty() bool {
	return q.top.Load() == nil
}

// len mirrors remoteTaskQueue.len, for Metrics.
func (q *remoteReadyQueue) len() int {
	n := 0
	for p := q.top.Load(); p != nil; p = p.remoteNext.Load() {
		n++
	}
	return n
}

func (q *remoteReadyQueue) drain() []*Fiber {
	head := q.top.Swap(nil)
	if head == nil {
		return nil
	}
	var out []*Fiber
	for f := head; f != nil; {
		next := f.remoteNext.Load()
		f.remoteNext.Store(nil)
		out = append(out, f)
		f = next
	}
	reverseFibers(out)
	return out
}

func reverseFibers(s []*Fiber) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
