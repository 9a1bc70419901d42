// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler is a container/heap-backed timer queue: one goroutine sleeps
// until the next deadline, fires every task whose time has come, and is
// woken early whenever a new task lands ahead of the one it was sleeping
// for. Schedule satisfies selector.Manager.Schedule directly; it does not
// implement api.Scheduler (that contract's Cancel(Cancelable) would force
// every caller through an interface value where callers here always hold
// the concrete *Task instead).

package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/momentics/nioselect/api"
)

// Scheduler runs scheduled callbacks on their own goroutine, never on the
// caller's. Cancel is idempotent.
type Scheduler struct {
	mu      sync.Mutex
	heap    taskHeap
	seq     int
	notify  chan struct{}
	stopped chan struct{}
	closed  bool
}

// New starts a Scheduler's background timer goroutine.
func New() *Scheduler {
	s := &Scheduler{
		notify:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// Now returns wall-clock Unix time in nanoseconds.
func (s *Scheduler) Now() int64 { return time.Now().UnixNano() }

// Schedule books fn to run after delay. A non-positive delay runs on the
// next timer tick rather than inline on the caller's goroutine, preserving
// the "the loop is the scheduler" rule: callers never get called back
// synchronously from Schedule itself.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) (*Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, api.NewError(api.ErrCodeNotSupported, "scheduler: closed")
	}
	s.seq++
	t := &Task{
		fn:       fn,
		deadline: time.Now().Add(delay),
		seq:      s.seq,
		done:     make(chan struct{}),
	}
	heap.Push(&s.heap, t)
	earliest := s.heap[0] == t
	s.mu.Unlock()

	if earliest {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
	return t, nil
}

// Cancel is a convenience wrapper equivalent to calling t.Cancel()
// directly; a no-op if t already fired or was already cancelled.
func (s *Scheduler) Cancel(t *Task) error {
	return t.Cancel()
}

// Close stops the timer goroutine; pending tasks never fire.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stopped)
}

func (s *Scheduler) run() {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.heap[0].deadline)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-s.stopped:
			return
		case <-s.notify:
			continue
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	now := time.Now()
	var due []*Task
	s.mu.Lock()
	for len(s.heap) > 0 && !s.heap[0].deadline.After(now) {
		t := heap.Pop(&s.heap).(*Task)
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		if t.markFired() {
			t.fn()
		}
	}
}

// Task is the Cancelable handle returned by Schedule.
type Task struct {
	fn       func()
	deadline time.Time
	seq      int
	index    int

	mu       sync.Mutex
	fired    bool
	canceled bool
	done     chan struct{}
}

func (t *Task) markFired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.canceled {
		return false
	}
	t.fired = true
	close(t.done)
	return true
}

// Cancel prevents a pending task from firing. Idempotent: cancelling an
// already-fired or already-cancelled task is a no-op.
func (t *Task) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.canceled {
		return nil
	}
	t.canceled = true
	close(t.done)
	return nil
}

// Done returns a channel closed once the task has fired or been cancelled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err reports why Done closed: nil if the task fired, else a cancellation
// sentinel.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.canceled {
		return api.ErrOperationTimeout
	}
	return nil
}

type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
