// File: scheduler/scheduler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/nioselect/scheduler"
)

func TestScheduleFires(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	var fired atomic.Bool
	done := make(chan struct{})
	_, err := s.Schedule(10*time.Millisecond, func() {
		fired.Store(true)
		close(done)
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never fired")
	}
	if !fired.Load() {
		t.Fatal("fired flag not set")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	fired := false
	task, err := s.Schedule(50*time.Millisecond, func() { fired = true })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := task.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	<-task.Done()
	time.Sleep(100 * time.Millisecond)
	if fired {
		t.Fatal("cancelled task fired anyway")
	}
}

func TestCancelAfterFireIsNoop(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	done := make(chan struct{})
	task, err := s.Schedule(5*time.Millisecond, func() { close(done) })
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	<-done
	if err := task.Cancel(); err != nil {
		t.Fatalf("Cancel after fire returned error: %v", err)
	}
}

func TestOrderingEarliestFiresFirst(t *testing.T) {
	s := scheduler.New()
	defer s.Close()

	var order []int
	done := make(chan struct{})
	s.Schedule(30*time.Millisecond, func() { order = append(order, 2) })
	s.Schedule(10*time.Millisecond, func() { order = append(order, 1) })
	s.Schedule(50*time.Millisecond, func() {
		order = append(order, 3)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never completed")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected fire order: %v", order)
	}
}
