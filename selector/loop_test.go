//go:build linux
// +build linux

// File: selector/loop_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package selector_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/nioselect/reactor"
	"github.com/momentics/nioselect/selector"
)

// fakeEndPoint is the minimal SelectableEndPoint a test needs: it counts
// OnSelected calls and lets the test close it explicitly.
type fakeEndPoint struct {
	mu       sync.Mutex
	conn     selector.Connection
	selected int
	closed   bool
}

func (e *fakeEndPoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
func (e *fakeEndPoint) Connection() selector.Connection { return e.conn }
func (e *fakeEndPoint) SetConnection(c selector.Connection) {
	e.mu.Lock()
	e.conn = c
	e.mu.Unlock()
}
func (e *fakeEndPoint) OnSelected(key *selector.Key) {
	e.mu.Lock()
	e.selected++
	e.mu.Unlock()
	key.SetInterestOps(reactor.OpRead)
}
func (e *fakeEndPoint) UpdateKey(key *selector.Key) {}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error { c.closed = true; return nil }

// fakeManager is a test-double selector.Manager backing every scenario in
// this file: it builds fakeEndPoint/fakeConn, records lifecycle calls, and
// runs Execute/Schedule inline-ish (Schedule uses a real timer so timeout
// semantics are exercised for real).
type fakeManager struct {
	mu sync.Mutex

	accepted    []uintptr
	opened      []selector.Connection
	closedConns []selector.Connection
	failed      []*selector.ConnectError
	finishOK    bool
	finishErr   error
	connectTO   time.Duration
}

func newFakeManager() *fakeManager {
	return &fakeManager{connectTO: 200 * time.Millisecond, finishOK: true}
}

func (m *fakeManager) NewEndPoint(fd uintptr, l *selector.Loop, key *selector.Key) (selector.SelectableEndPoint, error) {
	return &fakeEndPoint{}, nil
}
func (m *fakeManager) NewConnection(fd uintptr, ep selector.SelectableEndPoint, attachment any) (selector.Connection, error) {
	return &fakeConn{}, nil
}
func (m *fakeManager) Accepted(fd uintptr) error {
	m.mu.Lock()
	m.accepted = append(m.accepted, fd)
	m.mu.Unlock()
	return nil
}
func (m *fakeManager) FinishConnect(fd uintptr) (bool, error) {
	if m.finishOK {
		return selector.FinishConnect(fd)
	}
	return false, m.finishErr
}
func (m *fakeManager) EndPointOpened(ep selector.SelectableEndPoint) {}
func (m *fakeManager) EndPointClosed(ep selector.SelectableEndPoint) {}
func (m *fakeManager) ConnectionOpened(c selector.Connection) {
	m.mu.Lock()
	m.opened = append(m.opened, c)
	m.mu.Unlock()
}
func (m *fakeManager) ConnectionClosed(c selector.Connection) {
	m.mu.Lock()
	m.closedConns = append(m.closedConns, c)
	m.mu.Unlock()
}
func (m *fakeManager) ConnectionFailed(fd uintptr, cause *selector.ConnectError, attachment any) {
	m.mu.Lock()
	m.failed = append(m.failed, cause)
	m.mu.Unlock()
}
func (m *fakeManager) Execute(task func()) error {
	go task()
	return nil
}
func (m *fakeManager) Schedule(delay time.Duration, fn func()) (selector.Cancelable, error) {
	return newTimerCancelable(delay, fn), nil
}
func (m *fakeManager) ConnectTimeout() time.Duration { return m.connectTO }
func (m *fakeManager) PriorityDelta() int            { return 0 }

// timerCancelable adapts time.AfterFunc to selector.Cancelable for tests.
type timerCancelable struct {
	t    *time.Timer
	done chan struct{}
}

func newTimerCancelable(d time.Duration, fn func()) *timerCancelable {
	done := make(chan struct{})
	t := time.AfterFunc(d, func() {
		close(done)
		fn()
	})
	return &timerCancelable{t: t, done: done}
}
func (c *timerCancelable) Cancel() error {
	c.t.Stop()
	return nil
}
func (c *timerCancelable) Done() <-chan struct{} { return c.done }
func (c *timerCancelable) Err() error             { return nil }

func newTestLoop(t *testing.T, m selector.Manager) *selector.Loop {
	t.Helper()
	mux, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	l := selector.NewLoop(1, mux, m)
	l.SetStopTimeout(2 * time.Second)
	go l.Run()
	return l
}

func TestAcceptPath(t *testing.T) {
	const addr = "127.0.0.1:18391"
	m := newFakeManager()
	l := newTestLoop(t, m)
	defer l.Stop()

	listenFd, err := selector.ListenTCP(addr, 16)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	if err := l.Start(listenFd); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.After(time.Second)
	for {
		m.mu.Lock()
		n := len(m.accepted)
		m.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("listener never delivered an accepted fd")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConnectSuccess(t *testing.T) {
	const addr = "127.0.0.1:18392"
	srv := newFakeManager()
	server := newTestLoop(t, srv)
	defer server.Stop()

	listenFd, err := selector.ListenTCP(addr, 16)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	if err := server.Start(listenFd); err != nil {
		t.Fatalf("Start: %v", err)
	}

	client := newFakeManager()
	clientLoop := newTestLoop(t, client)
	defer clientLoop.Stop()

	fd, connecting, err := selector.DialTCP(addr)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	if !connecting {
		t.Fatalf("expected connect in flight for loopback dial")
	}
	if err := clientLoop.Connect(fd, "attachment"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		client.mu.Lock()
		n := len(client.opened)
		m := len(client.failed)
		client.mu.Unlock()
		if n > 0 {
			break
		}
		if m > 0 {
			t.Fatalf("connect unexpectedly failed")
		}
		select {
		case <-deadline:
			t.Fatal("connect never completed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConnectTimeout(t *testing.T) {
	// 10.255.255.1 is a non-routable address chosen to never complete or
	// refuse within the test's short connect timeout.
	client := newFakeManager()
	client.connectTO = 50 * time.Millisecond
	clientLoop := newTestLoop(t, client)
	defer clientLoop.Stop()

	fd, connecting, err := selector.DialTCP("10.255.255.1:9")
	if err != nil {
		t.Skipf("dial setup failed in this sandbox: %v", err)
	}
	if !connecting {
		t.Skip("connect finished synchronously, cannot exercise timeout path")
	}
	if err := clientLoop.Connect(fd, nil); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		client.mu.Lock()
		n := len(client.failed)
		client.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("connect timeout was never reported")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitWhileSelecting(t *testing.T) {
	m := newFakeManager()
	l := newTestLoop(t, m)
	defer l.Stop()

	time.Sleep(20 * time.Millisecond) // let the loop settle into SELECTING

	done := make(chan struct{})
	if err := l.Submit(selector.Func(func() { close(done) })); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted change never ran")
	}
}

func TestStopWithNoEndpointsExitsLoop(t *testing.T) {
	m := newFakeManager()
	l := newTestLoop(t, m)

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-l.Done():
	default:
		t.Fatal("loop did not report done after Stop")
	}
}

func TestFaultingChangeDoesNotKillLoop(t *testing.T) {
	m := newFakeManager()
	l := newTestLoop(t, m)
	defer l.Stop()

	_ = l.Submit(selector.Func(func() { panic("boom") }))

	done := make(chan struct{})
	_ = l.Submit(selector.Func(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not survive a panicking change")
	}
}
