//go:build linux
// +build linux

// File: endpoint/endpoint_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint_test

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/nioselect/endpoint"
	"github.com/momentics/nioselect/pool"
	"github.com/momentics/nioselect/reactor"
	"github.com/momentics/nioselect/selector"
)

type nopManager struct {
	opened chan *endpoint.Connection
	pool   endpoint.BufferPool
}

func (m *nopManager) NewEndPoint(fd uintptr, l *selector.Loop, key *selector.Key) (selector.SelectableEndPoint, error) {
	return endpoint.New(fd, l, key, m.pool), nil
}
func (m *nopManager) NewConnection(fd uintptr, ep selector.SelectableEndPoint, attachment any) (selector.Connection, error) {
	return endpoint.NewConnection(ep.(*endpoint.Endpoint), attachment), nil
}
func (m *nopManager) Accepted(fd uintptr) error {
	return nil
}
func (m *nopManager) FinishConnect(fd uintptr) (bool, error) { return selector.FinishConnect(fd) }
func (m *nopManager) EndPointOpened(ep selector.SelectableEndPoint) {}
func (m *nopManager) EndPointClosed(ep selector.SelectableEndPoint) {}
func (m *nopManager) ConnectionOpened(c selector.Connection) {
	m.opened <- c.(*endpoint.Connection)
}
func (m *nopManager) ConnectionClosed(c selector.Connection)                                   {}
func (m *nopManager) ConnectionFailed(fd uintptr, cause *selector.ConnectError, attachment any) {}
func (m *nopManager) Execute(task func()) error                                                { go task(); return nil }
func (m *nopManager) Schedule(delay time.Duration, fn func()) (selector.Cancelable, error) {
	return nil, nil
}
func (m *nopManager) ConnectTimeout() time.Duration { return time.Second }
func (m *nopManager) PriorityDelta() int            { return 0 }

func TestEndpointEchoesData(t *testing.T) {
	const addr = "127.0.0.1:18491"
	bufMgr := pool.NewBufferPoolManager()
	m := &nopManager{opened: make(chan *endpoint.Connection, 1), pool: bufMgr.GetPool(-1)}

	mux, err := reactor.NewReactor()
	if err != nil {
		t.Fatalf("NewReactor: %v", err)
	}
	l := selector.NewLoop(1, mux, m)
	go l.Run()
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

	var ec *endpoint.Connection
	select {
	case ec = <-m.opened:
	case <-time.After(time.Second):
		t.Fatal("endpoint never opened")
	}

	received := make(chan []byte, 1)
	ec.Endpoint().SetOnData(func(e *endpoint.Endpoint, data []byte) {
		got := make([]byte, len(data))
		copy(got, data)
		received <- got
	})

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("got %q, want %q", data, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("endpoint never observed the write")
	}
}
