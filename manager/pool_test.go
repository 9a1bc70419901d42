//go:build linux
// +build linux

// File: manager/pool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package manager_test

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/nioselect/endpoint"
	"github.com/momentics/nioselect/manager"
	"github.com/momentics/nioselect/pool"
	"github.com/momentics/nioselect/selector"
)

func TestPoolAcceptsAndEchoesData(t *testing.T) {
	const addr = "127.0.0.1:18591"

	cfg := manager.DefaultConfig()
	cfg.LoopCount = 2
	cfg.Workers = 2
	cfg.StopTimeout = 2 * time.Second

	bufMgr := pool.NewBufferPoolManager()
	p, err := manager.New(cfg, bufMgr.GetPool(-1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	opened := make(chan *endpoint.Connection, 1)
	p.OnConnectionOpened(func(c selector.Connection) {
		opened <- c.(*endpoint.Connection)
	})

	listenFd, err := selector.ListenTCP(addr, 16)
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	if err := p.Listen(listenFd); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	go p.Run()
	defer p.Stop()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var ec *endpoint.Connection
	select {
	case ec = <-opened:
	case <-time.After(time.Second):
		t.Fatal("connection never opened")
	}

	echoed := make(chan struct{})
	ec.Endpoint().SetOnData(func(e *endpoint.Endpoint, data []byte) {
		e.Write(data)
		close(echoed)
	})

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-echoed:
	case <-time.After(time.Second):
		t.Fatal("endpoint never received the write")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("Read echo: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("got %q, want %q", buf, "ping")
	}
}
