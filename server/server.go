// File: server/server.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the runnable facade: one listening socket, one manager.Pool,
// started and stopped as a unit. Protocol handling lives in the Handler
// callback wired through Serve; this package only owns the lifecycle.

package server

import (
	"errors"
	"time"

	"github.com/momentics/nioselect/adapters"
	"github.com/momentics/nioselect/api"
	"github.com/momentics/nioselect/endpoint"
	"github.com/momentics/nioselect/manager"
	"github.com/momentics/nioselect/pool"
	"github.com/momentics/nioselect/selector"
)

// ErrAlreadyRunning is returned by Serve when called more than once.
var ErrAlreadyRunning = errors.New("server: already running")

// Server satisfies api.GracefulShutdown: Shutdown is the one call an outer
// process-lifecycle manager needs to drain this server.
var _ api.GracefulShutdown = (*Server)(nil)

// Handler is invoked on the loop goroutine once a Connection has been
// fully wired (both inbound and outbound). It must not block; use
// conn.Endpoint().SetOnData/SetOnWritable to register the actual read/write
// callbacks, which run later on subsequent readiness notifications.
type Handler func(conn *endpoint.Connection)

// NewServer builds the Server facade: constructs the manager.Pool, the
// listening socket, and wires handler as the per-connection callback.
func NewServer(cfg *Config, handler Handler, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for _, o := range opts {
		o(cfg)
	}

	mgrCfg := manager.DefaultConfig()
	if cfg.LoopCount > 0 {
		mgrCfg.LoopCount = cfg.LoopCount
	}
	if cfg.Workers > 0 {
		mgrCfg.Workers = cfg.Workers
	}
	mgrCfg.PinLoops = cfg.PinLoops
	mgrCfg.ConnectTimeout = cfg.ConnectTimeout
	mgrCfg.StopTimeout = cfg.StopTimeout
	mgrCfg.DumpTimeout = cfg.DumpTimeout

	bufMgr := pool.NewBufferPoolManager()
	bufPool := bufMgr.GetPool(cfg.BufferGroup)

	mgrPool, err := manager.New(mgrCfg, bufPool)
	if err != nil {
		return nil, err
	}
	if handler != nil {
		mgrPool.OnConnectionOpened(func(c selector.Connection) {
			if ec, ok := c.(*endpoint.Connection); ok {
				handler(ec)
			}
		})
	}

	listenFd, err := selector.ListenTCP(cfg.ListenAddr, cfg.Backlog)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		control:  adapters.NewControlAdapter(),
		listenFd: listenFd,
	}
	s.pool = mgrPool
	return s, nil
}

// Serve registers the listening socket and blocks until Shutdown is
// called. It must only be called once.
func (s *Server) Serve() error {
	if s.started {
		return ErrAlreadyRunning
	}
	s.started = true
	if err := s.pool.Listen(s.listenFd); err != nil {
		return err
	}
	s.pool.Run()
	return nil
}

// Shutdown stops every loop within cfg.ShutdownTimeout. It does not close
// the listening socket.
func (s *Server) Shutdown() error {
	done := make(chan error, 1)
	go func() { done <- s.pool.Stop() }()
	select {
	case err := <-done:
		return err
	case <-time.After(s.cfg.ShutdownTimeout):
		return errors.New("server: shutdown timed out")
	}
}

// Control exposes runtime config, metrics, and debug probes.
func (s *Server) Control() api.Control { return s.control }
