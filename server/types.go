// File: server/types.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/nioselect/api"
	"github.com/momentics/nioselect/manager"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. ":9000"
	Backlog         int           // listen() backlog
	LoopCount       int           // number of selector loops, 0 = runtime.NumCPU()
	Workers         int           // executor worker goroutines, 0 = runtime.NumCPU()
	PinLoops        bool          // pin each loop's goroutine to a CPU
	BufferGroup     int           // buffer pool locality group, -1 = default
	ConnectTimeout  time.Duration // outbound connect deadline
	StopTimeout     time.Duration // graceful shutdown bound per loop
	DumpTimeout     time.Duration // diagnostic dump bound per loop
	ShutdownTimeout time.Duration // overall Shutdown bound
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9000",
		Backlog:         1024,
		LoopCount:       0,
		Workers:         0,
		PinLoops:        false,
		BufferGroup:     -1,
		ConnectTimeout:  10 * time.Second,
		StopTimeout:     5 * time.Second,
		DumpTimeout:     5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the high-level façade wrapping a manager.Pool, the listening
// socket, and the control-plane stack behind a start/stop lifecycle.
type Server struct {
	cfg      *Config
	control  api.Control
	pool     *manager.Pool
	listenFd uintptr
	started  bool
}
