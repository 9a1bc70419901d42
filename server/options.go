// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import "time"

// ServerOption customizes a Config before NewServer builds the pool.
type ServerOption func(*Config)

// WithLoopCount overrides the number of selector loops (0 = runtime.NumCPU()).
func WithLoopCount(n int) ServerOption {
	return func(c *Config) { c.LoopCount = n }
}

// WithWorkers overrides the executor worker count (0 = runtime.NumCPU()).
func WithWorkers(n int) ServerOption {
	return func(c *Config) { c.Workers = n }
}

// WithPinLoops enables pinning each loop's goroutine to a distinct CPU.
func WithPinLoops(pin bool) ServerOption {
	return func(c *Config) { c.PinLoops = pin }
}

// WithConnectTimeout overrides the outbound connect deadline.
func WithConnectTimeout(d time.Duration) ServerOption {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithBacklog overrides the listen() backlog.
func WithBacklog(n int) ServerOption {
	return func(c *Config) { c.Backlog = n }
}
