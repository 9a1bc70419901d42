// File: adapters/executor_adapter.go
// Package adapters provides glue between core concurrency and api.Executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter implements the api.Executor interface by delegating to
// core/concurrency.Executor. It provides asynchronous task submission, dynamic
// resizing, and telemetry hooks, while preserving the lock-free execution
// semantics of the underlying worker pool.

package adapters

import (
	"github.com/momentics/nioselect/api"
	"github.com/momentics/nioselect/core/concurrency"
)

// ExecutorAdapter wraps a core/concurrency.Executor to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	exec *concurrency.Executor
}

// NewExecutorAdapter constructs an api.Executor with the given number of worker
// goroutines. When pinWorkers is true, worker i is pinned to CPU i.
func NewExecutorAdapter(workers int, pinWorkers bool) api.Executor {
	// Create a new Executor: lock-free local queues + global fallback queue.
	e := concurrency.NewExecutor(workers, pinWorkers)
	return &ExecutorAdapter{exec: e}
}

// Submit dispatches a task function to be executed asynchronously.
// Returns an error if the executor has been closed.
func (ea *ExecutorAdapter) Submit(task func()) error {
	// Delegates to internal Executor.Submit, which enqueues in a lock-free queue.
	return ea.exec.Submit(task)
}

// NumWorkers returns the current number of active worker goroutines.
// Under the hood, this reads the length of the worker slice managed by the internal Executor.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.exec.NumWorkers()
}

// Resize dynamically adjusts the size of the worker pool.
// When the executor was built with pinWorkers, each new worker i is pinned to CPU i.
func (ea *ExecutorAdapter) Resize(newCount int) {
	ea.exec.Resize(newCount)
}

// Close shuts down the executor, signaling all workers to exit and waiting for completion.
// This method ensures a graceful teardown: all submitted tasks are either executed or discarded safely.
func (ea *ExecutorAdapter) Close() {
	ea.exec.Close()
}
