// File: selector/goroutine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Go has no public analogue of Thread.currentThread(): goroutines are not
// addressable identities. currentGoroutineID parses the header line of
// runtime.Stack's own output ("goroutine N [running]:") to recover a stable
// per-goroutine integer, the only mechanism the standard library exposes
// for this (see DESIGN.md for why no third-party library covers it either).
// It is only ever compared for equality against a value captured the same
// way, never displayed or relied on to be stable across runtime versions.

package selector

import (
	"context"
	"runtime"
	"runtime/pprof"
	"strconv"
)

func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Header looks like "goroutine 123 [running]:\n..."
	b := buf[:n]
	const prefix = "goroutine "
	if len(b) <= len(prefix) {
		return -1
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] != ' ' {
		i++
	}
	id, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// labelLoopGoroutine gives Run a Go-idiomatic analogue of renaming the OS
// thread for diagnostics: a pprof label attached to the owner goroutine for
// the duration of Run, visible in goroutine profiles and execution traces.
// clearLoopGoroutineLabel restores the unlabeled state on exit.
func labelLoopGoroutine(name string) {
	ctx := pprof.WithLabels(context.Background(), pprof.Labels("selector_loop", name))
	pprof.SetGoroutineLabels(ctx)
}

func clearLoopGoroutineLabel() {
	pprof.SetGoroutineLabels(context.Background())
}
