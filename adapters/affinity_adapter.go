// File: adapters/affinity_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
// Description:
//   Adapter implementing the api.Affinity interface, delegating to the
//   top-level affinity package for CPU pinning. NUMA-node selection is not
//   modeled here: the one underlying primitive (pthread_setaffinity_np via
//   affinity.SetAffinity) pins an OS thread to a CPU, not a node.
//
// Package adapters provides glue code between the core API contracts
// and the concrete implementation packages.

package adapters

import (
	"runtime"

	"github.com/momentics/nioselect/affinity"
	"github.com/momentics/nioselect/api"
)

// AffinityAdapter implements api.Affinity using affinity.SetAffinity.
// It locks the calling goroutine to its OS thread before pinning, since
// affinity is an OS-thread property and Go goroutines are not otherwise
// bound to one.
type AffinityAdapter struct {
	currentCPU int
	pinned     bool
}

// NewAffinityAdapter creates a new AffinityAdapter with no binding.
func NewAffinityAdapter() api.Affinity {
	return &AffinityAdapter{currentCPU: -1}
}

// Pin locks the calling goroutine to its OS thread and pins that thread to
// cpuID. numaID is accepted for interface compatibility and ignored.
func (a *AffinityAdapter) Pin(cpuID int, numaID int) error {
	if cpuID < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "affinity: cpuID must be >= 0")
	}
	runtime.LockOSThread()
	if err := affinity.SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	a.currentCPU = cpuID
	a.pinned = true
	return nil
}

// Unpin releases the OS thread lock taken by Pin. The underlying CPU mask
// set by SetAffinity is not reset; the thread exits with the process.
func (a *AffinityAdapter) Unpin() error {
	if !a.pinned {
		return nil
	}
	runtime.UnlockOSThread()
	a.pinned = false
	a.currentCPU = -1
	return nil
}

// Get returns the currently effective CPU ID for this adapter; numaID is
// always -1 (not tracked).
func (a *AffinityAdapter) Get() (cpuID int, numaID int, err error) {
	return a.currentCPU, -1, nil
}
