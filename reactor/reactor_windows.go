//go:build windows
// +build windows

// File: reactor/reactor_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows IOCP (I/O Completion Port) reactor implementation and factory.
//
// IOCP is completion-based: GetQueuedCompletionStatus reports that an
// overlapped operation finished, not that a handle is currently readable or
// writable. EventReactor's contract is readiness-based (level-triggered,
// re-reported until the interest is satisfied or changed). This backend is
// therefore best-effort: Modify and Unregister only update or drop the ops
// this backend records — once a handle is associated with the port there is
// no IOCP primitive to change or revoke that association — and every Wait
// call surfaces whatever overlapped completion arrived, tagged with the ops
// currently recorded for its completion key, rather than a freshly computed
// readiness set. Callers that need true
// readiness semantics on Windows should issue zero-byte overlapped
// reads/writes themselves and treat their completion as the readiness
// signal; this reactor only multiplexes the completions.
package reactor

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsReactor is an IOCP-based event reactor.
type windowsReactor struct {
	iocp windows.Handle

	mu       sync.Mutex
	interest map[uintptr]InterestOps
}

// NewReactor constructs a new platform-specific EventReactor for Windows.
func NewReactor() (EventReactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &windowsReactor{iocp: port, interest: make(map[uintptr]InterestOps)}, nil
}

// Register associates a handle with IOCP.
func (r *windowsReactor) Register(handle uintptr, ops InterestOps, userData uintptr) error {
	h := windows.Handle(handle)
	_, err := windows.CreateIoCompletionPort(h, r.iocp, userData, 0)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.interest[handle] = ops
	r.mu.Unlock()
	return nil
}

// Modify leaves the IOCP association untouched (IOCP has no API to change
// it); it only records ops, which Wait reports as the Ready set.
func (r *windowsReactor) Modify(handle uintptr, ops InterestOps) error {
	r.mu.Lock()
	r.interest[handle] = ops
	r.mu.Unlock()
	return nil
}

// Unregister only forgets the recorded ops: IOCP associations cannot be
// revoked short of closing the handle itself.
func (r *windowsReactor) Unregister(handle uintptr) error {
	r.mu.Lock()
	delete(r.interest, handle)
	r.mu.Unlock()
	return nil
}

// Wait blocks for a completion and fills the output slice with one event.
func (r *windowsReactor) Wait(events []Event, timeoutMs int) (int, error) {
	if len(events) == 0 {
		return 0, errors.New("reactor: empty event buffer")
	}

	var key uintptr
	var overlapped *windows.Overlapped

	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	err := windows.GetQueuedCompletionStatus(r.iocp, nil, &key, &overlapped, timeout)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, err
	}
	if overlapped == nil {
		// Posted by Wakeup: not a real completion.
		return 0, nil
	}
	r.mu.Lock()
	ops := r.interest[key]
	r.mu.Unlock()
	events[0] = Event{
		Fd:       uintptr(unsafe.Pointer(overlapped)),
		Ready:    ops,
		UserData: key,
	}
	return 1, nil
}

// Wakeup posts a zero-overlapped completion, which Wait recognizes and
// swallows without producing an Event.
func (r *windowsReactor) Wakeup() error {
	return windows.PostQueuedCompletionStatus(r.iocp, 0, 0, nil)
}

// Close closes the IOCP handle.
func (r *windowsReactor) Close() error {
	return windows.CloseHandle(r.iocp)
}
