// File: selector/change.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Change is a unit of deferred work that runs exactly once on the loop
// goroutine. The built-in variants below are the ones the core recognizes;
// external callers submit a Func(fn) to adapt an arbitrary closure to the
// same contract.

package selector

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/momentics/nioselect/reactor"
)

// Change runs exactly once on the owner goroutine. A Change that panics is
// recovered by the loop's drain (runChange) and logged at debug; it never
// aborts the loop.
type Change interface {
	Run(l *Loop)
}

// Func adapts a plain closure to Change, for callers outside this package
// that only need "run this on the loop goroutine" without a dedicated type.
type Func func()

func (f Func) Run(l *Loop) { f() }

// pendingConnect tracks one in-flight outbound connect. failed transitions
// false->true at most once; exactly one of {success handoff, failed()}
// ever runs past that transition, releasing the scheduled timeout.
type pendingConnect struct {
	fd         uintptr
	attachment any
	timeout    Cancelable
	failed     atomic.Bool
}

// fail wins the failed CAS at most once; on win it cancels the timeout,
// closes the socket, and notifies the manager. Redundant calls are no-ops,
// satisfying the idempotent-connect-failure invariant.
func (c *pendingConnect) fail(l *Loop, code ConnectFailure, cause error) {
	if !c.failed.CompareAndSwap(false, true) {
		return
	}
	if c.timeout != nil {
		c.timeout.Cancel()
	}
	_ = closeFD(c.fd)
	l.manager.ConnectionFailed(c.fd, newConnectError(code, cause), c.attachment)
}

// acceptorChange registers a listening fd with accept interest and no
// attachment. Errors close the channel; the spec treats this as a fatal
// action on that key alone, never on the loop.
type acceptorChange struct {
	listenFd uintptr
}

func (c acceptorChange) Run(l *Loop) {
	if err := l.mux.Register(c.listenFd, reactor.OpAccept, c.listenFd); err != nil {
		log.Printf("selector: acceptor register failed: %v", err)
		_ = closeFD(c.listenFd)
		return
	}
	l.keys[c.listenFd] = newKey(c.listenFd, reactor.OpAccept)
}

// acceptChange registers a freshly accept()-ed fd, builds its endpoint, and
// attaches the key to it.
type acceptChange struct {
	fd         uintptr
	attachment any
}

func (c acceptChange) Run(l *Loop) {
	if err := l.mux.Register(c.fd, 0, c.fd); err != nil {
		log.Printf("selector: accept register failed: %v", err)
		_ = closeFD(c.fd)
		return
	}
	key := newKey(c.fd, 0)
	l.keys[c.fd] = key
	l.openEndpoint(key, c.attachment)
}

// connectChange begins a non-blocking outbound connect: the socket is
// already created (EINPROGRESS observed by the caller of Connect), and this
// Run registers it for OpConnect readiness with a scheduled timeout task.
type connectChange struct {
	fd         uintptr
	attachment any
}

func (c connectChange) Run(l *Loop) {
	pc := &pendingConnect{fd: c.fd, attachment: c.attachment}
	timeout, err := l.manager.Schedule(l.manager.ConnectTimeout(), func() {
		l.Submit(connectTimeoutChange{pc: pc})
	})
	if err != nil {
		pc.fail(l, ConnectRegistrationFailed, err)
		return
	}
	pc.timeout = timeout

	if err := l.mux.Register(c.fd, reactor.OpConnect, c.fd); err != nil {
		pc.fail(l, ConnectRegistrationFailed, err)
		return
	}
	key := newKey(c.fd, reactor.OpConnect)
	key.attachConnectPending(pc)
	l.keys[c.fd] = key
}

// connectTimeoutChange is submitted back to the loop by the scheduler when
// a connect's timeout fires. If the key is still pending on that exact
// pendingConnect, the connect is failed with a timeout indication.
type connectTimeoutChange struct {
	pc *pendingConnect
}

func (c connectTimeoutChange) Run(l *Loop) {
	key, ok := l.keys[c.pc.fd]
	if !ok || key.kind != attachConnect || key.connect != c.pc {
		return // already resolved (success or prior failure)
	}
	c.pc.fail(l, ConnectTimedOut, nil)
	delete(l.keys, c.pc.fd)
	_ = l.mux.Unregister(c.pc.fd)
}

// stopChange drains outstanding endpoints sequentially (bounded by the
// overall stop_timeout remaining budget, see DESIGN.md), closes the
// multiplexer, and releases done.
type stopChange struct {
	timeout time.Duration
	done    chan struct{}
}

func (c stopChange) Run(l *Loop) {
	deadline := time.Now().Add(c.timeout)
	for fd, key := range l.keys {
		if key.kind != attachEndPoint {
			continue
		}
		ep := key.endpoint
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		closed := make(chan struct{})
		if err := l.manager.Execute(func() {
			_ = ep.Close()
			close(closed)
		}); err != nil {
			_ = ep.Close()
			close(closed)
		}
		select {
		case <-closed:
		case <-time.After(remaining):
			log.Printf("selector: stop timed out closing endpoint fd=%d", fd)
		}
	}
	_ = l.mux.Close()
	close(c.done)
}

// KeyDump is one row of a diagnostic snapshot produced by DumpKeys.
type KeyDump struct {
	Fd          uintptr
	InterestOps reactor.InterestOps
	ReadyOps    reactor.InterestOps
	Attachment  any
}

type dumpKeysChange struct {
	sink chan []KeyDump
}

func (c dumpKeysChange) Run(l *Loop) {
	out := make([]KeyDump, 0, len(l.keys))
	for fd, key := range l.keys {
		out = append(out, KeyDump{
			Fd:          fd,
			InterestOps: key.interestOps,
			ReadyOps:    key.readyOps,
			Attachment:  key.Attachment(),
		})
	}
	c.sink <- out
}
