// File: selector/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness dispatch: turning a batch of reactor.Event into calls on
// attached endpoints, accepts, and in-flight connects. Runs entirely on the
// owner goroutine, once per Loop.runOnce iteration.

package selector

import (
	"log"

	"github.com/momentics/nioselect/reactor"
)

// dispatchReady walks the ready-key set once, dispatching each key per its
// attachment kind, and returns the still-valid keys for the follow-up
// UpdateKey sweep.
func (l *Loop) dispatchReady(events []reactor.Event) []*Key {
	ready := make([]*Key, 0, len(events))
	for _, ev := range events {
		key, ok := l.keys[ev.Fd]
		if !ok || !key.valid {
			log.Printf("selector: loop %d ignoring event for cancelled key fd=%d", l.id, ev.Fd)
			continue
		}
		key.readyOps = ev.Ready
		l.processKey(key)
		if key.valid {
			ready = append(ready, key)
		}
	}
	return ready
}

// processKey dispatches one ready key according to its attachment. Any
// panic from endpoint code is recovered here: logged as a warning and the
// endpoint closed, never propagated to the loop.
func (l *Loop) processKey(key *Key) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("selector: loop %d key fd=%d panicked: %v", l.id, key.fd, r)
			l.closeAttached(key)
		}
	}()

	switch key.kind {
	case attachEndPoint:
		key.endpoint.OnSelected(key)
	case attachConnect:
		l.processConnect(key)
	default:
		if key.readyOps&reactor.OpAccept != 0 {
			l.processAccept(key)
		} else {
			log.Printf("selector: loop %d key fd=%d ready with no attachment and no accept interest", l.id, key.fd)
			l.closeKey(key)
		}
	}
}

// processAccept drains every pending connection on a ready listener in one
// pass, handing each to the manager for loop assignment.
func (l *Loop) processAccept(key *Key) {
	for {
		fd, ok, err := acceptOne(key.fd)
		if err != nil {
			log.Printf("selector: loop %d accept error on fd=%d: %v", l.id, key.fd, err)
			return
		}
		if !ok {
			return
		}
		if err := l.manager.Accepted(fd); err != nil {
			log.Printf("selector: loop %d manager rejected accepted fd=%d: %v", l.id, fd, err)
			_ = closeFD(fd)
		}
	}
}

// processConnect completes or fails a non-blocking connect. The user
// attachment the caller originally submitted with Connect is handed
// straight to openEndpoint on success, standing in for the spec's
// "re-attach key to user attachment first" step without needing a third
// transient attachment kind.
func (l *Loop) processConnect(key *Key) {
	pc := key.connect
	ok, err := l.manager.FinishConnect(key.fd)
	if !ok {
		pc.fail(l, ConnectRefused, err)
		delete(l.keys, key.fd)
		_ = l.mux.Unregister(key.fd)
		key.valid = false
		return
	}
	if pc.timeout != nil {
		pc.timeout.Cancel()
	}
	if err := l.mux.Modify(key.fd, 0); err != nil {
		log.Printf("selector: loop %d clear interest on connect fd=%d: %v", l.id, key.fd, err)
	}
	key.interestOps = 0
	l.openEndpoint(key, pc.attachment)
}

// closeAttached closes whatever is attached to key (an EndPoint, if any)
// and removes the key, used when a dispatch panics or a protocol error is
// detected.
func (l *Loop) closeAttached(key *Key) {
	if key.kind == attachEndPoint {
		ep := key.endpoint
		_ = ep.Close()
		l.manager.ConnectionClosed(ep.Connection())
		l.manager.EndPointClosed(ep)
	}
	l.closeKey(key)
}

// destroyEndpointChange is DestroyEndpoint's on-loop realization: find the
// key still wearing ep and run it through the same close-and-notify path
// closeAttached uses for a panic-triggered close.
type destroyEndpointChange struct {
	ep SelectableEndPoint
}

func (c destroyEndpointChange) Run(l *Loop) {
	for _, key := range l.keys {
		if key.kind == attachEndPoint && key.endpoint == c.ep {
			l.closeAttached(key)
			return
		}
	}
}

// DestroyEndpoint is the loop's upward-facing normal-close entry point: a
// Manager (or protocol code holding an EndPoint) calls this to request an
// orderly close, firing ConnectionClosed then EndPointClosed exactly as
// closeAttached does for an error-triggered one. Safe to call from any
// goroutine.
func (l *Loop) DestroyEndpoint(ep SelectableEndPoint) error {
	return l.Submit(destroyEndpointChange{ep: ep})
}

// updateKeys is the second sweep of an iteration: once every OnSelected
// call in this batch has settled, let each still-valid endpoint rewrite its
// interest ops, then push any change down to the reactor.
func (l *Loop) updateKeys(ready []*Key) {
	for _, key := range ready {
		if !key.valid || key.kind != attachEndPoint {
			continue
		}
		before := key.interestOps
		key.endpoint.UpdateKey(key)
		if key.interestOps != before {
			if err := l.mux.Modify(key.fd, key.interestOps); err != nil {
				log.Printf("selector: loop %d modify fd=%d: %v", l.id, key.fd, err)
			}
		}
	}
}

// SetInterestOps lets an endpoint rewrite its key's interest ops from
// within UpdateKey or OnSelected; the loop applies the change to the
// reactor after the current sweep completes.
func (k *Key) SetInterestOps(ops reactor.InterestOps) {
	k.interestOps = ops
}
