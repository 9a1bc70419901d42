// File: selector/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop is the managed selector: one owner goroutine multiplexing non-blocking
// channels over a reactor.EventReactor, driven by a lock-free tri-state
// submit/select protocol. See DESIGN.md for the derivation of the CAS
// sequences from the originating design.

package selector

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/nioselect/reactor"
)

const (
	stateProcessing int32 = iota
	stateSelecting
	stateLocked
)

const (
	defaultStopTimeout = 5 * time.Second
	defaultDumpTimeout = 5 * time.Second
	defaultWaitBatch   = 128
)

// Loop owns one reactor.EventReactor, one run/add change buffer pair, and
// the fd->Key map. Everything but state and add is touched exclusively by
// the owner goroutine.
type Loop struct {
	id int

	state int32 // atomic; one of stateProcessing/stateSelecting/stateLocked
	run   *queue.Queue
	add   *queue.Queue

	mux     reactor.EventReactor
	manager Manager
	keys    map[uintptr]*Key

	stopTimeout time.Duration
	dumpTimeout time.Duration

	ownerGoroutineID int64
	started          atomic.Bool
	stopped          atomic.Bool
	doneCh           chan struct{}
}

// NewLoop constructs a Loop with its own reactor, owned by manager. It does
// not start running until Run is called (typically from a goroutine the
// manager spawns and pins with runtime.LockOSThread).
func NewLoop(id int, mux reactor.EventReactor, manager Manager) *Loop {
	return &Loop{
		id:          id,
		run:         queue.New(),
		add:         queue.New(),
		mux:         mux,
		manager:     manager,
		keys:        make(map[uintptr]*Key),
		stopTimeout: defaultStopTimeout,
		dumpTimeout: defaultDumpTimeout,
		doneCh:      make(chan struct{}),
	}
}

// ID returns this loop's diagnostic identifier.
func (l *Loop) ID() int { return l.id }

// SetStopTimeout overrides the default 5s shutdown bound. Must be called
// before Run.
func (l *Loop) SetStopTimeout(d time.Duration) { l.stopTimeout = d }

// SetDumpTimeout overrides the default 5s diagnostic-dump bound.
func (l *Loop) SetDumpTimeout(d time.Duration) { l.dumpTimeout = d }

// IsSelectorThread reports whether the calling goroutine is this loop's
// owner. Valid only after Run has started.
func (l *Loop) IsSelectorThread() bool {
	return l.started.Load() && currentGoroutineID() == atomic.LoadInt64(&l.ownerGoroutineID)
}

// Submit is the sole cross-thread entry point: safe from any goroutine,
// including the owner. It implements the PROCESSING/SELECTING/LOCKED
// protocol: a submitter observed in PROCESSING pays one CAS, one observed
// in SELECTING pays one CAS plus a wakeup, and the loop never misses a
// submission regardless of which state it lands in.
func (l *Loop) Submit(c Change) error {
	if l.stopped.Load() {
		return ErrLoopClosed
	}
	for {
		s := atomic.LoadInt32(&l.state)
		switch s {
		case stateProcessing:
			if atomic.CompareAndSwapInt32(&l.state, stateProcessing, stateLocked) {
				l.add.Add(c)
				atomic.StoreInt32(&l.state, stateProcessing)
				return nil
			}
		case stateSelecting:
			if atomic.CompareAndSwapInt32(&l.state, stateSelecting, stateLocked) {
				l.add.Add(c)
				if err := l.mux.Wakeup(); err != nil {
					log.Printf("selector: wakeup failed: %v", err)
				}
				// Deliberately land in PROCESSING, not SELECTING: the loop
				// is about to exit its wait, and restoring SELECTING would
				// invite a redundant wakeup from the next submitter.
				atomic.StoreInt32(&l.state, stateProcessing)
				return nil
			}
		case stateLocked:
			runtime.Gosched()
		default:
			panic(fmt.Sprintf("selector: impossible state %d", s))
		}
	}
}

// Run is the loop body. It blocks until Stop has fully executed and the
// final drain pass completes. Callers typically invoke Run from a freshly
// spawned goroutine pinned with runtime.LockOSThread.
func (l *Loop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	labelLoopGoroutine(fmt.Sprintf("selector-loop-%d", l.id))
	defer clearLoopGoroutineLabel()

	atomic.StoreInt64(&l.ownerGoroutineID, currentGoroutineID())
	l.started.Store(true)
	defer close(l.doneCh)

	for !l.stopped.Load() {
		l.runOnce()
	}
	// Final drain: changes that raced in alongside Stop (e.g. a submitter
	// that observed PROCESSING just before stopChange closed the mux) still
	// get to run exactly once before the loop actually exits. With stopped
	// set, runOnce drains run[] and any add[] batch, then skips the wait.
	l.runOnce()
}

// Done returns a channel closed once Run has fully exited.
func (l *Loop) Done() <-chan struct{} { return l.doneCh }

// runOnce is select() from the design: drain run[], reconcile state, wait,
// dispatch, yield, update keys.
func (l *Loop) runOnce() {
	for {
		s := atomic.LoadInt32(&l.state)
		switch s {
		case stateProcessing:
			l.drainRun()
			if atomic.CompareAndSwapInt32(&l.state, stateProcessing, stateLocked) {
				if l.add.Length() == 0 {
					atomic.StoreInt32(&l.state, stateSelecting)
					goto waitPhase
				}
				l.run, l.add = l.add, l.run
				atomic.StoreInt32(&l.state, stateProcessing)
				continue
			}
		case stateLocked:
			runtime.Gosched()
		default:
			panic(fmt.Sprintf("selector: impossible pre-wait state %d", s))
		}
	}

waitPhase:
	events := make([]reactor.Event, defaultWaitBatch)
	var n int
	var err error
	if !l.stopped.Load() {
		n, err = l.mux.Wait(events, -1)
	}

	// Reconcile state after the wait returns (or is skipped because the
	// loop is stopping), so the next pass always starts from PROCESSING.
	for {
		s := atomic.LoadInt32(&l.state)
		if s == stateSelecting {
			if atomic.CompareAndSwapInt32(&l.state, stateSelecting, stateProcessing) {
				break
			}
			continue
		}
		if s == stateProcessing {
			break // a submitter already flipped us; benign per design notes
		}
		runtime.Gosched()
	}

	if err != nil {
		log.Printf("selector: loop %d wait error: %v", l.id, err)
		return
	}

	ready := l.dispatchReady(events[:n])
	runtime.Gosched() // let momentarily-dispatched off-thread work settle
	l.updateKeys(ready)
}

// drainRun executes every change currently in run[], in order, recovering
// from any panic so one misbehaving change cannot kill the loop.
func (l *Loop) drainRun() {
	for l.run.Length() > 0 {
		c := l.run.Remove().(Change)
		l.runChange(c)
	}
}

func (l *Loop) runChange(c Change) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("selector: loop %d change panicked: %v", l.id, r)
		}
	}()
	c.Run(l)
}

// Start registers a listening fd as an acceptor on this loop.
func (l *Loop) Start(listenFd uintptr) error {
	return l.Submit(acceptorChange{listenFd: listenFd})
}

// Accept hands a freshly accept()-ed fd (with its user attachment) to this
// loop for endpoint creation.
func (l *Loop) Accept(fd uintptr, attachment any) error {
	return l.Submit(acceptChange{fd: fd, attachment: attachment})
}

// Connect begins a non-blocking outbound connect already in flight (fd was
// created and connect() issued by the caller; see DialTCP for a convenience
// wrapper that does both).
func (l *Loop) Connect(fd uintptr, attachment any) error {
	return l.Submit(connectChange{fd: fd, attachment: attachment})
}

// Stop submits a Stop change and waits up to stopTimeout for it to
// complete. Returns ErrStopTimeout if the bound is exceeded; the reactor is
// still closed and the loop goroutine still exits best-effort.
func (l *Loop) Stop() error {
	done := make(chan struct{})
	if err := l.Submit(stopChange{timeout: l.stopTimeout, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		l.stopped.Store(true)
		<-l.doneCh
		return nil
	case <-time.After(l.stopTimeout):
		l.stopped.Store(true)
		<-l.doneCh
		return ErrStopTimeout
	}
}

// Dump captures a diagnostic snapshot of every registered key, waiting up
// to dumpTimeout, and returns it with its Describe summary. It does not
// capture a stack sample of the loop goroutine. On timeout it returns
// ErrStopTimeout.
func (l *Loop) Dump() (string, []KeyDump, error) {
	sink := make(chan []KeyDump, 1)
	if err := l.Submit(dumpKeysChange{sink: sink}); err != nil {
		return "", nil, err
	}
	select {
	case keys := <-sink:
		return l.Describe(keys), keys, nil
	case <-time.After(l.dumpTimeout):
		return "", nil, ErrStopTimeout
	}
}

// Describe produces the "keys=%d selected=%d"-style one-line summary used
// by Dump.
func (l *Loop) Describe(keys []KeyDump) string {
	selected := 0
	for _, k := range keys {
		if k.ReadyOps != 0 {
			selected++
		}
	}
	return fmt.Sprintf("Loop id=%d keys=%d selected=%d", l.id, len(keys), selected)
}

func (l *Loop) openEndpoint(key *Key, attachment any) {
	ep, err := l.manager.NewEndPoint(key.fd, l, key)
	if err != nil {
		log.Printf("selector: loop %d newEndPoint failed: %v", l.id, err)
		l.closeKey(key)
		return
	}
	l.manager.EndPointOpened(ep)
	conn, err := l.manager.NewConnection(key.fd, ep, attachment)
	if err != nil {
		log.Printf("selector: loop %d newConnection failed: %v", l.id, err)
		l.manager.EndPointClosed(ep)
		l.closeKey(key)
		return
	}
	ep.SetConnection(conn)
	key.attachEndpoint(ep)
	// The key was registered with no interest, so it cannot show up in a
	// ready set until the endpoint declares some: let it do so now.
	before := key.interestOps
	ep.UpdateKey(key)
	if key.interestOps != before {
		if err := l.mux.Modify(key.fd, key.interestOps); err != nil {
			log.Printf("selector: loop %d modify fd=%d: %v", l.id, key.fd, err)
		}
	}
	l.manager.ConnectionOpened(conn)
}

func (l *Loop) closeKey(key *Key) {
	key.valid = false
	delete(l.keys, key.fd)
	_ = l.mux.Unregister(key.fd)
	_ = closeFD(key.fd)
}
