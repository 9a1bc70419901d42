// File: endpoint/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Endpoint is the default selector.SelectableEndPoint this module ships:
// a buffer-pooled, non-blocking byte-stream reader/writer driven entirely
// by the owning Loop's readiness callbacks. Protocol framing lives above
// this layer; Endpoint only moves bytes.

package endpoint

import (
	"errors"
	"io"
	"log"
	"sync"

	"github.com/momentics/nioselect/api"
	"github.com/momentics/nioselect/core/concurrency"
	"github.com/momentics/nioselect/reactor"
	"github.com/momentics/nioselect/selector"
)

// pendingWriteQueueSize bounds how many short-written chunks an Endpoint
// will queue behind a slow reader before Write starts rejecting further
// writes, so one stalled peer cannot grow one endpoint's buffering without
// limit.
const pendingWriteQueueSize = 1024

// ErrWriteQueueFull is returned by Write once the pending-write ring is
// full; the caller is expected to apply its own backpressure (e.g. stop
// reading further application data) rather than buffer unboundedly here.
var ErrWriteQueueFull = errors.New("endpoint: write queue full")

// BufferPool is the subset of api.BufferPool an Endpoint needs. Declared
// locally so this package depends on a capability, not the whole pool
// package.
type BufferPool interface {
	Get(size, numaPreferred int) api.Buffer
	Put(b api.Buffer)
}

// OnData, when set, is invoked with every chunk read from the socket. It
// runs on the Loop's owner goroutine from OnSelected, so it must not block;
// substantive work belongs behind the caller's Manager.Execute.
type OnData func(e *Endpoint, data []byte)

// OnWritable is invoked once a write-readiness flush has drained every
// chunk that Write had to queue.
type OnWritable func(e *Endpoint)

// Endpoint implements selector.SelectableEndPoint over a raw fd using
// read/write syscalls gated by the Loop's reactor readiness.
type Endpoint struct {
	fd   uintptr
	loop *selector.Loop
	key  *selector.Key
	pool BufferPool

	mu      sync.Mutex
	conn    selector.Connection
	closed  bool
	wantW   bool
	current []byte // head of the write queue, partially written
	pending *concurrency.RingBuffer[[]byte]

	onData     OnData
	onWritable OnWritable
}

// New constructs an Endpoint bound to fd and registered on loop via key.
// The manager typically calls SetOnData/SetOnWritable immediately after
// New returns, before the key becomes readable.
func New(fd uintptr, loop *selector.Loop, key *selector.Key, pool BufferPool) *Endpoint {
	return &Endpoint{
		fd:      fd,
		loop:    loop,
		key:     key,
		pool:    pool,
		pending: concurrency.NewRingBuffer[[]byte](pendingWriteQueueSize),
	}
}

// SetOnData installs the callback invoked with every chunk read from the
// socket. Safe to call from any goroutine; takes effect on the next read.
func (e *Endpoint) SetOnData(fn OnData) {
	e.mu.Lock()
	e.onData = fn
	e.mu.Unlock()
}

// SetOnWritable installs the callback invoked once queued writes drain.
func (e *Endpoint) SetOnWritable(fn OnWritable) {
	e.mu.Lock()
	e.onWritable = fn
	e.mu.Unlock()
}

// Close releases the socket. Safe to call more than once. It does not
// notify the Loop's manager or remove the loop's Key; callers outside the
// selector package should go through Destroy instead.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return closeFD(e.fd)
}

// Destroy asks the owning Loop to close this endpoint through its normal
// lifecycle path (ConnectionClosed then EndPointClosed), instead of just
// releasing the socket. This is what Connection.Close calls.
func (e *Endpoint) Destroy() error {
	return e.loop.DestroyEndpoint(e)
}

// Connection returns the Connection attached by SetConnection, or nil.
func (e *Endpoint) Connection() selector.Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn
}

// SetConnection attaches c; called once by the Loop during endpoint setup.
func (e *Endpoint) SetConnection(c selector.Connection) {
	e.mu.Lock()
	e.conn = c
	e.mu.Unlock()
}

// Write queues p for sending. If nothing is already queued, the socket is
// tried inline; a short or blocked write is queued behind any existing
// backlog and OpWrite interest is raised so UpdateKey retries it on the
// next writable notification. Once anything is queued, later writes always
// enqueue rather than racing the flush path to the wire, which would
// reorder bytes ahead of the backlog.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	total := len(p)
	if !e.wantW {
		n, err := writeFD(e.fd, p)
		if err != nil && !errors.Is(err, errWouldBlock) {
			return n, err
		}
		if n == len(p) {
			return total, nil
		}
		p = p[n:]
	}
	if !e.pending.Enqueue(p) {
		return 0, ErrWriteQueueFull
	}
	e.wantW = true
	return total, nil
}

// OnSelected is the loop's readiness callback: reads any available data,
// handing chunks to OnData, and flushes queued writes on write readiness.
func (e *Endpoint) OnSelected(key *selector.Key) {
	ready := key.ReadyOps()
	if ready&reactor.OpRead != 0 {
		e.readReady()
	}
	if ready&reactor.OpWrite != 0 {
		e.flushPending()
	}
}

func (e *Endpoint) readReady() {
	buf := e.pool.Get(64*1024, -1)
	defer buf.Release()
	n, err := readFD(e.fd, buf.Bytes())
	if err != nil && !errors.Is(err, errWouldBlock) {
		if err != io.EOF {
			log.Printf("endpoint: read error fd=%d: %v", e.fd, err)
		}
		_ = e.Close()
		return
	}
	e.mu.Lock()
	onData := e.onData
	e.mu.Unlock()
	if n > 0 && onData != nil {
		onData(e, buf.Bytes()[:n])
	}
}

func (e *Endpoint) flushPending() {
	e.mu.Lock()
	for {
		if e.current == nil {
			item, ok := e.pending.Dequeue()
			if !ok {
				break
			}
			e.current = item
		}
		n, err := writeFD(e.fd, e.current)
		if err != nil && !errors.Is(err, errWouldBlock) {
			log.Printf("endpoint: write error fd=%d: %v", e.fd, err)
			e.mu.Unlock()
			return
		}
		if n < len(e.current) {
			e.current = e.current[n:]
			e.mu.Unlock()
			return
		}
		e.current = nil
	}
	e.wantW = false
	onWritable := e.onWritable
	e.mu.Unlock()
	if onWritable != nil {
		onWritable(e)
	}
}

// UpdateKey runs once per readiness sweep, after OnSelected: it reasserts
// read interest plus write interest only while writes are pending, so an
// idle writable socket does not keep spinning the reactor.
func (e *Endpoint) UpdateKey(key *selector.Key) {
	e.mu.Lock()
	wantW := e.wantW
	e.mu.Unlock()

	ops := reactor.OpRead
	if wantW {
		ops |= reactor.OpWrite
	}
	key.SetInterestOps(ops)
}
