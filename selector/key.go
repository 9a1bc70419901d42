// File: selector/key.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Key is the per-fd registration record the loop keeps in sync with the
// reactor. Its attachment is a tagged variant rather than a Java-style
// runtime type switch: exactly one of none/connect/endpoint is live at a
// time, and only the loop goroutine ever mutates a Key.

package selector

import "github.com/momentics/nioselect/reactor"

type attachmentKind uint8

const (
	attachNone attachmentKind = iota
	attachConnect
	attachEndPoint
)

// Key mirrors java.nio.channels.SelectionKey: one multiplexer registration,
// one attachment slot, mutated exclusively on the owner goroutine.
type Key struct {
	fd          uintptr
	interestOps reactor.InterestOps
	readyOps    reactor.InterestOps
	valid       bool

	kind     attachmentKind
	connect  *pendingConnect
	endpoint SelectableEndPoint
}

func newKey(fd uintptr, ops reactor.InterestOps) *Key {
	return &Key{fd: fd, interestOps: ops, valid: true}
}

// Attachment returns the currently attached object, or nil.
func (k *Key) Attachment() any {
	switch k.kind {
	case attachConnect:
		return k.connect
	case attachEndPoint:
		return k.endpoint
	default:
		return nil
	}
}

func (k *Key) attachNone() {
	k.kind = attachNone
	k.connect = nil
	k.endpoint = nil
}

func (k *Key) attachConnectPending(c *pendingConnect) {
	k.kind = attachConnect
	k.connect = c
	k.endpoint = nil
}

func (k *Key) attachEndpoint(ep SelectableEndPoint) {
	k.kind = attachEndPoint
	k.endpoint = ep
	k.connect = nil
}

// Valid reports whether this key is still registered with the reactor.
func (k *Key) Valid() bool { return k.valid }

// InterestOps returns the ops this key is currently watched for.
func (k *Key) InterestOps() reactor.InterestOps { return k.interestOps }

// ReadyOps returns the ops that were ready in the most recent dispatch.
func (k *Key) ReadyOps() reactor.InterestOps { return k.readyOps }
