// File: endpoint/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package endpoint

// Connection is the default selector.Connection this package ships: a
// thin wrapper around an Endpoint plus whatever attachment the caller
// originally handed to Accept/Connect (a protocol handler, a request
// context, anything the manager wants to recover later).
type Connection struct {
	ep         *Endpoint
	Attachment any
}

// NewConnection builds a Connection over ep, carrying attachment.
func NewConnection(ep *Endpoint, attachment any) *Connection {
	return &Connection{ep: ep, Attachment: attachment}
}

// Close asks the owning Loop to destroy the underlying Endpoint through
// its normal lifecycle path, so the loop's Key and the manager's
// bookkeeping stay in sync with the socket going away.
func (c *Connection) Close() error { return c.ep.Destroy() }

// Endpoint returns the underlying Endpoint for protocol code that needs
// to call Write directly.
func (c *Connection) Endpoint() *Endpoint { return c.ep }
