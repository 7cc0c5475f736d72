// Package request defines the per-datagram context handed to every hook.
package request

import (
	"bytes"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoudp/pkg/attribute"
	"github.com/marmos91/dittoudp/pkg/transport"
)

// Sender writes one datagram to a peer. *transport.Socket implements it.
type Sender interface {
	SendTo(b []byte, peer netip.AddrPort) error
}

// Context carries one datagram through the hook pipeline.
//
// The payload and peer are fixed at construction. The response buffer, the
// abort flag and the attributes are mutable and guarded by the context's
// own lock, because a hook may hand the context to a goroutine that
// outlives it.
//
// Thread safety:
// All methods are safe for concurrent use. No lock is held while sending.
type Context struct {
	id         uuid.UUID
	sender     Sender
	payload    []byte
	peer       netip.AddrPort
	receivedAt time.Time
	attributes *attribute.Store

	mu       sync.RWMutex
	response []byte
	aborted  bool
}

// New creates a context for payload received from peer.
//
// sender may be nil and peer may be the zero value; such a synthetic
// context behaves normally except that Send fails with
// transport.ErrSocketNotAvailable or transport.ErrAddressNotAvailable.
// The context takes ownership of payload.
func New(sender Sender, payload []byte, peer netip.AddrPort) *Context {
	return &Context{
		id:         uuid.New(),
		sender:     sender,
		payload:    payload,
		peer:       peer,
		receivedAt: time.Now(),
		attributes: attribute.New(),
	}
}

// ID uniquely identifies this datagram in logs.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Payload returns the datagram bytes. Callers must not modify them.
func (c *Context) Payload() []byte {
	return c.payload
}

// Peer returns the sender's address, or the zero value for synthetic contexts.
func (c *Context) Peer() netip.AddrPort {
	return c.peer
}

// PeerHost returns the sender's IP address.
func (c *Context) PeerHost() netip.Addr {
	return c.peer.Addr()
}

// PeerPort returns the sender's port.
func (c *Context) PeerPort() uint16 {
	return c.peer.Port()
}

// ReceivedAt returns when the context was created.
func (c *Context) ReceivedAt() time.Time {
	return c.receivedAt
}

// Response returns a copy of the response buffer. It is empty until a hook
// calls SetResponse or Send.
func (c *Context) Response() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return bytes.Clone(c.response)
}

// SetResponse replaces the response buffer with a copy of b.
func (c *Context) SetResponse(b []byte) {
	r := bytes.Clone(b)

	c.mu.Lock()
	c.response = r
	c.mu.Unlock()
}

// Send records b as the response and writes it to the peer as one datagram.
//
// The response is recorded even when the write fails. Errors are
// transport.ErrSocketNotAvailable, transport.ErrAddressNotAvailable or
// *transport.SendError.
func (c *Context) Send(b []byte) error {
	c.SetResponse(b)

	if c.sender == nil {
		return transport.ErrSocketNotAvailable
	}
	if !c.peer.IsValid() {
		return transport.ErrAddressNotAvailable
	}
	return c.sender.SendTo(b, c.peer)
}

// Abort stops the pipeline after the currently running hook returns.
func (c *Context) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.mu.Unlock()
}

// CancelAbort clears a previous Abort. It only has an effect if called
// before the running hook returns.
func (c *Context) CancelAbort() {
	c.mu.Lock()
	c.aborted = false
	c.mu.Unlock()
}

// IsAborted reports whether Abort is in effect.
func (c *Context) IsAborted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aborted
}

// Attributes returns the context's attribute store.
func (c *Context) Attributes() *attribute.Store {
	return c.attributes
}

// RemoveAttribute deletes key from the attributes.
func (c *Context) RemoveAttribute(key string) {
	c.attributes.Remove(key)
}

// ClearAttributes deletes every attribute.
func (c *Context) ClearAttributes() {
	c.attributes.Clear()
}

// SetAttribute stores value under key on c.
func SetAttribute[T any](c *Context, key string, value T) {
	attribute.Set(c.attributes, key, value)
}

// GetAttribute returns the value stored under key if it has type T exactly.
func GetAttribute[T any](c *Context, key string) (T, bool) {
	return attribute.Get[T](c.attributes, key)
}

// TrimTrailingZeros returns b without its trailing NUL bytes.
//
// Useful for clients that send fixed-size, zero-padded frames.
func TrimTrailingZeros(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}
