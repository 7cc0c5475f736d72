package transport

import (
	"errors"
	"fmt"
)

// ============================================================================
// Standard Transport Errors
// ============================================================================

// Hooks sending a response should check for these with errors.Is and decide
// for themselves whether the failure matters. Datagram delivery is best
// effort, so the dispatcher never retries a send on their behalf.
//
// Usage Pattern:
//
//	if err := rc.Send(reply); err != nil {
//	    if errors.Is(err, transport.ErrSocketNotAvailable) {
//	        return // server is shutting down
//	    }
//	    logger.Warn("reply to %s failed: %v", rc.Peer(), err)
//	}

var (
	// ErrSocketNotAvailable indicates there is no usable socket.
	//
	// This error is returned when:
	//   - The request context was built without a transport (tests, replays)
	//   - The socket was closed during shutdown
	ErrSocketNotAvailable = errors.New("socket not available")

	// ErrAddressNotAvailable indicates no destination address was supplied.
	//
	// This error is returned when:
	//   - SendTo is called with an invalid (zero) netip.AddrPort
	//   - A synthetic request context has no peer
	ErrAddressNotAvailable = errors.New("address not available")

	// ErrInterrupted indicates a pending Receive was woken by Interrupt.
	//
	// The socket is still open. The accept loop treats it as the signal to
	// check for shutdown.
	ErrInterrupted = errors.New("receive interrupted")
)

// BindError is returned when the socket cannot be bound to its address.
type BindError struct {
	// Address is the host:port that was requested
	Address string

	// Err is the underlying OS error
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("UDP bind error: %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ReadError wraps an OS failure while receiving a datagram.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("UDP read error: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// SendError wraps an OS failure while sending a datagram to Peer.
type SendError struct {
	Peer string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Peer, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
