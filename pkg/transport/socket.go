// Package transport owns the bound UDP socket shared by the accept loop and
// the hooks replying to peers.
package transport

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Options tunes a socket at bind time. Zero values keep the OS defaults.
type Options struct {
	// ReadBufferSize sets SO_RCVBUF in bytes
	ReadBufferSize int

	// WriteBufferSize sets SO_SNDBUF in bytes
	WriteBufferSize int

	// TTL sets the unicast IPv4 TTL and the IPv6 hop limit
	TTL int
}

// Socket is a bound UDP socket.
//
// Receive and SendTo hold the read side of the lock only for the duration
// of the OS call, so replies can be sent while the accept loop is blocked in
// a read. Close takes the write side to detach the connection.
//
// Thread safety:
// All methods are safe for concurrent use.
type Socket struct {
	mu        sync.RWMutex
	conn      *net.UDPConn
	local     netip.AddrPort
	closeOnce sync.Once
	closeErr  error
}

// Bind opens a UDP socket on address (host:port) and applies opts.
//
// Returns *BindError on failure. The caller owns the socket and must Close it.
func Bind(ctx context.Context, address string, opts Options) (*Socket, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, &BindError{Address: address, Err: err}
	}

	conn := pc.(*net.UDPConn)
	if err := configure(conn, opts); err != nil {
		_ = conn.Close()
		return nil, &BindError{Address: address, Err: err}
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return &Socket{
		conn:  conn,
		local: netip.AddrPortFrom(local.Addr().Unmap(), local.Port()),
	}, nil
}

func configure(conn *net.UDPConn, opts Options) error {
	if opts.ReadBufferSize > 0 {
		if err := conn.SetReadBuffer(opts.ReadBufferSize); err != nil {
			return err
		}
	}
	if opts.WriteBufferSize > 0 {
		if err := conn.SetWriteBuffer(opts.WriteBufferSize); err != nil {
			return err
		}
	}
	if opts.TTL > 0 {
		// Wildcard binds are dual-stack, so either option may be the one
		// that applies. Only fail if neither does.
		err4 := ipv4.NewConn(conn).SetTTL(opts.TTL)
		err6 := ipv6.NewConn(conn).SetHopLimit(opts.TTL)
		if err4 != nil && err6 != nil {
			return err4
		}
	}
	return nil
}

// LocalAddr returns the bound address, with the OS-assigned port resolved.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.local
}

// Receive reads one datagram into buf.
//
// Returns the number of bytes read and the sender. Datagrams larger than
// buf are truncated. Errors are ErrInterrupted after Interrupt,
// ErrSocketNotAvailable after Close, and *ReadError otherwise.
func (s *Socket) Receive(buf []byte) (int, netip.AddrPort, error) {
	s.mu.RLock()
	conn := s.conn
	if conn == nil {
		s.mu.RUnlock()
		return 0, netip.AddrPort{}, ErrSocketNotAvailable
	}
	n, peer, err := conn.ReadFromUDPAddrPort(buf)
	s.mu.RUnlock()

	if err != nil {
		switch {
		case errors.Is(err, os.ErrDeadlineExceeded):
			return 0, netip.AddrPort{}, ErrInterrupted
		case errors.Is(err, net.ErrClosed):
			return 0, netip.AddrPort{}, ErrSocketNotAvailable
		}
		return 0, netip.AddrPort{}, &ReadError{Err: err}
	}

	return n, netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port()), nil
}

// SendTo writes b to peer as a single datagram.
func (s *Socket) SendTo(b []byte, peer netip.AddrPort) error {
	if !peer.IsValid() {
		return ErrAddressNotAvailable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return ErrSocketNotAvailable
	}
	if _, err := s.conn.WriteToUDPAddrPort(b, peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrSocketNotAvailable
		}
		return &SendError{Peer: peer.String(), Err: err}
	}
	return nil
}

// Interrupt wakes a goroutine blocked in Receive without closing the socket.
// Every later Receive also returns ErrInterrupted until Resume is called.
func (s *Socket) Interrupt() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return ErrSocketNotAvailable
	}
	return s.conn.SetReadDeadline(time.Now())
}

// Resume clears the effect of Interrupt.
func (s *Socket) Resume() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.conn == nil {
		return ErrSocketNotAvailable
	}
	return s.conn.SetReadDeadline(time.Time{})
}

// Close tears the socket down. Blocked receives return ErrSocketNotAvailable.
// Calling Close more than once returns the first result.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		if conn == nil {
			return
		}

		// Closing first unblocks any reader still holding the read lock.
		s.closeErr = conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Socket) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn == nil
}
