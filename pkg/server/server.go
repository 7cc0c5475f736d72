// Package server is the entry point for building a UDP request/response
// service: configure the socket, register hooks and handlers, then Run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/adapter"
	"github.com/marmos91/dittoudp/pkg/adapter/udp"
	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/metrics"
	"github.com/marmos91/dittoudp/pkg/recovery"
	"github.com/marmos91/dittoudp/pkg/shutdown"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("server is already running")

// Server owns the configuration, the hook pipeline and the dispatcher of
// one UDP endpoint.
//
// Lifecycle:
//  1. Creation: New() with a UDP configuration
//  2. Configuration: Host/Port/BufferSize/TTL and the Set* methods
//  3. Registration: RegisterHook() and RegisterHandler(), in execution order
//  4. Startup: Run() binds the socket and starts dispatching in the background
//  5. Shutdown: the returned controller's Shutdown(), or ctx cancellation
//
// Configuration and registration panic once Run has been called.
//
// Thread safety:
// All methods are safe for concurrent use.
//
// Example usage:
//
//	srv := server.New(udp.Config{Host: "127.0.0.1", Port: 9000})
//	srv.RegisterHandler(func(rc *request.Context) {
//	    _ = rc.Send([]byte("pong"))
//	})
//
//	ctl, err := srv.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctl.Wait()
type Server struct {
	mu sync.Mutex

	// config is copied into the dispatcher by Run
	config udp.Config

	pipeline *hook.Pipeline

	errorHandler     recovery.ErrorHandler
	readErrorHandler func(error)
	metrics          metrics.UDPMetrics

	// adapter is nil until Run succeeds
	adapter *udp.UDPAdapter

	// starting is set while Run binds with mu released
	starting bool
	running  bool
}

// New creates a Server in a stopped state.
func New(config udp.Config) *Server {
	return &Server{
		config:       config,
		pipeline:     hook.NewPipeline(),
		errorHandler: recovery.DefaultErrorHandler,
	}
}

// ============================================================================
// Configuration
// ============================================================================

func (s *Server) configure(fn func()) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.starting {
		panic("cannot change server configuration after Run() has been called")
	}
	fn()
	return s
}

// Host sets the bind address.
func (s *Server) Host(host string) *Server {
	return s.configure(func() { s.config.Host = host })
}

// Port sets the bind port. 0 lets the OS choose.
func (s *Server) Port(port int) *Server {
	return s.configure(func() { s.config.Port = port })
}

// BufferSize sets the largest datagram accepted without truncation.
func (s *Server) BufferSize(size int) *Server {
	return s.configure(func() { s.config.BufferSize = size })
}

// TTL sets the IP time-to-live of outgoing datagrams.
func (s *Server) TTL(ttl int) *Server {
	return s.configure(func() { s.config.TTL = ttl })
}

// Config returns a copy of the current configuration.
func (s *Server) Config() udp.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetErrorHandler sets the callback for panics and fatal errors.
// nil restores recovery.DefaultErrorHandler.
func (s *Server) SetErrorHandler(handler recovery.ErrorHandler) *Server {
	if handler == nil {
		handler = recovery.DefaultErrorHandler
	}
	return s.configure(func() { s.errorHandler = handler })
}

// SetReadErrorHandler sets the callback for socket read errors.
// Without one, read errors are logged and the server keeps receiving.
func (s *Server) SetReadErrorHandler(handler func(error)) *Server {
	return s.configure(func() { s.readErrorHandler = handler })
}

// SetMetrics sets the metrics collector. nil disables metrics.
func (s *Server) SetMetrics(m metrics.UDPMetrics) *Server {
	return s.configure(func() { s.metrics = m })
}

// ============================================================================
// Registration
// ============================================================================

// RegisterHook appends a hook factory to the pipeline.
func (s *Server) RegisterHook(f hook.Factory) *Server {
	return s.configure(func() { s.pipeline.Register(f) })
}

// RegisterHandler appends a handler to the pipeline. A handler is a hook
// whose instance is the function itself.
func (s *Server) RegisterHandler(fn hook.HandlerFunc) *Server {
	if fn == nil {
		panic("handler cannot be nil")
	}
	return s.RegisterHook(hook.Func(fn))
}

// ============================================================================
// Run
// ============================================================================

// Run binds the socket and starts dispatching datagrams in the background.
//
// The configuration is snapshotted before the bind, and no lock is held
// while binding or while reporting a bind error. Once the socket is open,
// Run installs the error handler as the process-wide panic bridge and
// freezes the pipeline. A failed Run leaves the server configurable.
// Cancelling ctx shuts the server down, as does the returned controller's
// Shutdown.
//
// Returns:
//   - the shutdown controller of the running dispatcher
//   - ErrAlreadyRunning on a second call
//   - a configuration error if the settings are invalid
//   - *transport.BindError if the socket could not be opened; the error is
//     also reported to the error handler
func (s *Server) Run(ctx context.Context) (*shutdown.Controller, error) {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	config := s.config
	if err := config.Validate(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s.starting = true
	pipeline := s.pipeline
	errorHandler := s.errorHandler
	readErrorHandler := s.readErrorHandler
	udpMetrics := s.metrics
	s.mu.Unlock()

	bridge := recovery.New(errorHandler)
	a := udp.New(config, pipeline, bridge, udpMetrics)
	if readErrorHandler != nil {
		a.SetReadErrorHandler(readErrorHandler)
	}

	if err := a.Bind(ctx); err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()

		bridge.Report(err.Error())
		return nil, err
	}

	recovery.Install(errorHandler)
	pipeline.Freeze()

	s.mu.Lock()
	s.adapter = a
	s.running = true
	s.starting = false
	s.mu.Unlock()

	logger.Info("Starting %s server on %s with %d hook(s)", a.Protocol(), a.Addr(), pipeline.Len())

	go serve(ctx, a)

	return a.Controller(), nil
}

func serve(ctx context.Context, a adapter.Adapter) {
	if err := a.Serve(ctx); err != nil {
		logger.Error("%s server stopped with error: %v", a.Protocol(), err)
		return
	}
	logger.Info("%s server stopped", a.Protocol())
}

// Stop shuts a running server down and waits for it to finish or ctx to
// expire. A server that never ran returns nil.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	a := s.adapter
	s.mu.Unlock()

	if a == nil {
		return nil
	}
	return a.Stop(ctx)
}

// Addr returns the bound address, or the zero value before Run.
func (s *Server) Addr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adapter == nil {
		return netip.AddrPort{}
	}
	return s.adapter.Addr()
}

// Running reports whether Run has succeeded.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns the dispatcher counters. All zero before Run.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	a := s.adapter
	s.mu.Unlock()

	if a == nil {
		return Stats{}
	}
	return Stats{
		Received: a.Received(),
		Dropped:  a.Dropped(),
		InFlight: a.InFlight(),
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Received uint64
	Dropped  uint64
	InFlight int32
}
