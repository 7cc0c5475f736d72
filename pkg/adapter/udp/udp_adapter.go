package udp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoudp/internal/bufpool"
	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/internal/ratelimiter"
	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/metrics"
	"github.com/marmos91/dittoudp/pkg/recovery"
	"github.com/marmos91/dittoudp/pkg/request"
	"github.com/marmos91/dittoudp/pkg/shutdown"
	"github.com/marmos91/dittoudp/pkg/transport"
)

// ErrSocketClosed is returned by Serve when the socket was torn down by
// something other than a shutdown request.
var ErrSocketClosed = errors.New("UDP socket closed unexpectedly")

// UDPAdapter receives datagrams on one socket and runs each through the
// hook pipeline on its own goroutine.
//
// Architecture:
// Serve() reads datagrams in a loop. For each datagram it builds a
// request.Context and starts a goroutine that runs the pipeline under the
// panic bridge. The loop never waits for a pipeline.
//
// Graceful shutdown:
//  1. Controller().Shutdown() (or ctx cancellation, or Stop) fires
//  2. The pending receive is interrupted; no new datagrams are dispatched
//  3. In-flight pipelines keep running and can still reply (up to ShutdownTimeout)
//  4. The socket is closed and the controller's Done channel is closed
//
// Thread safety:
// All exported methods are safe for concurrent use. Serve should only be
// called once per adapter.
type UDPAdapter struct {
	// config holds the dispatcher settings (address, buffers, limits)
	config Config

	// pipeline runs for every admitted datagram
	pipeline *hook.Pipeline

	// bridge reports panics escaping the pipeline
	bridge *recovery.Bridge

	// metrics provides optional Prometheus metrics collection
	metrics metrics.UDPMetrics

	// socket is set by Bind and closed at the end of shutdown
	socket atomic.Pointer[transport.Socket]

	// sender wraps socket to record bytes sent and send errors
	sender request.Sender

	// buffers recycles receive buffers of config.BufferSize bytes
	buffers *bufpool.Pool

	// limiter admits datagrams; nil when rate limiting is disabled
	limiter *ratelimiter.Limiter

	// slots limits concurrent pipelines if MaxInFlight > 0, nil otherwise
	slots chan struct{}

	// controller carries the shutdown request and the done signal
	controller *shutdown.Controller

	// readErrorHandler receives socket read errors; nil means log and continue
	readErrorHandler func(error)

	// activeRequests tracks running pipelines for graceful shutdown
	activeRequests sync.WaitGroup

	// inFlight mirrors activeRequests for metrics and logging
	inFlight atomic.Int32

	received atomic.Uint64
	dropped  atomic.Uint64

	bindOnce sync.Once
	bindErr  error
}

// New creates a UDPAdapter in a stopped state.
//
// Parameters:
//   - config: Dispatcher settings. Zero values are replaced with defaults
//   - pipeline: Hooks to run per datagram. May be set later with SetPipeline
//   - bridge: Panic reporter. nil uses recovery.Current()
//   - udpMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config Config, pipeline *hook.Pipeline, bridge *recovery.Bridge, udpMetrics metrics.UDPMetrics) *UDPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid UDP config: %v", err))
	}

	if bridge == nil {
		bridge = recovery.Current()
	}
	if udpMetrics == nil {
		udpMetrics = metrics.NewNoopUDPMetrics()
	}
	if pipeline == nil {
		pipeline = hook.NewPipeline()
	}

	var limiter *ratelimiter.Limiter
	if config.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	var slots chan struct{}
	if config.MaxInFlight > 0 {
		slots = make(chan struct{}, config.MaxInFlight)
	}

	return &UDPAdapter{
		config:     config,
		pipeline:   pipeline,
		bridge:     bridge,
		metrics:    udpMetrics,
		buffers:    bufpool.New(config.BufferSize),
		limiter:    limiter,
		slots:      slots,
		controller: shutdown.New(),
	}
}

// SetPipeline replaces the pipeline. Must be called before Serve.
func (s *UDPAdapter) SetPipeline(pipeline *hook.Pipeline) {
	s.pipeline = pipeline
}

// SetReadErrorHandler installs a callback for socket read errors.
// Must be called before Serve.
func (s *UDPAdapter) SetReadErrorHandler(handler func(error)) {
	s.readErrorHandler = handler
}

// Bind opens the socket. Calling it again returns the first result.
func (s *UDPAdapter) Bind(ctx context.Context) error {
	s.bindOnce.Do(func() {
		socket, err := transport.Bind(ctx, s.config.Address(), transport.Options{
			ReadBufferSize:  s.config.ReadBufferSize,
			WriteBufferSize: s.config.WriteBufferSize,
			TTL:             s.config.TTL,
		})
		if err != nil {
			s.bindErr = err
			return
		}

		s.sender = &meteredSender{socket: socket, metrics: s.metrics}
		s.socket.Store(socket)
		logger.Info("UDP server listening on %s", socket.LocalAddr())
		logger.Debug("UDP config: buffer_size=%d max_in_flight=%d rate_limit=%d ttl=%d",
			s.config.BufferSize, s.config.MaxInFlight, s.config.RateLimit.RequestsPerSecond, s.config.TTL)
	})
	return s.bindErr
}

// Serve runs the accept loop until shutdown.
//
// Binds first if Bind has not been called. Cancelling ctx triggers
// graceful shutdown.
//
// Returns:
//   - nil on graceful shutdown
//   - bind error if the socket could not be opened
//   - error if the shutdown timeout was exceeded or the socket was closed externally
func (s *UDPAdapter) Serve(ctx context.Context) error {
	if err := s.Bind(ctx); err != nil {
		s.controller.Finish()
		return err
	}
	socket := s.socket.Load()

	loopDone := make(chan struct{})
	defer close(loopDone)

	// Wake the receive as soon as shutdown is requested.
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("UDP shutdown signal received: %v", ctx.Err())
			s.controller.Shutdown()
		case <-s.controller.ShutdownRequested():
		case <-loopDone:
			return
		}
		if err := socket.Interrupt(); err != nil {
			logger.Debug("Error interrupting UDP receive: %v", err)
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(loopDone)
	}

	for {
		select {
		case <-s.controller.ShutdownRequested():
			return s.gracefulShutdown()
		default:
		}

		buf := s.buffers.Get()
		n, peer, err := socket.Receive(buf)
		if err != nil {
			s.buffers.Put(buf)

			switch {
			case errors.Is(err, transport.ErrInterrupted):
				select {
				case <-s.controller.ShutdownRequested():
					return s.gracefulShutdown()
				default:
					if err := socket.Resume(); err != nil {
						logger.Debug("Error resuming UDP receive: %v", err)
					}
				}
			case errors.Is(err, transport.ErrSocketNotAvailable):
				logger.Error("UDP socket closed while serving")
				s.bridge.Report(ErrSocketClosed.Error())
				s.controller.Shutdown()
				_ = s.gracefulShutdown()
				return ErrSocketClosed
			default:
				s.handleReadError(err)
			}
			continue
		}

		payload := bytes.Clone(buf[:n])
		s.buffers.Put(buf)
		s.received.Add(1)
		s.metrics.RecordDatagramReceived(n)

		if !s.admit(peer) {
			continue
		}

		rc := request.New(s.sender, payload, peer)
		s.activeRequests.Add(1)
		s.metrics.SetInFlight(s.inFlight.Add(1))

		go s.dispatch(rc)
	}
}

// admit applies rate limiting and the in-flight cap. It never blocks.
// A true result holds an in-flight slot that dispatch releases.
func (s *UDPAdapter) admit(peer netip.AddrPort) bool {
	if !s.limiter.Allow() {
		s.drop(peer, metrics.DropRateLimited)
		return false
	}

	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		default:
			s.drop(peer, metrics.DropOverloaded)
			return false
		}
	}
	return true
}

func (s *UDPAdapter) drop(peer netip.AddrPort, reason string) {
	s.dropped.Add(1)
	s.metrics.RecordDatagramDropped(reason)
	logger.Debug("UDP datagram from %s dropped: %s", peer, reason)
}

func (s *UDPAdapter) handleReadError(err error) {
	s.metrics.RecordReadError()

	if s.readErrorHandler == nil {
		logger.Warn("Error receiving UDP datagram: %v", err)
		return
	}
	s.bridge.Protect(func() {
		s.readErrorHandler(err)
	})
}

// gracefulShutdown waits for in-flight pipelines, then closes the socket
// and marks the controller done.
//
// Returns:
//   - nil if every pipeline finished in time
//   - error if ShutdownTimeout expired first
func (s *UDPAdapter) gracefulShutdown() error {
	defer s.controller.Finish()

	active := s.inFlight.Load()
	logger.Info("UDP graceful shutdown: waiting for %d in-flight request(s) (timeout: %v)",
		active, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeRequests.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logger.Info("UDP graceful shutdown complete: all requests finished")
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.inFlight.Load()
		logger.Warn("UDP shutdown timeout exceeded: %d request(s) still running after %v, closing socket",
			remaining, s.config.ShutdownTimeout)
		err = fmt.Errorf("UDP shutdown timeout: %d request(s) still running", remaining)
	}

	if closeErr := s.socket.Load().Close(); closeErr != nil {
		logger.Debug("Error closing UDP socket: %v", closeErr)
	}
	return err
}

// Stop requests shutdown and waits until the dispatcher is done or ctx
// expires. Safe to call multiple times and concurrently with Serve.
func (s *UDPAdapter) Stop(ctx context.Context) error {
	s.controller.Shutdown()

	if s.socket.Load() == nil {
		// Never bound, so Serve never ran its loop.
		s.controller.Finish()
		return nil
	}

	if err := s.controller.WaitContext(ctx); err != nil {
		logger.Warn("UDP shutdown context cancelled: %d request(s) still running: %v",
			s.inFlight.Load(), err)
		return err
	}
	return nil
}

// logMetrics periodically logs dispatcher counters until stop is closed.
func (s *UDPAdapter) logMetrics(stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logger.Info("UDP metrics: in_flight=%d received=%d dropped=%d",
				s.inFlight.Load(), s.received.Load(), s.dropped.Load())
		}
	}
}

// Controller returns the shutdown controller for this adapter.
func (s *UDPAdapter) Controller() *shutdown.Controller {
	return s.controller
}

// InFlight returns the number of pipelines currently running.
func (s *UDPAdapter) InFlight() int32 {
	return s.inFlight.Load()
}

// Received returns the number of datagrams read from the socket.
func (s *UDPAdapter) Received() uint64 {
	return s.received.Load()
}

// Dropped returns the number of datagrams rejected by admission control.
func (s *UDPAdapter) Dropped() uint64 {
	return s.dropped.Load()
}

// Addr returns the bound address, or the zero value before Bind.
func (s *UDPAdapter) Addr() netip.AddrPort {
	socket := s.socket.Load()
	if socket == nil {
		return netip.AddrPort{}
	}
	return socket.LocalAddr()
}

// Port returns the bound port, or the configured port before Bind.
func (s *UDPAdapter) Port() int {
	socket := s.socket.Load()
	if socket == nil {
		return s.config.Port
	}
	return int(socket.LocalAddr().Port())
}

// Protocol returns "UDP".
func (s *UDPAdapter) Protocol() string {
	return "UDP"
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
