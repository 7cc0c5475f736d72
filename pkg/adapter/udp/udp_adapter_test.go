package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/recovery"
	"github.com/marmos91/dittoudp/pkg/request"
	"github.com/marmos91/dittoudp/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

type messageCollector struct {
	mu       sync.Mutex
	messages []string
}

func (c *messageCollector) handle(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *messageCollector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

func testConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            0,
		BufferSize:      1024,
		ShutdownTimeout: 2 * time.Second,
	}
}

// startAdapter binds on an OS-assigned loopback port and serves in the
// background. The returned channel yields Serve's result.
func startAdapter(t *testing.T, config Config, pipeline *hook.Pipeline, bridge *recovery.Bridge) (*UDPAdapter, <-chan error) {
	t.Helper()

	pipeline.Freeze()
	adapter := New(config, pipeline, bridge, nil)
	require.NoError(t, adapter.Bind(context.Background()))

	serveErr := make(chan error, 1)
	go func() { serveErr <- adapter.Serve(context.Background()) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adapter.Stop(ctx)
	})
	return adapter, serveErr
}

func dial(t *testing.T, adapter *UDPAdapter) *net.UDPConn {
	t.Helper()

	conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(adapter.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *net.UDPConn, payload string) {
	t.Helper()
	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)
}

// receive waits up to timeout for a reply. ok is false if none arrived.
func receive(t *testing.T, conn *net.UDPConn, timeout time.Duration) (string, bool) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		// Timeouts, and ICMP port unreachable once the server socket is gone.
		return "", false
	}
	return string(buf[:n]), true
}

func echoPipeline() *hook.Pipeline {
	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		_ = rc.Send(append([]byte("Echo: "), rc.Payload()...))
	})
	return p
}

// ============================================================================
// Request / Response
// ============================================================================

func TestPingPong(t *testing.T) {
	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		if string(rc.Payload()) == "ping" {
			_ = rc.Send([]byte("pong"))
		}
	})

	adapter, _ := startAdapter(t, testConfig(), p, nil)
	assert.NotZero(t, adapter.Port())
	assert.Equal(t, "UDP", adapter.Protocol())

	conn := dial(t, adapter)
	send(t, conn, "ping")

	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok, "expected a reply")
	assert.Equal(t, "pong", reply)
}

func TestEcho(t *testing.T) {
	adapter, _ := startAdapter(t, testConfig(), echoPipeline(), nil)
	conn := dial(t, adapter)

	for _, msg := range []string{"hello", "world", ""} {
		send(t, conn, msg)
		reply, ok := receive(t, conn, 2*time.Second)
		require.True(t, ok)
		assert.Equal(t, "Echo: "+msg, reply)
	}
}

func TestSetPipelineBeforeServe(t *testing.T) {
	p := echoPipeline()
	p.Freeze()

	adapter := New(testConfig(), nil, nil, nil)
	adapter.SetPipeline(p)
	require.NoError(t, adapter.Bind(context.Background()))
	go func() { _ = adapter.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adapter.Stop(ctx)
	})

	conn := dial(t, adapter)
	send(t, conn, "late")
	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "Echo: late", reply)
}

func TestConcurrentClients(t *testing.T) {
	adapter, _ := startAdapter(t, testConfig(), echoPipeline(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, err := net.DialUDP("udp", nil, net.UDPAddrFromAddrPort(adapter.Addr()))
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			msg := string(rune('a' + i))
			_, err = conn.Write([]byte(msg))
			assert.NoError(t, err)

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, 64)
			n, err := conn.Read(buf)
			if assert.NoError(t, err) {
				assert.Equal(t, "Echo: "+msg, string(buf[:n]))
			}
		}(i)
	}
	wg.Wait()
}

func TestAbortSkipsRemainingHooks(t *testing.T) {
	var h2Ran, h3Ran atomic.Bool
	finished := make(chan struct{}, 1)

	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		rc.Abort()
		finished <- struct{}{}
	})
	p.Use(func(rc *request.Context) {
		h2Ran.Store(true)
		_ = rc.Send([]byte("should not be sent"))
	})
	p.Use(func(rc *request.Context) { h3Ran.Store(true) })

	adapter, _ := startAdapter(t, testConfig(), p, nil)
	conn := dial(t, adapter)
	send(t, conn, "x")

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("first hook never ran")
	}

	_, ok := receive(t, conn, 200*time.Millisecond)
	assert.False(t, ok, "aborted pipeline must not reply")
	assert.False(t, h2Ran.Load())
	assert.False(t, h3Ran.Load())
}

// ============================================================================
// Panic Isolation
// ============================================================================

func TestPanicIsIsolated(t *testing.T) {
	collector := &messageCollector{}
	bridge := recovery.New(collector.handle)

	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		if string(rc.Payload()) == "boom" {
			panic("handler exploded")
		}
		_ = rc.Send([]byte("ok"))
	})

	adapter, _ := startAdapter(t, testConfig(), p, bridge)
	conn := dial(t, adapter)

	send(t, conn, "boom")
	require.Eventually(t, func() bool { return len(collector.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, collector.all()[0], "Panic: handler exploded at ")
	assert.Contains(t, collector.all()[0], "udp_adapter_test.go:")

	send(t, conn, "fine")
	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok, "server must keep serving after a panic")
	assert.Equal(t, "ok", reply)

	require.Eventually(t, func() bool { return adapter.InFlight() == 0 }, time.Second, 10*time.Millisecond)
}

// ============================================================================
// Admission Control
// ============================================================================

func TestRateLimitDropsExcess(t *testing.T) {
	config := testConfig()
	config.RateLimit = RateLimitConfig{RequestsPerSecond: 1, Burst: 1}

	adapter, _ := startAdapter(t, config, echoPipeline(), nil)
	conn := dial(t, adapter)

	for i := 0; i < 5; i++ {
		send(t, conn, "x")
	}

	require.Eventually(t, func() bool { return adapter.Dropped() == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(5), adapter.Received())
}

func TestMaxInFlightDropsWhenFull(t *testing.T) {
	config := testConfig()
	config.MaxInFlight = 1

	release := make(chan struct{})
	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) { <-release })

	adapter, _ := startAdapter(t, config, p, nil)
	conn := dial(t, adapter)

	send(t, conn, "first")
	require.Eventually(t, func() bool { return adapter.InFlight() == 1 }, 2*time.Second, 10*time.Millisecond)

	send(t, conn, "second")
	send(t, conn, "third")
	require.Eventually(t, func() bool { return adapter.Dropped() == 2 }, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return adapter.InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Read Errors
// ============================================================================

func TestHandleReadError(t *testing.T) {
	t.Run("handler receives error", func(t *testing.T) {
		adapter := New(testConfig(), nil, nil, nil)

		var got error
		adapter.SetReadErrorHandler(func(err error) { got = err })

		readErr := &transport.ReadError{Err: errors.New("connection refused")}
		adapter.handleReadError(readErr)
		assert.Same(t, readErr, got)
	})

	t.Run("panicking handler is contained", func(t *testing.T) {
		collector := &messageCollector{}
		adapter := New(testConfig(), nil, recovery.New(collector.handle), nil)
		adapter.SetReadErrorHandler(func(error) { panic("bad handler") })

		assert.NotPanics(t, func() { adapter.handleReadError(errors.New("x")) })
		assert.Len(t, collector.all(), 1)
	})

	t.Run("no handler logs", func(t *testing.T) {
		adapter := New(testConfig(), nil, nil, nil)
		assert.NotPanics(t, func() { adapter.handleReadError(errors.New("x")) })
	})
}

// ============================================================================
// Shutdown
// ============================================================================

func TestShutdownBoundedWait(t *testing.T) {
	adapter, serveErr := startAdapter(t, testConfig(), echoPipeline(), nil)
	ctl := adapter.Controller()

	start := time.Now()
	ctl.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ctl.WaitContext(ctx))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.NoError(t, <-serveErr)

	// Shutdown is idempotent.
	ctl.Shutdown()
	ctl.Wait()
}

func TestNoDispatchAfterShutdown(t *testing.T) {
	var handled atomic.Int32
	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		handled.Add(1)
		_ = rc.Send([]byte("ok"))
	})

	adapter, _ := startAdapter(t, testConfig(), p, nil)
	conn := dial(t, adapter)

	send(t, conn, "before")
	_, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok)

	adapter.Controller().Shutdown()
	adapter.Controller().Wait()

	_, _ = conn.Write([]byte("after"))
	_, ok = receive(t, conn, 200*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, int32(1), handled.Load())
}

func TestShutdownLetsInFlightReply(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		close(started)
		<-release
		_ = rc.Send([]byte("late"))
	})

	adapter, serveErr := startAdapter(t, testConfig(), p, nil)
	conn := dial(t, adapter)
	send(t, conn, "x")
	<-started

	adapter.Controller().Shutdown()

	// Not done while the pipeline is still running.
	select {
	case <-adapter.Controller().Done():
		t.Fatal("done fired before in-flight request finished")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok, "in-flight request should still be able to reply")
	assert.Equal(t, "late", reply)

	adapter.Controller().Wait()
	assert.NoError(t, <-serveErr)
}

func TestShutdownTimeout(t *testing.T) {
	config := testConfig()
	config.ShutdownTimeout = 100 * time.Millisecond

	started := make(chan struct{})
	release := make(chan struct{})
	sendErr := make(chan error, 1)

	p := hook.NewPipeline()
	p.Use(func(rc *request.Context) {
		close(started)
		<-release
		sendErr <- rc.Send([]byte("too late"))
	})

	adapter, serveErr := startAdapter(t, config, p, nil)
	conn := dial(t, adapter)
	send(t, conn, "x")
	<-started

	adapter.Controller().Shutdown()

	select {
	case err := <-serveErr:
		assert.ErrorContains(t, err, "shutdown timeout")
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown timeout")
	}
	adapter.Controller().Wait()

	close(release)
	assert.ErrorIs(t, <-sendErr, transport.ErrSocketNotAvailable)
}

func TestContextCancellationShutsDown(t *testing.T) {
	pipeline := echoPipeline()
	pipeline.Freeze()
	adapter := New(testConfig(), pipeline, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, adapter.Bind(ctx))
	assert.NotZero(t, adapter.Port())

	serveErr := make(chan error, 1)
	go func() { serveErr <- adapter.Serve(ctx) }()

	cancel()

	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
	adapter.Controller().Wait()
}

func TestStopBeforeServe(t *testing.T) {
	adapter := New(testConfig(), nil, nil, nil)
	require.NoError(t, adapter.Stop(context.Background()))
	adapter.Controller().Wait()
}

// ============================================================================
// Bind
// ============================================================================

func TestBindError(t *testing.T) {
	occupied, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer occupied.Close()

	config := testConfig()
	config.Port = occupied.LocalAddr().(*net.UDPAddr).Port

	adapter := New(config, nil, nil, nil)
	err = adapter.Bind(context.Background())

	var bindErr *transport.BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, config.Port, adapter.Port(), "configured port reported before a successful bind")

	// Serve reports the same error and marks the controller done.
	assert.ErrorAs(t, adapter.Serve(context.Background()), &bindErr)
	adapter.Controller().Wait()
}

func TestServeBindsWhileAddrIsRead(t *testing.T) {
	pipeline := echoPipeline()
	pipeline.Freeze()
	adapter := New(testConfig(), pipeline, nil, nil)

	serveErr := make(chan error, 1)
	go func() { serveErr <- adapter.Serve(context.Background()) }()

	require.Eventually(t, func() bool {
		return adapter.Addr().IsValid() && adapter.Port() != 0
	}, 2*time.Second, 5*time.Millisecond)

	conn := dial(t, adapter)
	send(t, conn, "bound")
	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "Echo: bound", reply)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, adapter.Stop(ctx))
	assert.NoError(t, <-serveErr)
}

func TestInterruptWithoutShutdownKeepsServing(t *testing.T) {
	adapter, _ := startAdapter(t, testConfig(), echoPipeline(), nil)
	conn := dial(t, adapter)

	send(t, conn, "before")
	reply, ok := receive(t, conn, 2*time.Second)
	require.True(t, ok)
	assert.Equal(t, "Echo: before", reply)

	require.NoError(t, adapter.socket.Load().Interrupt())

	send(t, conn, "after")
	reply, ok = receive(t, conn, 2*time.Second)
	require.True(t, ok, "receive loop resumed after a spurious interrupt")
	assert.Equal(t, "Echo: after", reply)
	assert.Zero(t, adapter.Dropped())
}
