// Package shutdown coordinates stopping a running dispatcher.
//
// A Controller carries two one-shot signals. The caller fires the first
// with Shutdown; the dispatcher observes it, stops receiving and fires the
// second with Finish once it has let go of the socket. Wait blocks on the
// second. Both signals are closed channels, so any number of goroutines can
// observe them and firing either one more than once is harmless.
package shutdown

import (
	"context"
	"sync"
)

// Controller is shared by pointer between the server and its callers.
//
// Thread safety:
// All methods are safe for concurrent use.
type Controller struct {
	shutdownOnce sync.Once
	shutdown     chan struct{}

	finishOnce sync.Once
	done       chan struct{}
}

// New returns a controller with neither signal fired.
func New() *Controller {
	return &Controller{
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Shutdown asks the dispatcher to stop. It returns immediately; use Wait
// to block until the dispatcher is done. In-flight requests are not
// cancelled.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdown)
	})
}

// ShutdownRequested is closed once Shutdown has been called.
func (c *Controller) ShutdownRequested() <-chan struct{} {
	return c.shutdown
}

// Finish marks the dispatcher as stopped. Called by the dispatcher.
func (c *Controller) Finish() {
	c.finishOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the dispatcher has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the dispatcher has stopped.
func (c *Controller) Wait() {
	<-c.done
}

// WaitContext blocks until the dispatcher has stopped or ctx is done.
func (c *Controller) WaitContext(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
