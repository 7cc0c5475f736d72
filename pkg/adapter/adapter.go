package adapter

import (
	"context"

	"github.com/marmos91/dittoudp/pkg/hook"
	"github.com/marmos91/dittoudp/pkg/shutdown"
)

// Adapter is a network front end that feeds requests into a hook pipeline.
//
// Lifecycle:
//  1. SetPipeline: inject the (frozen) pipeline
//  2. Bind: acquire the socket. Errors here are returned to the caller of
//     Server.Run and never retried
//  3. Serve: run the accept loop until shutdown
//  4. Stop, or Controller().Shutdown(): stop accepting and drain
//
// Thread safety:
// Stop and Controller may be called concurrently with Serve.
type Adapter interface {
	// SetPipeline injects the hooks every request runs through.
	// Must be called before Serve.
	SetPipeline(pipeline *hook.Pipeline)

	// Bind acquires the listening socket.
	Bind(ctx context.Context) error

	// Serve runs the accept loop and blocks until shutdown completes.
	// Cancelling ctx triggers shutdown.
	Serve(ctx context.Context) error

	// Stop requests shutdown and waits for it to complete or ctx to expire.
	Stop(ctx context.Context) error

	// Controller returns the shutdown controller for this adapter.
	Controller() *shutdown.Controller

	// Protocol returns a short name for logs and metrics (e.g. "UDP").
	Protocol() string

	// Port returns the bound port, or the configured port before Bind.
	Port() int
}
