// Package hook implements the ordered, abort-aware pipeline every datagram
// runs through.
//
// A pipeline is a list of factories. For each datagram the pipeline asks
// the next factory for a fresh hook, runs it to completion, then checks
// whether the hook aborted the request. Plain handler functions are hooks
// too: a pipeline of HandlerFuncs that never abort is a straight handler
// chain.
package hook

import "github.com/marmos91/dittoudp/pkg/request"

// Hook processes one request.
type Hook interface {
	Handle(rc *request.Context)
}

// Factory builds the hook for one request. It is called immediately
// before the hook runs, so hooks may carry per-request state.
type Factory func(rc *request.Context) Hook

// HandlerFunc adapts an ordinary function to the Hook interface.
type HandlerFunc func(rc *request.Context)

// Handle calls f(rc).
func (f HandlerFunc) Handle(rc *request.Context) {
	f(rc)
}

// Func returns a factory that always yields fn.
func Func(fn HandlerFunc) Factory {
	return func(*request.Context) Hook {
		return fn
	}
}

// Constructor is satisfied by hook types that build themselves per request.
type Constructor[H any] interface {
	Hook
	Construct(rc *request.Context) H
}

// Type returns a factory for the hook type H.
//
// Construct is called on the zero value of H, so pointer receivers must not
// dereference it:
//
//	type timing struct{ start time.Time }
//
//	func (timing) Construct(*request.Context) timing { return timing{start: time.Now()} }
//	func (t timing) Handle(rc *request.Context)     { ... }
//
//	pipeline.Register(hook.Type[timing]())
func Type[H Constructor[H]]() Factory {
	return func(rc *request.Context) Hook {
		var zero H
		return zero.Construct(rc)
	}
}
