// Package recovery turns panics raised by request handlers into reports
// delivered to a configurable error handler.
//
// Go cannot intercept a panic on another goroutine, so recovery happens at
// the boundary of every goroutine the server starts: the dispatcher runs
// each pipeline through Bridge.Protect. Code that starts its own goroutines
// from a hook can use Bridge.Go (or Current().Go) to get the same treatment.
package recovery

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
)

// ErrorHandler receives human-readable error reports.
type ErrorHandler func(message string)

// DefaultErrorHandler writes message to standard error.
func DefaultErrorHandler(message string) {
	fmt.Fprintln(os.Stderr, message)
}

// PanicData describes a recovered panic.
type PanicData struct {
	// Message is the panic value rendered as text
	Message string

	// Location is file:line of the statement that panicked, if known
	Location string

	// Value is the original value passed to panic
	Value any
}

// String renders the panic as "Panic: <message> at <location>".
func (p PanicData) String() string {
	if p.Location == "" {
		return "Panic: " + p.Message
	}
	return fmt.Sprintf("Panic: %s at %s", p.Message, p.Location)
}

// Error makes PanicData usable as an error.
func (p PanicData) Error() string {
	return p.String()
}

// Bridge delivers panic reports to one error handler.
//
// The handler is captured when the bridge is created. A server keeps the
// bridge it installed at start, so its own dispatch goroutines report to
// its handler even if another bridge is installed later.
type Bridge struct {
	handler ErrorHandler
}

var current atomic.Pointer[Bridge]

// New creates a bridge for handler without installing it. A nil handler
// means DefaultErrorHandler.
func New(handler ErrorHandler) *Bridge {
	if handler == nil {
		handler = DefaultErrorHandler
	}
	return &Bridge{handler: handler}
}

// Install creates a bridge for handler and makes it the process-wide
// bridge returned by Current. Installing again replaces the previous bridge;
// handlers are never chained.
func Install(handler ErrorHandler) *Bridge {
	b := New(handler)
	current.Store(b)
	return b
}

// Current returns the most recently installed bridge, or a bridge writing
// to standard error if none was installed.
func Current() *Bridge {
	if b := current.Load(); b != nil {
		return b
	}
	return New(nil)
}

// Report passes message to the error handler.
func (b *Bridge) Report(message string) {
	b.handler(message)
}

// Protect runs fn. If fn panics, the panic is recovered, reported and
// returned; otherwise Protect returns nil.
func (b *Bridge) Protect(fn func()) (pd *PanicData) {
	defer func() {
		if r := recover(); r != nil {
			data := FromValue(r, panicLocation())
			b.Report(data.String())
			pd = &data
		}
	}()

	fn()
	return nil
}

// Go runs fn on a new goroutine under Protect.
func (b *Bridge) Go(fn func()) {
	go b.Protect(fn)
}

// FromValue converts a recovered value into PanicData.
func FromValue(r any, location string) PanicData {
	var msg string
	switch v := r.(type) {
	case string:
		msg = v
	case error:
		msg = v.Error()
	default:
		msg = fmt.Sprint(v)
	}
	return PanicData{Message: msg, Location: location, Value: r}
}

// AsPanic extracts PanicData from err, if it carries one.
func AsPanic(err error) (PanicData, bool) {
	var pd PanicData
	if errors.As(err, &pd) {
		return pd, true
	}
	return PanicData{}, false
}

// panicLocation must be called from a deferred function during a panic. It
// walks up to runtime.gopanic and returns the first non-runtime frame above
// it, which is where the panic happened.
func panicLocation() string {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false
	for {
		frame, more := frames.Next()
		switch {
		case frame.Function == "runtime.gopanic":
			panicking = true
		case panicking && !strings.HasPrefix(frame.Function, "runtime."):
			return fmt.Sprintf("%s:%d", frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}
