package metrics

import "time"

// Drop reasons reported through UDPMetrics.RecordDatagramDropped.
const (
	DropRateLimited = "rate_limited"
	DropOverloaded  = "overloaded"
)

// UDPMetrics provides observability for the UDP dispatcher.
//
// This interface is optional. If the adapter is created without one, a
// no-op implementation with zero overhead is used.
//
// Example usage:
//
//	// With metrics enabled
//	m := prometheus.NewUDPMetrics()
//	adapter := udp.New(config, pipeline, bridge, m)
//
//	// Without metrics (no-op)
//	adapter := udp.New(config, pipeline, bridge, nil)
type UDPMetrics interface {
	// RecordDatagramReceived counts an accepted datagram and its size.
	RecordDatagramReceived(bytes int)

	// RecordDatagramDropped counts a datagram rejected before dispatch.
	//
	// Parameters:
	//   - reason: DropRateLimited or DropOverloaded
	RecordDatagramDropped(reason string)

	// RecordReadError counts a failed receive.
	RecordReadError()

	// RecordPipeline records a finished pipeline run.
	//
	// Parameters:
	//   - outcome: "completed", "aborted" or "panic"
	//   - duration: Time from dispatch to the end of the last hook
	RecordPipeline(outcome string, duration time.Duration)

	// RecordBytesSent counts bytes written back to peers.
	RecordBytesSent(bytes int)

	// RecordSendError counts a failed send.
	RecordSendError()

	// SetInFlight updates the number of pipelines currently running.
	SetInFlight(count int32)
}

// NewNoopUDPMetrics returns a UDPMetrics that discards everything.
func NewNoopUDPMetrics() UDPMetrics {
	return noopUDPMetrics{}
}

type noopUDPMetrics struct{}

func (noopUDPMetrics) RecordDatagramReceived(bytes int)                      {}
func (noopUDPMetrics) RecordDatagramDropped(reason string)                   {}
func (noopUDPMetrics) RecordReadError()                                      {}
func (noopUDPMetrics) RecordPipeline(outcome string, duration time.Duration) {}
func (noopUDPMetrics) RecordBytesSent(bytes int)                             {}
func (noopUDPMetrics) RecordSendError()                                      {}
func (noopUDPMetrics) SetInFlight(count int32)                               {}
