package ratelimiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limiter admits datagrams according to a token bucket.
//
// Tokens are added at a constant rate and each admitted datagram consumes
// one. Burst is the bucket capacity, i.e. how many datagrams can be admitted
// back to back after an idle period.
//
// A nil *Limiter admits everything, so callers can keep a single code path
// whether or not rate limiting is configured.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter  *rate.Limiter
	rejected atomic.Uint64
}

// New creates a Limiter with the given sustained rate and burst.
//
// Parameters:
//   - requestsPerSecond: Sustained rate. 0 means unlimited.
//   - burst: Bucket capacity. 0 defaults to requestsPerSecond.
//
// Example:
//
//	// 1000 datagrams/s sustained, bursts of 2000
//	limiter := New(1000, 2000)
func New(requestsPerSecond, burst uint) *Limiter {
	if requestsPerSecond == 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow reports whether one datagram may be admitted now, consuming a token
// if so. It never blocks.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	if l.limiter.Allow() {
		return true
	}
	l.rejected.Add(1)
	return false
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. 0 means unlimited.
func (l *Limiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if l.limiter.Burst() == 0 {
		l.limiter.SetBurst(int(requestsPerSecond))
	}
}

// SetBurst changes the bucket capacity.
func (l *Limiter) SetBurst(burst uint) {
	l.limiter.SetBurst(int(burst))
}

// Limit returns the sustained rate, or 0 when unlimited.
func (l *Limiter) Limit() uint {
	if l == nil || l.limiter.Limit() == rate.Inf {
		return 0
	}
	return uint(l.limiter.Limit())
}

// Tokens returns the number of tokens currently in the bucket.
// The value is a snapshot and may change immediately.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

// Rejected returns how many calls to Allow have been refused so far.
func (l *Limiter) Rejected() uint64 {
	if l == nil {
		return 0
	}
	return l.rejected.Load()
}
