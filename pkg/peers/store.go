// Package peers keeps a table of the hosts that have sent datagrams to the
// server: when each was first and last seen and how much it sent.
//
// The table is fed by the Tracker hook and pruned by the gc package.
// Implementations live in the memory and badger subpackages.
package peers

import (
	"context"
	"errors"
	"net/netip"
	"time"
)

// ErrPeerNotFound indicates no record exists for the requested host.
var ErrPeerNotFound = errors.New("peer not found")

// Record describes the traffic received from one host.
type Record struct {
	// Address is the host's IP address in its canonical text form
	Address string

	// FirstSeen is when the first datagram from the host was observed
	FirstSeen time.Time

	// LastSeen is when the most recent datagram was observed
	LastSeen time.Time

	// Datagrams is the number of datagrams observed
	Datagrams uint64

	// Bytes is the total payload size observed
	Bytes uint64
}

// Observe returns r updated with one datagram of size bytes seen at at.
// A zero Record starts a new entry for host.
func (r Record) Observe(host netip.Addr, size int, at time.Time) Record {
	if r.Datagrams == 0 {
		r.Address = Key(host)
		r.FirstSeen = at
	}
	r.LastSeen = at
	r.Datagrams++
	r.Bytes += uint64(size)
	return r
}

// IdleSince reports whether the host has been silent since cutoff.
func (r Record) IdleSince(cutoff time.Time) bool {
	return r.LastSeen.Before(cutoff)
}

// Key returns the table key for host. IPv4-mapped IPv6 addresses share the
// key of their IPv4 form.
func Key(host netip.Addr) string {
	return host.Unmap().String()
}

// Store persists peer records.
//
// Implementations must be safe for concurrent use: the Tracker hook calls
// Observe from every dispatch goroutine.
type Store interface {
	// Observe records one datagram from host and returns the updated record.
	Observe(ctx context.Context, host netip.Addr, size int, at time.Time) (Record, error)

	// Get returns the record for host, or ErrPeerNotFound.
	Get(ctx context.Context, host netip.Addr) (Record, error)

	// List returns every record in unspecified order.
	List(ctx context.Context) ([]Record, error)

	// DeleteBatch removes the records with the given addresses.
	//
	// Returns per-address failures; missing addresses are not failures.
	// The error is non-nil only if the whole batch failed.
	DeleteBatch(ctx context.Context, addresses []string) (map[string]error, error)

	// Close releases the store's resources.
	Close() error
}
