// Package memory provides an in-process peer table.
//
// Records are lost when the process exits. Use the badger store to keep
// them across restarts.
package memory

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/marmos91/dittoudp/pkg/peers"
)

// Config configures the memory store.
type Config struct {
	// MaxPeers caps the number of tracked hosts. Zero means unlimited.
	// When full, new hosts are not recorded until existing ones are pruned.
	MaxPeers int `mapstructure:"max_peers" validate:"gte=0"`
}

// ErrTableFull is returned by Observe when MaxPeers hosts are already tracked.
type ErrTableFull struct {
	MaxPeers int
}

func (e *ErrTableFull) Error() string {
	return "peer table full"
}

// Store is a mutex-guarded map of peer records.
type Store struct {
	mu       sync.RWMutex
	records  map[string]peers.Record
	maxPeers int
}

// New creates an empty memory store.
func New(config Config) *Store {
	return &Store{
		records:  make(map[string]peers.Record),
		maxPeers: config.MaxPeers,
	}
}

func (s *Store) Observe(ctx context.Context, host netip.Addr, size int, at time.Time) (peers.Record, error) {
	if err := ctx.Err(); err != nil {
		return peers.Record{}, err
	}

	key := peers.Key(host)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[key]
	if !ok && s.maxPeers > 0 && len(s.records) >= s.maxPeers {
		return peers.Record{}, &ErrTableFull{MaxPeers: s.maxPeers}
	}

	updated := current.Observe(host, size, at)
	s.records[key] = updated
	return updated, nil
}

func (s *Store) Get(ctx context.Context, host netip.Addr) (peers.Record, error) {
	if err := ctx.Err(); err != nil {
		return peers.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[peers.Key(host)]
	if !ok {
		return peers.Record{}, peers.ErrPeerNotFound
	}
	return record, nil
}

func (s *Store) List(ctx context.Context) ([]peers.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]peers.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) DeleteBatch(ctx context.Context, addresses []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, addr := range addresses {
		delete(s.records, addr)
	}
	return map[string]error{}, nil
}

// Len returns the number of tracked hosts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) Close() error {
	return nil
}

var _ peers.Store = (*Store)(nil)
