// Package badger provides a persistent peer table backed by BadgerDB.
//
// Records are XDR-encoded under the "p:" key prefix. An optional TTL lets
// Badger expire silent hosts on its own, in addition to the gc collector.
package badger

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/peers"
)

// Config configures the badger store.
type Config struct {
	// Path is the database directory. Created if missing.
	Path string `mapstructure:"path" validate:"required"`

	// TTL expires a record this long after the host's last datagram.
	// Zero keeps records until they are deleted.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`

	// BlockCacheSizeMB is Badger's block cache size (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"gte=0"`

	// IndexCacheSizeMB is Badger's index cache size (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" validate:"gte=0"`
}

// Store implements peers.Store on BadgerDB.
//
// Observe is a read-modify-write; mu serializes writers so concurrent
// observations of the same host never conflict.
type Store struct {
	mu  sync.Mutex
	db  *badger.DB
	ttl time.Duration
}

// New opens (or creates) the database at config.Path.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.Path == "" {
		return nil, errors.New("badger peer store: path is required")
	}

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}

	opts := badger.DefaultOptions(config.Path).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(blockCacheMB << 20).
		WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.Path, err)
	}

	logger.Debug("Opened badger peer store at %s (ttl=%v)", config.Path, config.TTL)

	return &Store{db: db, ttl: config.TTL}, nil
}

func (s *Store) Observe(ctx context.Context, host netip.Addr, size int, at time.Time) (peers.Record, error) {
	if err := ctx.Err(); err != nil {
		return peers.Record{}, err
	}

	key := peerKey(peers.Key(host))

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated peers.Record
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := getRecord(txn, key)
		if err != nil && !errors.Is(err, peers.ErrPeerNotFound) {
			return err
		}

		updated = current.Observe(host, size, at)

		val, err := encodeRecord(updated)
		if err != nil {
			return err
		}

		entry := badger.NewEntry(key, val)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return peers.Record{}, err
	}
	return updated, nil
}

func (s *Store) Get(ctx context.Context, host netip.Addr) (peers.Record, error) {
	if err := ctx.Err(); err != nil {
		return peers.Record{}, err
	}

	var record peers.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, peerKey(peers.Key(host)))
		return err
	})
	return record, err
}

func (s *Store) List(ctx context.Context) ([]peers.Record, error) {
	var out []peers.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		processed := 0
		for it.Rewind(); it.Valid(); it.Next() {
			processed++
			if processed%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			err := it.Item().Value(func(val []byte) error {
				record, err := decodeRecord(val)
				if err != nil {
					logger.Warn("Skipping corrupt peer record %q: %v", it.Item().Key(), err)
					return nil
				}
				out = append(out, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteBatch(ctx context.Context, addresses []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures := make(map[string]error)

	s.mu.Lock()
	defer s.mu.Unlock()

	wb := s.db.NewWriteBatch()
	for _, addr := range addresses {
		if err := wb.Delete(peerKey(addr)); err != nil {
			failures[addr] = err
		}
	}

	if err := wb.Flush(); err != nil {
		return nil, fmt.Errorf("delete peers: %w", err)
	}
	return failures, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func getRecord(txn *badger.Txn, key []byte) (peers.Record, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return peers.Record{}, peers.ErrPeerNotFound
	}
	if err != nil {
		return peers.Record{}, err
	}

	var record peers.Record
	err = item.Value(func(val []byte) error {
		record, err = decodeRecord(val)
		return err
	})
	return record, err
}

var _ peers.Store = (*Store)(nil)
