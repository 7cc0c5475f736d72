// Package gc prunes idle hosts from the peer table.
//
// A host is idle once no datagram has arrived from it for MaxIdle. The
// collector scans the table periodically and deletes idle records in
// batches, so the table stays bounded on servers that see many short-lived
// clients.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/peers"
)

const (
	// DefaultInterval is how often a collection runs
	DefaultInterval = 10 * time.Minute

	// DefaultMaxIdle is how long a host may stay silent before it is pruned
	DefaultMaxIdle = time.Hour

	// DefaultBatchSize is how many records are deleted per store call
	DefaultBatchSize = 1000

	// runTimeout bounds a single periodic collection
	runTimeout = 5 * time.Minute
)

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether periodic collection runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run collection (default: 10m)
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`

	// MaxIdle is the silence after which a host is pruned (default: 1h)
	MaxIdle time.Duration `mapstructure:"max_idle" yaml:"max_idle" validate:"gte=0"`

	// BatchSize is how many records to delete per batch (default: 1000)
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=0"`

	// DryRun logs what would be deleted without deleting it
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// Collector periodically deletes idle peer records.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	store  peers.Store
	config Config
	now    func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewCollector creates a collector for store. Call Start to begin
// background collection.
func NewCollector(store peers.Store, config Config) *Collector {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.MaxIdle == 0 {
		config.MaxIdle = DefaultMaxIdle
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}

	return &Collector{
		store:  store,
		config: config,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins background collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Peer garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting peer collector: interval=%s max_idle=%s batch_size=%d dry_run=%v",
			c.config.Interval, c.config.MaxIdle, c.config.BatchSize, c.config.DryRun)

		c.started = true
		go c.worker()
	})
}

// Stop signals the worker and waits for it to finish, or for ctx to expire.
// Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping peer collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		logger.Debug("Peer collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Peer collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection immediately and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Debug("Running peer collection (manual trigger)")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Peer collection failed: %v", err)
			} else {
				logger.Info("Peer collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect lists the table, selects records idle past MaxIdle and deletes
// them in batches.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: c.now()}
	cutoff := stats.StartTime.Add(-c.config.MaxIdle)

	records, err := c.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list peers: %w", err)
	}
	stats.ScannedCount = uint64(len(records))

	idle := make([]string, 0)
	for _, r := range records {
		if r.IdleSince(cutoff) {
			idle = append(idle, r.Address)
		}
	}
	stats.IdleCount = uint64(len(idle))

	if len(idle) == 0 {
		stats.EndTime = c.now()
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would prune %d idle peer(s)", len(idle))
		for i, addr := range idle {
			if i == 10 {
				logger.Info("  ... and %d more", len(idle)-10)
				break
			}
			logger.Info("  - %s", addr)
		}
		stats.EndTime = c.now()
		return stats, nil
	}

	for i := 0; i < len(idle); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			stats.EndTime = c.now()
			return stats, err
		}

		end := min(i+c.config.BatchSize, len(idle))
		batch := idle[i:end]

		failures, err := c.store.DeleteBatch(ctx, batch)
		if err != nil {
			logger.Warn("GC: Batch delete failed: %v", err)
			stats.FailedCount += uint64(len(batch))
			continue
		}

		stats.DeletedCount += uint64(len(batch) - len(failures))
		stats.FailedCount += uint64(len(failures))

		for addr, ferr := range failures {
			logger.Debug("GC: Failed to prune %s: %v", addr, ferr)
		}
	}

	stats.EndTime = c.now()
	return stats, nil
}

// Stats contains statistics from a collection run.
type Stats struct {
	StartTime    time.Time // When collection started
	EndTime      time.Time // When collection ended
	ScannedCount uint64    // Records in the table
	IdleCount    uint64    // Records idle past MaxIdle
	DeletedCount uint64    // Idle records deleted
	FailedCount  uint64    // Idle records that failed to delete
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("scanned=%d idle=%d deleted=%d failed=%d duration=%s",
		s.ScannedCount, s.IdleCount, s.DeletedCount, s.FailedCount, s.Duration())
}
