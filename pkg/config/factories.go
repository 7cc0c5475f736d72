package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoudp/internal/logger"
	"github.com/marmos91/dittoudp/pkg/gc"
	"github.com/marmos91/dittoudp/pkg/metrics"
	"github.com/marmos91/dittoudp/pkg/peers"
	peersBadger "github.com/marmos91/dittoudp/pkg/peers/badger"
	peersMemory "github.com/marmos91/dittoudp/pkg/peers/memory"
	"github.com/marmos91/dittoudp/pkg/server"
	"github.com/mitchellh/mapstructure"
)

// CreatePeerStore creates a peer table based on configuration.
//
// The Type field selects the implementation; the matching type-specific map
// is decoded into that store's Config and validated.
//
// Supported types:
//   - "memory": pkg/peers/memory (in-process, lost on restart)
//   - "badger": pkg/peers/badger (persistent, optional TTL)
func CreatePeerStore(ctx context.Context, cfg *PeersConfig) (peers.Store, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryPeerStore(cfg.Memory)
	case "badger":
		return createBadgerPeerStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown peer store type: %q", cfg.Type)
	}
}

func createMemoryPeerStore(options map[string]any) (peers.Store, error) {
	var storeCfg peersMemory.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory peer store config: %w", err)
	}

	return peersMemory.New(storeCfg), nil
}

func createBadgerPeerStore(ctx context.Context, options map[string]any) (peers.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg peersBadger.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger peer store config: %w", err)
	}

	store, err := peersBadger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger peer store: %w", err)
	}
	return store, nil
}

// decodeOptions decodes a type-specific section into out and validates it.
// Durations may be given as strings ("1h").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return err
	}
	if err := validate.Struct(out); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// CreatePeerCollector creates the idle-peer collector for store.
// The collector is not started.
func CreatePeerCollector(store peers.Store, cfg *PeersConfig) *gc.Collector {
	return gc.NewCollector(store, cfg.GC)
}

// CreateServer creates a server from the UDP adapter configuration.
//
// The server is not started; register hooks and handlers, then call Run.
// When store is non-nil its tracking hook is registered first, so every
// handler can read the sender's record.
func CreateServer(cfg *Config, udpMetrics metrics.UDPMetrics, store peers.Store) *server.Server {
	srv := server.New(cfg.Adapters.UDP).SetMetrics(udpMetrics)

	if store != nil {
		srv.RegisterHook(peers.Tracker(store))
		logger.Debug("Peer tracking enabled (%s store)", cfg.Peers.Type)
	}

	return srv
}
