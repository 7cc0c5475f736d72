package config

import (
	"context"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittoudp/pkg/metrics"
	peersBadger "github.com/marmos91/dittoudp/pkg/peers/badger"
	peersMemory "github.com/marmos91/dittoudp/pkg/peers/memory"
)

func TestCreatePeerStore_Memory(t *testing.T) {
	cfg := &PeersConfig{
		Type:   "memory",
		Memory: map[string]any{"max_peers": "2"},
	}

	store, err := CreatePeerStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create memory peer store: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*peersMemory.Store); !ok {
		t.Fatalf("Expected *memory.Store, got %T", store)
	}
}

func TestCreatePeerStore_MemoryInvalidOption(t *testing.T) {
	cfg := &PeersConfig{
		Type:   "memory",
		Memory: map[string]any{"max_peers": -1},
	}

	if _, err := CreatePeerStore(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for negative max_peers")
	}
}

func TestCreatePeerStore_Badger(t *testing.T) {
	cfg := &PeersConfig{
		Type: "badger",
		Badger: map[string]any{
			"path": t.TempDir(),
			"ttl":  "1h",
		},
	}

	ctx := context.Background()
	store, err := CreatePeerStore(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create badger peer store: %v", err)
	}
	defer store.Close()

	if _, ok := store.(*peersBadger.Store); !ok {
		t.Fatalf("Expected *badger.Store, got %T", store)
	}

	host := netip.MustParseAddr("192.0.2.1")
	if _, err := store.Observe(ctx, host, 4, time.Now()); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if _, err := store.Get(ctx, host); err != nil {
		t.Errorf("Expected stored record, got: %v", err)
	}
}

func TestCreatePeerStore_BadgerMissingPath(t *testing.T) {
	cfg := &PeersConfig{Type: "badger", Badger: map[string]any{}}

	_, err := CreatePeerStore(context.Background(), cfg)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("Expected 'required' error, got: %v", err)
	}
}

func TestCreatePeerStore_UnknownType(t *testing.T) {
	_, err := CreatePeerStore(context.Background(), &PeersConfig{Type: "redis"})
	if err == nil || !strings.Contains(err.Error(), "unknown peer store type") {
		t.Errorf("Expected unknown type error, got: %v", err)
	}
}

func TestCreateServer(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Adapters.UDP.Port = 9123

	store := peersMemory.New(peersMemory.Config{})
	srv := CreateServer(cfg, metrics.NewNoopUDPMetrics(), store)

	if srv.Config().Port != 9123 {
		t.Errorf("Expected port 9123, got %d", srv.Config().Port)
	}
	if srv.Running() {
		t.Error("Expected server not running before Run")
	}
}

func TestCreatePeerCollector(t *testing.T) {
	cfg := GetDefaultConfig()
	store := peersMemory.New(peersMemory.Config{})

	collector := CreatePeerCollector(store, &cfg.Peers)
	stats, err := collector.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if stats.ScannedCount != 0 {
		t.Errorf("Expected empty scan, got %d", stats.ScannedCount)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Metrics.Enabled = false

	result := InitializeMetrics(cfg)
	if result.Server != nil {
		t.Error("Expected nil metrics server when disabled")
	}
	if result.UDPMetrics == nil {
		t.Error("Expected no-op UDP metrics when disabled")
	}
}
