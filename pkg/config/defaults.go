package config

import (
	"strings"

	"github.com/marmos91/dittoudp/pkg/adapter/udp"
	"github.com/marmos91/dittoudp/pkg/gc"
)

const (
	// DefaultMetricsPort is the TCP port of the Prometheus exporter
	DefaultMetricsPort = 9090

	// DefaultPeersPath is where the badger peer table lives unless configured
	DefaultPeersPath = "/tmp/dittoudp-peers"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults and explicit values are preserved.
// Store-specific defaults are applied to every type-specific section so a
// generated file documents all of them.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyUDPDefaults(&cfg.Adapters.UDP)
	applyPeersDefaults(&cfg.Peers)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyUDPDefaults fills zero fields from udp.DefaultConfig. A daemon
// always gets a fixed port; use the server package directly for an
// OS-assigned one.
func applyUDPDefaults(cfg *udp.Config) {
	def := udp.DefaultConfig()

	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = def.MetricsLogInterval
	}
}

func applyPeersDefaults(cfg *PeersConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Memory["max_peers"]; !ok {
		cfg.Memory["max_peers"] = 100000
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = DefaultPeersPath
	}

	if cfg.GC.Interval == 0 {
		cfg.GC.Interval = gc.DefaultInterval
	}
	if cfg.GC.MaxIdle == 0 {
		cfg.GC.MaxIdle = gc.DefaultMaxIdle
	}
	if cfg.GC.BatchSize == 0 {
		cfg.GC.BatchSize = gc.DefaultBatchSize
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// Unlike a loaded configuration, the defaults enable the metrics exporter,
// peer tracking and peer collection, so a generated file shows them on.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
		Peers: PeersConfig{
			Enabled: true,
			GC:      gc.Config{Enabled: true},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
