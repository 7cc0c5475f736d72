package config

import (
	"github.com/marmos91/dittoudp/pkg/metrics"
	promMetrics "github.com/marmos91/dittoudp/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// UDPMetrics is the dispatcher collector (never nil, uses noop if disabled)
	UDPMetrics metrics.UDPMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// an exporter is created on cfg.Server.Metrics.Port. Otherwise the server is
// nil and the collector is a no-op.
//
// Call at most once per process: Prometheus collectors register globally.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			UDPMetrics: metrics.NewNoopUDPMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:     server,
		UDPMetrics: promMetrics.NewUDPMetrics(),
	}
}
