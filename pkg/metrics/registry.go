// Package metrics provides Prometheus metrics collection for the DittoUDP
// dispatcher.
//
// All metrics are optional. If the registry is not initialized, components
// use no-op implementations with zero overhead, so the server runs the same
// way with or without metrics collection.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics for the UDP adapter
//	udpMetrics := prometheus.NewUDPMetrics()
//
//	// Or use nil for no-op behavior
//	adapter := udp.New(config, pipeline, bridge, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read many times
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry together with the
// Go runtime and process collectors.
//
// It's safe to call multiple times; subsequent calls are ignored.
//
// Thread safety:
// sync.Once provides the memory barrier that makes the registry visible to
// all subsequent reads.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil if InitRegistry has not
// been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
