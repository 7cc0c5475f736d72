package prometheus

import (
	"time"

	"github.com/marmos91/dittoudp/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// udpMetrics is the Prometheus implementation of metrics.UDPMetrics.
type udpMetrics struct {
	datagramsReceived prometheus.Counter
	datagramSize      prometheus.Histogram
	datagramsDropped  *prometheus.CounterVec
	readErrors        prometheus.Counter
	pipelinesTotal    *prometheus.CounterVec
	pipelineDuration  *prometheus.HistogramVec
	bytesSent         prometheus.Counter
	sendErrors        prometheus.Counter
	inFlight          prometheus.Gauge
}

// NewUDPMetrics creates a UDPMetrics registered on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewUDPMetrics() metrics.UDPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopUDPMetrics()
	}
	return NewUDPMetricsWith(metrics.GetRegistry())
}

// NewUDPMetricsWith creates a UDPMetrics registered on reg.
func NewUDPMetricsWith(reg prometheus.Registerer) metrics.UDPMetrics {
	return &udpMetrics{
		datagramsReceived: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoudp_datagrams_received_total",
				Help: "Total number of datagrams accepted for dispatch",
			},
		),
		datagramSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoudp_datagram_size_bytes",
				Help: "Distribution of received datagram sizes",
				Buckets: []float64{
					64,     // 64B
					512,    // 512B
					1472,   // Ethernet MTU payload
					8192,   // 8KB
					65507,  // max IPv4 UDP payload
					524288, // default buffer size
				},
			},
		),
		datagramsDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoudp_datagrams_dropped_total",
				Help: "Total number of datagrams dropped before dispatch by reason",
			},
			[]string{"reason"},
		),
		readErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoudp_read_errors_total",
				Help: "Total number of failed socket reads",
			},
		),
		pipelinesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoudp_pipelines_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		pipelineDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoudp_pipeline_duration_milliseconds",
				Help: "Duration of pipeline runs in milliseconds",
				Buckets: []float64{
					0.1,  // 100µs
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"outcome"},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoudp_bytes_sent_total",
				Help: "Total bytes sent back to peers",
			},
		),
		sendErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoudp_send_errors_total",
				Help: "Total number of failed sends",
			},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoudp_pipelines_in_flight",
				Help: "Current number of pipelines being executed",
			},
		),
	}
}

func (m *udpMetrics) RecordDatagramReceived(bytes int) {
	m.datagramsReceived.Inc()
	m.datagramSize.Observe(float64(bytes))
}

func (m *udpMetrics) RecordDatagramDropped(reason string) {
	m.datagramsDropped.WithLabelValues(reason).Inc()
}

func (m *udpMetrics) RecordReadError() {
	m.readErrors.Inc()
}

func (m *udpMetrics) RecordPipeline(outcome string, duration time.Duration) {
	m.pipelinesTotal.WithLabelValues(outcome).Inc()
	m.pipelineDuration.WithLabelValues(outcome).Observe(float64(duration.Microseconds()) / 1000)
}

func (m *udpMetrics) RecordBytesSent(bytes int) {
	m.bytesSent.Add(float64(bytes))
}

func (m *udpMetrics) RecordSendError() {
	m.sendErrors.Inc()
}

func (m *udpMetrics) SetInFlight(count int32) {
	m.inFlight.Set(float64(count))
}
