// Package metrics exposes the cached node snapshot and the exporter's own
// counters on a dedicated Prometheus registry.
//
// Exporter metrics (const label exporter_id):
//   - kaspa_exporter_rpc_calls_total{method, outcome} (Counter): RPC calls by result kind
//   - kaspa_exporter_rpc_call_duration_seconds{method} (Histogram): RPC round trip latency
//   - kaspa_exporter_frames_total{direction, opcode} (Counter): WebSocket frames sent/received
//   - kaspa_exporter_refreshes_total{result} (Counter): snapshot refreshes by result
//   - kaspa_exporter_refresh_duration_seconds (Histogram): snapshot refresh latency
//   - kaspa_exporter_cache_lookups_total{result} (Counter): cache hits and misses
//
// Node gauges are produced from the snapshot on every gather, see SnapshotCollector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the exporter's self-observability metrics
type Metrics struct {
	Registry *prometheus.Registry

	RPCCalls        *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	Frames          *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	CacheLookups    *prometheus.CounterVec
}

// New creates the exporter metrics on a fresh registry together with the
// Go and process collectors
func New(exporterID string) *Metrics {
	constLabels := prometheus.Labels{"exporter_id": exporterID}

	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RPCCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "kaspa_exporter_rpc_calls_total",
				Help:        "Total RPC calls made to the Kaspa node",
				ConstLabels: constLabels,
			},
			[]string{"method", "outcome"},
		),
		RPCCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "kaspa_exporter_rpc_call_duration_seconds",
				Help:        "RPC call latency in seconds",
				ConstLabels: constLabels,
				Buckets:     []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"method"},
		),
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "kaspa_exporter_frames_total",
				Help:        "Total WebSocket frames sent/received",
				ConstLabels: constLabels,
			},
			[]string{"direction", "opcode"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "kaspa_exporter_refreshes_total",
				Help:        "Total snapshot refreshes",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "kaspa_exporter_refresh_duration_seconds",
				Help:        "Snapshot refresh latency in seconds",
				ConstLabels: constLabels,
				Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "kaspa_exporter_cache_lookups_total",
				Help:        "Total snapshot cache lookups",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
	}

	m.Registry.MustRegister(m.RPCCalls)
	m.Registry.MustRegister(m.RPCCallDuration)
	m.Registry.MustRegister(m.Frames)
	m.Registry.MustRegister(m.Refreshes)
	m.Registry.MustRegister(m.RefreshDuration)
	m.Registry.MustRegister(m.CacheLookups)
	m.Registry.MustRegister(collectors.NewGoCollector())
	m.Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// ExposeSnapshots registers a collector publishing source's snapshot
func (m *Metrics) ExposeSnapshots(source SnapshotSource) {
	m.Registry.MustRegister(NewSnapshotCollector(source))
}

// Handler returns the exposition handler for the registry. A failed gather
// is answered with a 500.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// IncrementFrames counts one frame
func (m *Metrics) IncrementFrames(direction, opcode string) {
	m.Frames.WithLabelValues(direction, opcode).Inc()
}

// ObserveCall records one finished RPC call
func (m *Metrics) ObserveCall(method, outcome string, seconds float64) {
	m.RPCCalls.WithLabelValues(method, outcome).Inc()
	m.RPCCallDuration.WithLabelValues(method).Observe(seconds)
}

// IncrementLookups counts one cache lookup
func (m *Metrics) IncrementLookups(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveRefresh records one finished snapshot refresh
func (m *Metrics) ObserveRefresh(result string, seconds float64) {
	m.Refreshes.WithLabelValues(result).Inc()
	m.RefreshDuration.Observe(seconds)
}
