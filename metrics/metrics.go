package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Sampler counters
	FramesDispatched atomic.Uint64
	FramesSkipped    atomic.Uint64
	CaptureErrors    atomic.Uint64

	// Inference
	InferenceCalls     atomic.Uint64
	InferenceErrors    atomic.Uint64
	InferenceLatencyMs atomic.Uint64 // Latency of the last call in ms
	ResultsStored      atomic.Uint64
	StoreErrors        atomic.Uint64

	// Incidents
	IncidentsCreated  atomic.Uint64
	NotificationsSent atomic.Uint64
	SnapshotUploads   atomic.Uint64
	SnapshotErrors    atomic.Uint64
	ExportErrors      atomic.Uint64
	EmergencySignals  atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("drishti_frames_dispatched_total", "Frames sent for analysis", &m.FramesDispatched)
	m.counter("drishti_frames_skipped_total", "Due frames skipped because no frame was ready", &m.FramesSkipped)
	m.counter("drishti_capture_errors_total", "Frame capture or encoding failures", &m.CaptureErrors)

	m.counter("drishti_inference_calls_total", "Inference calls made", &m.InferenceCalls)
	m.counter("drishti_inference_errors_total", "Inference calls that failed", &m.InferenceErrors)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "drishti_inference_latency_ms",
			Help: "Latency of the last inference call in milliseconds",
		},
		func() float64 { return float64(m.InferenceLatencyMs.Load()) },
	))
	m.counter("drishti_results_stored_total", "Analysis results persisted", &m.ResultsStored)
	m.counter("drishti_store_errors_total", "Persistence failures in the analysis pipeline", &m.StoreErrors)

	m.counter("drishti_incidents_created_total", "Incidents materialized", &m.IncidentsCreated)
	m.counter("drishti_notifications_total", "User-facing notifications published", &m.NotificationsSent)
	m.counter("drishti_snapshot_uploads_total", "Incident frame snapshots uploaded", &m.SnapshotUploads)
	m.counter("drishti_snapshot_errors_total", "Incident frame snapshot upload failures", &m.SnapshotErrors)
	m.counter("drishti_export_errors_total", "Incident export failures", &m.ExportErrors)
	m.counter("drishti_emergency_signals_total", "Manual emergency signals triggered", &m.EmergencySignals)
}

// GaugeFunc registers a gauge read from fn at scrape time
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// UpdateInferenceLatency records the duration of the last inference call
func (m *Metrics) UpdateInferenceLatency(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
