package togglekit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the SDK. Collectors live
// in their own registry so host applications can mount them without
// colliding with their own instrumentation.
type Metrics struct {
	Registry prometheus.Registerer

	EvaluationsTotal  *prometheus.CounterVec
	SyncsTotal        *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	RepositoryVersion prometheus.Gauge
	ToggleCount       prometheus.Gauge
	SegmentCount      prometheus.Gauge
}

// NewMetrics creates and registers all SDK metrics in a fresh registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.NewRegistry())
}

// NewMetricsWithRegisterer registers the SDK collectors in reg.
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registry: reg,

		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "togglekit_evaluations_total",
			Help: "Total number of toggle evaluations.",
		}, []string{"result"}),

		SyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "togglekit_syncs_total",
			Help: "Total number of repository synchronization attempts.",
		}, []string{"status", "type"}),

		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "togglekit_sync_duration_seconds",
			Help:    "Repository fetch and decode latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		RepositoryVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "togglekit_repository_version",
			Help: "Version of the currently held repository.",
		}),

		ToggleCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "togglekit_toggle_count",
			Help: "Number of toggles in the current repository.",
		}),

		SegmentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "togglekit_segment_count",
			Help: "Number of segments in the current repository.",
		}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.SyncsTotal,
		m.SyncDuration,
		m.RepositoryVersion,
		m.ToggleCount,
		m.SegmentCount,
	)

	return m
}

// Handler returns an [http.Handler] serving the SDK metrics when the
// registry is a gatherer.
func (m *Metrics) Handler() http.Handler {
	if g, ok := m.Registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// RecordEvaluation counts one evaluation by whether the toggle existed.
func (m *Metrics) RecordEvaluation(found bool) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// RecordSync counts one synchronization attempt and its latency.
func (m *Metrics) RecordSync(syncType SyncType, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SyncsTotal.WithLabelValues(status, syncType.String()).Inc()
	m.SyncDuration.Observe(elapsed.Seconds())
}

// SetRepository updates the repository gauges after a swap.
func (m *Metrics) SetRepository(repo *Repository) {
	if m == nil || repo == nil {
		return
	}
	m.RepositoryVersion.Set(float64(repo.versionOrZero()))
	m.ToggleCount.Set(float64(len(repo.Toggles)))
	m.SegmentCount.Set(float64(len(repo.Segments)))
}
