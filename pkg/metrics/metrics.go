// Package metrics exposes prometheus instrumentation for the shuffled
// restart search and the remote trial transport.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// Search metrics
	TrialsTotal      *prometheus.CounterVec // by status: ok, error
	TrialDuration    prometheus.Histogram
	SearchesTotal    *prometheus.CounterVec // by status: ok, error
	SearchDuration   prometheus.Histogram
	BestModularity   prometheus.Gauge
	BestImprovements prometheus.Counter
	ActiveWorkers    prometheus.Gauge

	// Remote transport metrics
	RemoteFramesTotal *prometheus.CounterVec // by direction and status
	RemoteBytesTotal  *prometheus.CounterVec // by direction

	registry *prometheus.Registry
}

// NewRegistry creates a registry with all metrics registered
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initSearchMetrics()
	r.initRemoteMetrics()
	return r
}

func (r *Registry) initSearchMetrics() {
	r.TrialsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shulou_trials_total",
			Help: "Total number of detection trials executed",
		},
		[]string{"status"}, // ok, error
	)

	r.TrialDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shulou_trial_duration_seconds",
			Help:    "Duration of individual detection trials in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
	)

	r.SearchesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shulou_searches_total",
			Help: "Total number of restart searches run",
		},
		[]string{"status"}, // ok, error
	)

	r.SearchDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shulou_search_duration_seconds",
			Help:    "End-to-end duration of restart searches in seconds",
			Buckets: []float64{0.01, 0.1, 1.0, 10.0, 60.0, 300.0},
		},
	)

	r.BestModularity = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "shulou_best_modularity",
			Help: "Best modularity found by the most recent search",
		},
	)

	r.BestImprovements = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "shulou_best_improvements_total",
			Help: "Number of times a trial improved on the best modularity",
		},
	)

	r.ActiveWorkers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "shulou_active_workers",
			Help: "Number of trial workers currently running",
		},
	)
}

func (r *Registry) initRemoteMetrics() {
	r.RemoteFramesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shulou_remote_frames_total",
			Help: "Total number of remote task/result frames processed",
		},
		[]string{"direction", "status"}, // sent/received, ok/error
	)

	r.RemoteBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "shulou_remote_bytes_total",
			Help: "Total wire bytes moved by the remote transport",
		},
		[]string{"direction"}, // sent, received
	)
}

// Handler returns an HTTP handler serving the registry in the
// prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests
func (r *Registry) Gather() prometheus.Gatherer {
	return r.registry
}
