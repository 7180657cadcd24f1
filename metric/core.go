package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core gateway metrics shared by the request path
type Metrics struct {
	// Façade metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Dispatcher metrics
	FanoutCalls    *prometheus.CounterVec
	FanoutDuration *prometheus.HistogramVec
	PartialResults prometheus.Counter

	// Registry metrics
	ReloadsTotal    prometheus.Counter
	ReloadFailures  prometheus.Counter
	RoutesLoaded    prometheus.Gauge
	SnapshotVersion prometheus.Gauge
}

// NewMetrics creates the core gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "unigate",
				Subsystem: "requests",
				Name:      "total",
				Help:      "Total inbound requests by route and outcome",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "unigate",
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "End-to-end request handling latency",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route"},
		),
		FanoutCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "unigate",
				Subsystem: "fanout",
				Name:      "calls_total",
				Help:      "Backend calls by response kind and outcome",
			},
			[]string{"kind", "status"},
		),
		FanoutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "unigate",
				Subsystem: "fanout",
				Name:      "call_duration_seconds",
				Help:      "Per-service call latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		PartialResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "unigate",
				Subsystem: "fanout",
				Name:      "partial_results_total",
				Help:      "Requests that completed with at least one per-service error marker",
			},
		),
		ReloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "unigate",
				Subsystem: "registry",
				Name:      "reloads_total",
				Help:      "Successful snapshot reloads",
			},
		),
		ReloadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "unigate",
				Subsystem: "registry",
				Name:      "reload_failures_total",
				Help:      "Reloads rejected by validation or store errors",
			},
		),
		RoutesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "unigate",
				Subsystem: "registry",
				Name:      "routes_loaded",
				Help:      "Routes in the current snapshot",
			},
		),
		SnapshotVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "unigate",
				Subsystem: "registry",
				Name:      "snapshot_version",
				Help:      "Version of the current snapshot",
			},
		),
	}
}

// register registers every core metric with the given registry
func (m *Metrics) register(r *prometheus.Registry) {
	r.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.FanoutCalls,
		m.FanoutDuration,
		m.PartialResults,
		m.ReloadsTotal,
		m.ReloadFailures,
		m.RoutesLoaded,
		m.SnapshotVersion,
	)
}
