// Package metrics exposes Prometheus instrumentation for the userinfo handlers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the handler metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec   // by operation and status code
	RequestDuration *prometheus.HistogramVec // by operation
	TimeMoved       *prometheus.CounterVec   // minutes added or deducted, by operation
}

// New registers the handler metrics plus Go runtime collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userinfo_requests_total",
				Help: "Total number of handled requests",
			},
			[]string{"operation", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userinfo_request_duration_seconds",
				Help:    "Duration of handled requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TimeMoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userinfo_time_moved_total",
				Help: "Total available time added or deducted",
			},
			[]string{"operation"},
		),
	}
}

// ObserveRequest records one handled request. Safe on a nil Recorder.
func (r *Recorder) ObserveRequest(operation string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}

	r.RequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	r.RequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveTimeMoved adds amount to the balance movement counter. Negative
// amounts are ignored.
func (r *Recorder) ObserveTimeMoved(operation string, amount float64) {
	if r == nil || amount < 0 {
		return
	}

	r.TimeMoved.WithLabelValues(operation).Add(amount)
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
