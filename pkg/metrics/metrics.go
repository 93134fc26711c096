// Package metrics exposes Prometheus collectors for harvest runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one engine. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	fetchAttempts   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	pagesTotal      prometheus.Counter
	paginationStops *prometheus.CounterVec
	batchesInFlight prometheus.Gauge
	tasksInFlight   prometheus.Gauge
	taskDuration    *prometheus.HistogramVec
	rateLimitWaits  prometheus.Histogram
}

// New registers the collectors on reg. Passing a fresh registry per test
// keeps tests independent of the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igharvest_tasks_total",
				Help: "Total number of resolved fetch tasks, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		),
		fetchAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igharvest_fetch_attempts_total",
				Help: "Total number of single fetch attempts, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igharvest_retries_total",
				Help: "Total number of retries scheduled after a failed attempt, labeled by kind.",
			},
			[]string{"kind"},
		),
		pagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "igharvest_pages_total",
				Help: "Total number of user pages fetched successfully.",
			},
		),
		paginationStops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igharvest_pagination_stops_total",
				Help: "Total number of finished user enumerations, labeled by stop reason.",
			},
			[]string{"reason"},
		),
		batchesInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "igharvest_batches_in_flight",
				Help: "Number of admitted batches that have not completed yet.",
			},
		),
		tasksInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "igharvest_tasks_in_flight",
				Help: "Number of tasks currently executing.",
			},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "igharvest_task_duration_seconds",
				Help:    "Histogram of task wall-clock durations, labeled by kind.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"kind"},
		),
		rateLimitWaits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "igharvest_rate_limit_wait_seconds",
				Help:    "Histogram of time spent waiting for the request rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
	}
}

// Handler returns an http.Handler serving the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveTask records a resolved task
func (m *Metrics) ObserveTask(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(kind, status).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveAttempt records one fetch attempt; result is "success" or "error"
func (m *Metrics) ObserveAttempt(kind string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.fetchAttempts.WithLabelValues(kind, result).Inc()
}

// IncRetries counts a scheduled retry
func (m *Metrics) IncRetries(kind string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(kind).Inc()
}

// IncPages counts a successfully fetched user page
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.pagesTotal.Inc()
}

// ObservePaginationStop records why a user enumeration ended
func (m *Metrics) ObservePaginationStop(reason string) {
	if m == nil {
		return
	}
	m.paginationStops.WithLabelValues(reason).Inc()
}

// BatchStarted increments the batches-in-flight gauge
func (m *Metrics) BatchStarted() {
	if m == nil {
		return
	}
	m.batchesInFlight.Inc()
}

// BatchFinished decrements the batches-in-flight gauge
func (m *Metrics) BatchFinished() {
	if m == nil {
		return
	}
	m.batchesInFlight.Dec()
}

// TaskStarted increments the tasks-in-flight gauge
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// TaskFinished decrements the tasks-in-flight gauge
func (m *Metrics) TaskFinished() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}

// ObserveRateLimitWait records the duration of a rate limiter wait
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitWaits.Observe(d.Seconds())
}
