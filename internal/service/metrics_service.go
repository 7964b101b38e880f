package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer
// and the bulk engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runItems        prometheus.Histogram
	itemsTotal      *prometheus.CounterVec
	rollbackItems   *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_runs_total",
		Help: "Total number of bulk runs by terminal status",
	}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_run_duration_seconds",
		Help:    "Wall-clock duration of bulk runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	})

	runItems := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_run_items",
		Help:    "Item count per bulk run",
		Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
	})

	itemsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_items_total",
		Help: "Total processed items by outcome",
	}, []string{"outcome"})

	rollbackItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bulk_rollback_items_total",
		Help: "Total rollback item attempts by result",
	}, []string{"result"})

	registry.MustRegister(requestDuration, requestTotal, runsTotal, runDuration, runItems, itemsTotal, rollbackItems)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		runItems:        runItems,
		itemsTotal:      itemsTotal,
		rollbackItems:   rollbackItems,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// ObserveRun records a run reaching a terminal status.
func (s *MetricsService) ObserveRun(status string, items int, duration time.Duration) {
	s.runsTotal.WithLabelValues(status).Inc()
	s.runDuration.Observe(duration.Seconds())
	s.runItems.Observe(float64(items))
}

// ObserveItem records one item outcome.
func (s *MetricsService) ObserveItem(outcome string) {
	s.itemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRollback records the per-item results of one rollback.
func (s *MetricsService) ObserveRollback(reverted, failed int) {
	s.rollbackItems.WithLabelValues("reverted").Add(float64(reverted))
	s.rollbackItems.WithLabelValues("failed").Add(float64(failed))
}
