package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the processing pipeline.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	batchesClaimed prometheus.Counter
	documentsTotal *prometheus.CounterVec
	pagesCharged   prometheus.Counter
	passDuration   prometheus.Histogram
}

// NewMetricsService registers the collectors.
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

	batchesClaimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "processor_batches_claimed_total",
		Help: "Batches claimed across processor passes",
	})

	documentsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "processor_documents_total",
		Help: "Documents reaching a terminal status, by outcome",
	}, []string{"outcome"})

	pagesCharged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "processor_pages_charged_total",
		Help: "Pages charged against user quotas",
	})

	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "processor_pass_duration_seconds",
		Help:    "Duration of a full processor pass",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration,
		requestTotal,
		batchesClaimed,
		documentsTotal,
		pagesCharged,
		passDuration,
	)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		batchesClaimed:  batchesClaimed,
		documentsTotal:  documentsTotal,
		pagesCharged:    pagesCharged,
		passDuration:    passDuration,
	}
}

// Handler exposes the scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveRequest records one HTTP request.
func (s *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveBatchClaimed counts a successful claim.
func (s *MetricsService) ObserveBatchClaimed() {
	s.batchesClaimed.Inc()
}

// ObserveDocument counts a terminal document outcome and its charged pages.
func (s *MetricsService) ObserveDocument(outcome string, pages int) {
	s.documentsTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		s.pagesCharged.Add(float64(pages))
	}
}

// ObservePass records a full pass duration.
func (s *MetricsService) ObservePass(duration time.Duration) {
	s.passDuration.Observe(duration.Seconds())
}
