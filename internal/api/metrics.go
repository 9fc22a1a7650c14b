package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dunamismax/pixelvault/internal/domain"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	jobsCreated       *prometheus.CounterVec
	chainEntries      *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	labels := []string{"method", "route", "status"}

	return &metrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_api_requests_total",
			Help: "HTTP requests handled by the API.",
		}, labels),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelvault_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, labels),
		rateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_api_rate_limit_rejections_total",
			Help: "Requests rejected because the client ran out of tokens.",
		}, []string{"route"}),
		queueEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_queue_jobs_enqueued_total",
			Help: "Render tasks handed to the queue.",
		}, []string{"queue"}),
		jobsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_api_jobs_created_total",
			Help: "Render jobs accepted, by source type.",
		}, []string{"source_type"}),
		chainEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_api_transformations_requested_total",
			Help: "Transformation chain entries accepted, by name.",
		}, []string{"name"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_api_errors_total",
			Help: "Error responses, by error category.",
		}, []string{"category"}),
	}
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// observeJob counts an accepted job. Names are already validated against
// the registry so the label set stays bounded.
func (m *metrics) observeJob(sourceType string, chain []domain.Transformation) {
	m.jobsCreated.WithLabelValues(sourceType).Inc()
	for _, t := range chain {
		m.chainEntries.WithLabelValues(t.Name).Inc()
	}
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(recorder.status)
		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

// routeLabel folds request paths onto the registered patterns.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/metrics", "/v1/jobs", "/v1/transformations":
		return path
	}
	rest, ok := strings.CutPrefix(path, "/v1/jobs/")
	if !ok || rest == "" {
		return "other"
	}
	id, action, nested := strings.Cut(rest, "/")
	switch {
	case id == "":
		return "other"
	case !nested:
		return "/v1/jobs/{id}"
	case action == "start":
		return "/v1/jobs/{id}/start"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
