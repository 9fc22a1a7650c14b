package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dunamismax/pixelvault/internal/domain"
)

type metrics struct {
	registry        *prometheus.Registry
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
	variantInputs   prometheus.Counter
	variantsWritten prometheus.Counter
	inputScale      prometheus.Histogram
	pixelsProcessed prometheus.Counter
	bytesSaved      prometheus.Counter
	computeTimeMS   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelvault_worker_tasks_total",
			Help: "Worker tasks by task type and final status.",
		}, []string{"task", "status"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelvault_worker_task_duration_seconds",
			Help:    "Processing duration for each worker task.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"task", "status"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pixelvault_worker_active_jobs",
			Help: "Tasks currently holding an image slot.",
		}),
		variantInputs: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelvault_worker_variant_inputs_total",
			Help: "Renders that decoded a pre-scaled variant instead of the original.",
		}),
		variantsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelvault_worker_variants_written_total",
			Help: "Pre-scaled variants generated and stored.",
		}),
		inputScale: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelvault_worker_input_scale",
			Help:    "Decoded input width relative to the original, 1 for full resolution.",
			Buckets: []float64{0.125, 0.25, 0.5, 0.75, 1},
		}),
		pixelsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelvault_usage_pixels_processed_total",
			Help: "Output pixels across successful renders.",
		}),
		bytesSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelvault_usage_bytes_saved_total",
			Help: "Bytes saved across successful renders.",
		}),
		computeTimeMS: factory.NewCounter(prometheus.CounterOpts{
			Name: "pixelvault_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful renders.",
		}),
	}
}

func (m *metrics) observeUsage(u domain.UsageLog) {
	m.inputScale.Observe(u.InputScale)
	m.pixelsProcessed.Add(float64(u.PixelsProcessed))
	m.bytesSaved.Add(float64(u.BytesSaved))
	m.computeTimeMS.Add(float64(u.ComputeTimeMS))
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
