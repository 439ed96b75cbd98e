// Package metrics exposes pipeline and HTTP metrics in Prometheus format.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/photo-dedup/internal/pipeline"
)

const namespace = "photo_dedup"

// Metrics owns a private registry with pipeline and HTTP collectors.
// It implements pipeline.Telemetry.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runPhotos       prometheus.Histogram
	runsInFlight    prometheus.Gauge
	groupsFound     prometheus.Histogram
	layerDuration   *prometheus.HistogramVec
	layerInputTotal *prometheus.CounterVec
	layerGroups     *prometheus.CounterVec

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge
}

var _ pipeline.Telemetry = (*Metrics)(nil)

// New creates metrics for service.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,
		service:  service,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "runs_total",
				Help:        "Total finished pipeline runs by status.",
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "run_duration_seconds",
				Help:        "Pipeline run duration in seconds by status.",
				Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
				ConstLabels: constLabels,
			},
			[]string{"status"},
		),
		runPhotos: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "run_photos",
				Help:        "Number of photos submitted per run.",
				Buckets:     prometheus.ExponentialBuckets(2, 4, 8),
				ConstLabels: constLabels,
			},
		),
		runsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "runs_in_flight",
				Help:        "Number of executing pipeline runs.",
				ConstLabels: constLabels,
			},
		),
		groupsFound: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "groups_found",
				Help:        "Groups above the confidence threshold per completed run.",
				Buckets:     []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
				ConstLabels: constLabels,
			},
		),
		layerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "layer",
				Name:        "duration_seconds",
				Help:        "Layer execution duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"layer"},
		),
		layerInputTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "layer",
				Name:        "input_photos_total",
				Help:        "Total photos entering each layer.",
				ConstLabels: constLabels,
			},
			[]string{"layer"},
		),
		layerGroups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "layer",
				Name:        "groups_total",
				Help:        "Total groups formed by each layer.",
				ConstLabels: constLabels,
			},
			[]string{"layer"},
		),
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total HTTP requests processed.",
				ConstLabels: constLabels,
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "HTTP request duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: constLabels,
			},
		),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.runPhotos,
		m.runsInFlight,
		m.groupsFound,
		m.layerDuration,
		m.layerInputTotal,
		m.layerGroups,
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RunStarted(_ string, photos int) {
	m.runsInFlight.Inc()
	m.runPhotos.Observe(float64(photos))
}

func (m *Metrics) LayerCompleted(_ string, stat pipeline.LayerStat) {
	layer := string(stat.Layer)
	m.layerDuration.WithLabelValues(layer).Observe(stat.Duration.Seconds())
	m.layerInputTotal.WithLabelValues(layer).Add(float64(stat.Input))
	if stat.Groups > 0 {
		m.layerGroups.WithLabelValues(layer).Add(float64(stat.Groups))
	}
}

func (m *Metrics) RunFinished(_ string, status pipeline.Status, groups int, duration time.Duration) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	if status == pipeline.StatusCompleted {
		m.groupsFound.Observe(float64(groups))
	}
}

// RunFailed is counted by RunFinished.
func (m *Metrics) RunFailed(string, error) {}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// routePattern keeps label cardinality bounded by using the matched pattern.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
