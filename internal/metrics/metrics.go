// Package metrics exposes Prometheus instruments for the gradebook server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/gradebook/internal/core"
)

const namespace = "gradebook"

// Metrics implements core.Recorder and remote.CallObserver. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	workingSet     prometheus.Gauge
	reloadDuration prometheus.Histogram
	reloadErrors   prometheus.Counter
	mutations      *prometheus.CounterVec
	importRuns     *prometheus.CounterVec
	importRows     *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	remoteErrors   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ core.Recorder = (*Metrics)(nil)

// New builds the instruments on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		workingSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "working_set_records",
			Help:      "Records held in the in-memory working set after the last reload.",
		}),
		reloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_seconds",
			Help:      "Time to list every page from the student store.",
			Buckets:   prometheus.DefBuckets,
		}),
		reloadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reload_errors_total",
			Help:      "Reloads that failed.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Create, update and delete calls by outcome.",
		}, []string{"op", "outcome"}),
		importRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Import runs by outcome.",
		}, []string{"outcome"}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Imported rows by action.",
		}, []string{"action"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Student store calls including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		remoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_call_errors_total",
			Help:      "Student store calls that failed after retries.",
		}, []string{"op"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.workingSet,
		m.reloadDuration,
		m.reloadErrors,
		m.mutations,
		m.importRuns,
		m.importRows,
		m.remoteDuration,
		m.remoteErrors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ReloadDone records a working set reload.
func (m *Metrics) ReloadDone(d time.Duration, records int, err error) {
	if m == nil {
		return
	}
	m.reloadDuration.Observe(d.Seconds())
	if err != nil {
		m.reloadErrors.Inc()
		return
	}
	m.workingSet.Set(float64(records))
}

// MutationDone records a single create, update or delete.
func (m *Metrics) MutationDone(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome(err)).Inc()
}

// ImportDone records a finished import run.
func (m *Metrics) ImportDone(r core.ImportReport, err error) {
	if m == nil {
		return
	}
	result := outcome(err)
	if err == nil && r.Blocked {
		result = "blocked"
	}
	m.importRuns.WithLabelValues(result).Inc()
	m.importRows.WithLabelValues("created").Add(float64(r.Result.Created))
	m.importRows.WithLabelValues("updated").Add(float64(r.Result.Updated))
	m.importRows.WithLabelValues("skipped").Add(float64(r.Result.Skipped))
	m.importRows.WithLabelValues("error").Add(float64(len(r.Result.Errors)))
}

// RemoteCall records one logical student store call.
func (m *Metrics) RemoteCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		m.remoteErrors.WithLabelValues(op).Inc()
	}
}

// Middleware counts requests by chi route pattern so path parameters do not
// explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
