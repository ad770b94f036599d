// Package metrics exposes judging and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mind-engage/judged/internal/judging"
)

const namespace = "judged"

// Metrics implements judging.Observer. A nil *Metrics records nothing.
type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	locksAcquired  *prometheus.CounterVec
	locksRejected  *prometheus.CounterVec
	locksExpired   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	scoresTotal    *prometheus.CounterVec
	scoresRejected *prometheus.CounterVec
	statsDuration  prometheus.Histogram
	statsErrors    prometheus.Counter
	sweepRuns      *prometheus.CounterVec
}

var _ judging.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		locksAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_acquired_total",
			Help:      "Review leases granted, by lock type and whether an existing lease was renewed.",
		}, []string{"lock_type", "renewed"}),
		locksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_rejected_total",
			Help:      "Lease requests refused, by error code.",
		}, []string{"code"}),
		locksExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_expired_total",
			Help:      "Leases closed after expiry, by path (lazy or sweep).",
		}, []string{"path"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignment_transitions_total",
			Help:      "Assignment status changes by target status.",
		}, []string{"status"}),
		scoresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_submitted_total",
			Help:      "Scores stored, by rubric scheme.",
		}, []string{"scheme"}),
		scoresRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scores_rejected_total",
			Help:      "Score submissions or updates refused, by error code.",
		}, []string{"code"}),
		statsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stats_recompute_duration_seconds",
			Help:      "Histogram of judge statistics recompute durations.",
			Buckets:   prometheus.DefBuckets,
		}),
		statsErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stats_recompute_errors_total",
			Help:      "Judge statistics recomputes that failed.",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Expired lease sweeps by outcome.",
		}, []string{"outcome"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.locksAcquired,
		m.locksRejected,
		m.locksExpired,
		m.transitions,
		m.scoresTotal,
		m.scoresRejected,
		m.statsDuration,
		m.statsErrors,
		m.sweepRuns,
	)
	return m
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and durations labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) LockAcquired(t judging.LockType, renewed bool) {
	if m == nil {
		return
	}
	m.locksAcquired.WithLabelValues(string(t), strconv.FormatBool(renewed)).Inc()
}

func (m *Metrics) LockRejected(code judging.Code) {
	if m == nil {
		return
	}
	m.locksRejected.WithLabelValues(codeLabel(code)).Inc()
}

func (m *Metrics) LocksExpired(n int, swept bool) {
	if m == nil || n <= 0 {
		return
	}
	path := "lazy"
	if swept {
		path = "sweep"
	}
	m.locksExpired.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) AssignmentTransition(to judging.Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) ScoreSubmitted(scheme string) {
	if m == nil {
		return
	}
	m.scoresTotal.WithLabelValues(scheme).Inc()
}

func (m *Metrics) ScoreRejected(code judging.Code) {
	if m == nil {
		return
	}
	m.scoresRejected.WithLabelValues(codeLabel(code)).Inc()
}

func (m *Metrics) StatsRecomputed(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.statsDuration.Observe(d.Seconds())
	if err != nil {
		m.statsErrors.Inc()
	}
}

// SweepRun counts one pass of the lease sweeper.
func (m *Metrics) SweepRun(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
}

func codeLabel(c judging.Code) string {
	if c == "" {
		return "internal"
	}
	return string(c)
}
