package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rosterly/rosterly-backend/internal/scheduling/domain"
	"github.com/rosterly/rosterly-backend/pkg/config"
	"github.com/rosterly/rosterly-backend/pkg/errors"
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the scheduling collectors. A zero Metrics (metrics
// disabled) is valid and records nothing; so is a nil *Metrics.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	ScheduleRuns        *prometheus.CounterVec
	AutoAssignments     prometheus.Counter
	UnfilledShifts      prometheus.Counter
	ScheduleDuration    prometheus.Histogram
	JobRuns             *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on reg
func New(cfg config.MetricsConfig, reg prometheus.Registerer) *Metrics {
	if !cfg.Enabled {
		return &Metrics{}
	}
	ns := cfg.Namespace
	factory := promauto.With(reg)

	return &Metrics{
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduling",
				Name:      "assignment_transitions_total",
				Help:      "Assignment state transitions by kind and outcome",
			},
			[]string{"transition", "outcome"},
		),
		ScheduleRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduling",
				Name:      "auto_schedule_runs_total",
				Help:      "Auto-scheduling runs by outcome",
			},
			[]string{"outcome"},
		),
		AutoAssignments: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduling",
				Name:      "auto_assignments_total",
				Help:      "Assignments created by the auto-scheduler",
			},
		),
		UnfilledShifts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "scheduling",
				Name:      "unfilled_shifts_total",
				Help:      "Shifts left understaffed at the end of a run",
			},
		),
		ScheduleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "scheduling",
				Name:      "auto_schedule_duration_seconds",
				Help:      "Duration of auto-scheduling runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Periodic job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "http_requests_total",
				Help:      "Total received API requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "http_request_duration_seconds",
				Help:      "API request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// ObserveTransition counts one assignment transition. State conflicts are
// labelled with their reason.
func (m *Metrics) ObserveTransition(transition string, err error) {
	if m == nil || m.Transitions == nil {
		return
	}
	m.Transitions.WithLabelValues(transition, outcome(err)).Inc()
}

// ObserveSchedule records the outcome of an auto-scheduling run
func (m *Metrics) ObserveSchedule(result *domain.ScheduleResult, elapsed time.Duration, err error) {
	if m == nil || m.ScheduleRuns == nil {
		return
	}
	m.ScheduleRuns.WithLabelValues(outcome(err)).Inc()
	m.ScheduleDuration.Observe(elapsed.Seconds())
	if result != nil {
		m.AutoAssignments.Add(float64(len(result.AssignmentsMade)))
		m.UnfilledShifts.Add(float64(len(result.UnfilledShifts)))
	}
}

// ObserveJob counts one periodic job run
func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil || m.JobRuns == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, outcome(err)).Inc()
}

// Middleware records request counts and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil || m.HTTPRequestsTotal == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if reason := errors.ReasonOf(err); reason != "" {
		return reason
	}
	return OutcomeError
}
