/*
Package metrics instruments the workflow engine and the HTTP transport with
Prometheus collectors.

Every Metrics value owns its registry so tests and multiple servers in one
process never collide on metric names. The workflow engine sees it through
the workflow.Recorder interface; the HTTP layer through ObserveHTTP.

METRICS:
  leave_requests_submitted_total{kind,leave_type}
  leave_request_submit_failures_total{error}
  leave_decisions_total{step,decision}
  leave_decision_failures_total{error}
  leave_notification_failures_total
  leave_notification_queue_depth
  leave_http_requests_total{method,route,status}
  leave_http_request_duration_seconds{method,route}
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/leave-workflow/timeoff"
	"github.com/warp/leave-workflow/workflow"
)

var _ workflow.Recorder = (*Metrics)(nil)

type Metrics struct {
	registry *prometheus.Registry

	submitted            *prometheus.CounterVec
	submitFailures       *prometheus.CounterVec
	decisions            *prometheus.CounterVec
	decideFailures       *prometheus.CounterVec
	notificationFailures prometheus.Counter
	queueDepth           prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		/* Workflow */
		submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_requests_submitted_total",
			Help: "Time-off requests accepted by the workflow engine",
		}, []string{"kind", "leave_type"}),
		submitFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_request_submit_failures_total",
			Help: "Rejected submissions by error kind",
		}, []string{"error"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_decisions_total",
			Help: "Approver decisions recorded, by step and outcome",
		}, []string{"step", "decision"}),
		decideFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_decision_failures_total",
			Help: "Rejected decisions by error kind",
		}, []string{"error"}),

		/* Notifications */
		notificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "leave_notification_failures_total",
			Help: "Notification events that could not be emitted",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "leave_notification_queue_depth",
			Help: "Events waiting in the notification queue",
		}),

		/* HTTP */
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "leave_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leave_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// =============================================================================
// workflow.Recorder
// =============================================================================

func (m *Metrics) Submitted(kind timeoff.Kind, leaveType timeoff.LeaveType) {
	lt := string(leaveType)
	if lt == "" {
		lt = "none"
	}
	m.submitted.WithLabelValues(string(kind), lt).Inc()
}

func (m *Metrics) SubmitFailed(kind string) { m.submitFailures.WithLabelValues(kind).Inc() }

func (m *Metrics) Decided(step timeoff.Step, decision timeoff.Decision) {
	m.decisions.WithLabelValues(step.String(), string(decision)).Inc()
}

func (m *Metrics) DecideFailed(kind string) { m.decideFailures.WithLabelValues(kind).Inc() }

func (m *Metrics) NotificationFailed() { m.notificationFailures.Inc() }

// =============================================================================
// Transport and queue
// =============================================================================

// ObserveHTTP records one served request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) { m.queueDepth.Set(float64(n)) }
