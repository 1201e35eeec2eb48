package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/speedctl/internal/dispatch"
)

var (
	once     sync.Once
	registry *Registry
)

// OperationLabelUnknown replaces caller-supplied names that are not
// registered, so bad requests cannot grow label cardinality.
const OperationLabelUnknown = "unknown"

// Registry holds all speedctl metrics.
type Registry struct {
	// Dispatch metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	WorkerUnavailable  prometheus.Counter
	RateLimited        *prometheus.CounterVec

	// Control plane metrics (filled by Collector)
	ControlPlaneUp       prometheus.Gauge
	ControlPlaneActions  prometheus.Gauge
	ControlPlaneInFlight prometheus.Gauge
	ControlPlaneExecuted prometheus.Gauge

	// Audit metrics
	AuditWrites *prometheus.CounterVec

	// System metrics
	Uptime       prometheus.Gauge
	ConfigReload *prometheus.CounterVec
	APIRequests  *prometheus.CounterVec
	APILatency   *prometheus.HistogramVec

	known map[string]bool
}

// Get returns the global metrics registry, registered with the default
// Prometheus registerer.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return registry
}

// NewRegistry creates metrics registered with reg. Tests pass a fresh
// prometheus.NewRegistry().
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.InvocationsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "speedctl_invocations_total",
		Help: "Operation invocations by outcome",
	}, []string{"operation", "outcome"})

	r.InvocationDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name: "speedctl_invocation_duration_seconds",
		Help: "Time from dispatch to worker reply",
		// Measurements run for tens of seconds, installs for minutes
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"operation"})

	r.WorkerUnavailable = f.NewCounter(prometheus.CounterOpts{
		Name: "speedctl_worker_unavailable_total",
		Help: "Invocations that could not reach the control plane",
	})

	r.RateLimited = f.NewCounterVec(prometheus.CounterOpts{
		Name: "speedctl_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter",
	}, []string{"operation"})

	r.ControlPlaneUp = f.NewGauge(prometheus.GaugeOpts{
		Name: "speedctl_control_plane_up",
		Help: "1 if the last control plane status poll succeeded",
	})

	r.ControlPlaneActions = f.NewGauge(prometheus.GaugeOpts{
		Name: "speedctl_control_plane_actions",
		Help: "Number of actions configured on the control plane",
	})

	r.ControlPlaneInFlight = f.NewGauge(prometheus.GaugeOpts{
		Name: "speedctl_control_plane_in_flight",
		Help: "Actions currently executing on the control plane",
	})

	r.ControlPlaneExecuted = f.NewGauge(prometheus.GaugeOpts{
		Name: "speedctl_control_plane_executed",
		Help: "Actions executed since the control plane started",
	})

	r.AuditWrites = f.NewCounterVec(prometheus.CounterOpts{
		Name: "speedctl_audit_writes_total",
		Help: "Audit rows written",
	}, []string{"status"})

	r.Uptime = f.NewGauge(prometheus.GaugeOpts{
		Name: "speedctl_uptime_seconds",
		Help: "Process uptime in seconds",
	})

	r.ConfigReload = f.NewCounterVec(prometheus.CounterOpts{
		Name: "speedctl_config_reloads_total",
		Help: "Total configuration reloads",
	}, []string{"status"})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "speedctl_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "speedctl_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// SetKnownOperations limits the operation label to names. Other names are
// recorded as OperationLabelUnknown. Call before serving traffic.
func (r *Registry) SetKnownOperations(names []string) {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	r.known = known
}

func (r *Registry) operationLabel(op string) string {
	if r.known != nil && !r.known[op] {
		return OperationLabelUnknown
	}
	return op
}

// ObserveInvocation records one dispatcher invocation. Its signature matches
// dispatch.ObserverFunc.
func (r *Registry) ObserveInvocation(operation, outcome string, elapsed time.Duration) {
	op := r.operationLabel(operation)
	r.InvocationsTotal.WithLabelValues(op, outcome).Inc()
	r.InvocationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if outcome == dispatch.OutcomeWorkerUnavailable {
		r.WorkerUnavailable.Inc()
	}
}

// RecordRateLimited records a request rejected by the rate limiter.
func (r *Registry) RecordRateLimited(operation string) {
	r.RateLimited.WithLabelValues(r.operationLabel(operation)).Inc()
}

// RecordAuditWrite records an audit insert.
func (r *Registry) RecordAuditWrite(err error) {
	if err != nil {
		r.AuditWrites.WithLabelValues("error").Inc()
		return
	}
	r.AuditWrites.WithLabelValues("ok").Inc()
}

// RecordConfigReload records a configuration reload.
func (r *Registry) RecordConfigReload(err error) {
	if err != nil {
		r.ConfigReload.WithLabelValues("failure").Inc()
		return
	}
	r.ConfigReload.WithLabelValues("success").Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}
