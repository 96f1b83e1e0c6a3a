package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus implements Recorder with a private Prometheus registry.
type Prometheus struct {
	stateTransitions *prometheus.CounterVec
	serverState      *prometheus.GaugeVec
	healthChecks     *prometheus.CounterVec
	healthLatency    prometheus.Histogram
	restarts         *prometheus.CounterVec
	operations       *prometheus.CounterVec
	opDuration       *prometheus.HistogramVec
	updateChecks     *prometheus.CounterVec
	removals         *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ Recorder = (*Prometheus)(nil)

// serverStates are the label values of the server_state gauge.
var serverStates = []string{"stopped", "starting", "healthy", "unhealthy"}

// NewPrometheus creates a collector with metrics under namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "pawlaunch"
	}

	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_state_transitions_total",
			Help:      "Total number of server state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	p.serverState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_state",
			Help:      "1 for the current server state, 0 otherwise",
		},
		[]string{"state"},
	)

	p.healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of server health probes",
		},
		[]string{"result"},
	)

	p.healthLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Duration of server health probes",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
	)

	p.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_restarts_total",
			Help:      "Total number of server restarts",
		},
		[]string{"reason"},
	)

	p.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of install, reset, upgrade and reinstall operations",
		},
		[]string{"operation", "mode", "status"},
	)

	p.opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of install operations",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	p.updateChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_checks_total",
			Help:      "Total number of update checks by outcome",
		},
		[]string{"outcome"},
	)

	p.removals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uninstall_removals_total",
			Help:      "Total number of uninstall component removals",
		},
		[]string{"component", "status"},
	)

	p.registry.MustRegister(
		p.stateTransitions,
		p.serverState,
		p.healthChecks,
		p.healthLatency,
		p.restarts,
		p.operations,
		p.opDuration,
		p.updateChecks,
		p.removals,
	)

	for _, s := range serverStates {
		p.serverState.WithLabelValues(s).Set(0)
	}
	p.serverState.WithLabelValues("stopped").Set(1)

	return p
}

// ServerState records a state transition and moves the state gauge.
func (p *Prometheus) ServerState(from, to string) {
	p.stateTransitions.WithLabelValues(from, to).Inc()
	for _, s := range serverStates {
		v := 0.0
		if s == to {
			v = 1
		}
		p.serverState.WithLabelValues(s).Set(v)
	}
}

// HealthCheck records one probe.
func (p *Prometheus) HealthCheck(healthy bool, d time.Duration) {
	result := "healthy"
	if !healthy {
		result = "unhealthy"
	}
	p.healthChecks.WithLabelValues(result).Inc()
	p.healthLatency.Observe(d.Seconds())
}

// ServerRestart records a restart.
func (p *Prometheus) ServerRestart(reason string) {
	p.restarts.WithLabelValues(reason).Inc()
}

// Operation records an install operation.
func (p *Prometheus) Operation(op, mode string, d time.Duration, err error) {
	p.operations.WithLabelValues(op, mode, status(err)).Inc()
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

// UpdateCheck records a reconciler cycle.
func (p *Prometheus) UpdateCheck(outcome string) {
	p.updateChecks.WithLabelValues(outcome).Inc()
}

// ComponentRemoved records an uninstall removal.
func (p *Prometheus) ComponentRemoved(component string, err error) {
	p.removals.WithLabelValues(component, status(err)).Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
