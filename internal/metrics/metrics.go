package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of successful worker starts.",
		}, []string{"name"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of auto restarts (crash or failed health check).",
		}, []string{"name", "reason"},
	)
	workerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "worker",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or kill).",
		}, []string{"name"},
	)
	probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "health",
			Name:      "probe_failures_total",
			Help:      "Number of failed health probes.",
		}, []string{"name"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Duration of individual health probes.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"name", "from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"name", "state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerStarts, workerRestarts, workerStops, probeFailures, probeDuration, stateTransitions, currentState}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route and starts the server.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until
// Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		workerStarts.WithLabelValues(name).Inc()
	}
}

func IncRestart(name, reason string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(name, reason).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		workerStops.WithLabelValues(name).Inc()
	}
}

func IncProbeFailure(name string) {
	if regOK.Load() {
		probeFailures.WithLabelValues(name).Inc()
	}
}

func ObserveProbeDuration(name string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(name).Observe(seconds)
	}
}

func RecordStateTransition(name, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(name, from, to).Inc()
	}
}

func SetCurrentState(name, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(name, state).Set(value)
	}
}
