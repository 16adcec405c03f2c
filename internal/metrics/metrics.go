package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	probeAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "probe",
			Name:      "attempts_total",
			Help:      "Number of readiness probes by target and result.",
		}, []string{"target", "result"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launcher",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Readiness probe latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"},
	)
	spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "process",
			Name:      "spawns_total",
			Help:      "Number of process spawn attempts by result.",
		}, []string{"name", "result"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "orchestrator",
			Name:      "state_transitions_total",
			Help:      "Number of orchestrator state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launcher",
			Subsystem: "orchestrator",
			Name:      "current_state",
			Help:      "Current orchestrator state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	dashboardOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "orchestrator",
			Name:      "dashboard_opens_total",
			Help:      "Number of open-dashboard actions by result.",
		}, []string{"result"},
	)
	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launcher",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests handled by the router by route class and status code.",
		}, []string{"route", "code"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "launcher",
			Subsystem: "proxy",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of forwarded API calls, including failures.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{probeAttempts, probeDuration, spawns, stateTransitions, currentState, dashboardOpens, proxyRequests, upstreamDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveProbe(target string, ok bool, seconds float64) {
	if regOK.Load() {
		probeAttempts.WithLabelValues(target, result(ok)).Inc()
		probeDuration.WithLabelValues(target).Observe(seconds)
	}
}

func IncSpawn(name string, ok bool) {
	if regOK.Load() {
		spawns.WithLabelValues(name, result(ok)).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
		currentState.WithLabelValues(from).Set(0)
		currentState.WithLabelValues(to).Set(1)
	}
}

func IncDashboardOpen(ok bool) {
	if regOK.Load() {
		dashboardOpens.WithLabelValues(result(ok)).Inc()
	}
}

func IncProxyRequest(route string, code int) {
	if regOK.Load() {
		proxyRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}

func ObserveUpstream(method string, seconds float64) {
	if regOK.Load() {
		upstreamDuration.WithLabelValues(method).Observe(seconds)
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
