// Package bbsmetrics holds the process-wide Prometheus collectors, in the
// shape of the teacher's internal/app/metrics/metrics.go: a private
// registry, package-level collector vars, and a Register() called once at
// boot.
package bbsmetrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds the BBS-specific Prometheus collectors.
var Registry = prometheus.NewRegistry()

var (
	CommandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardwalk",
			Subsystem: "shell",
			Name:      "commands_dispatched_total",
			Help:      "Total number of commands dispatched by area kind.",
		},
		[]string{"area_kind"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "boardwalk",
			Subsystem: "shell",
			Name:      "command_duration_seconds",
			Help:      "Duration of one Shell.Dispatch call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"area_kind"},
	)

	SandboxRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "boardwalk",
			Subsystem: "remoteloader",
			Name:      "rejections_total",
			Help:      "Total number of candidate apps rejected by static analysis or contract validation.",
		},
	)

	SandboxCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardwalk",
			Subsystem: "remoteloader",
			Name:      "calls_total",
			Help:      "Total number of isolate calls by outcome.",
		},
		[]string{"outcome"},
	)

	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "boardwalk",
			Subsystem: "registry",
			Name:      "apps_loaded",
			Help:      "Current number of apps loaded in the registry.",
		},
	)

	RateLimitBreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "boardwalk",
			Subsystem: "capability",
			Name:      "rate_limit_breaches_total",
			Help:      "Total number of rate-limit breaches by app and operation.",
		},
		[]string{"app_id", "operation"},
	)
)

func init() {
	Registry.MustRegister(
		CommandsDispatched,
		CommandDuration,
		SandboxRejections,
		SandboxCalls,
		RegistrySize,
		RateLimitBreaches,
	)
}
