package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Stage metrics
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upgrade_harness_stage_duration_seconds",
			Help:    "Stage duration in seconds by stage and result",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"stage", "result"},
	)

	StagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_harness_stages_total",
			Help: "Total number of executed stages by stage and result",
		},
		[]string{"stage", "result"},
	)

	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_harness_runs_total",
			Help: "Total number of pipeline runs by provider and result",
		},
		[]string{"provider", "result"},
	)

	CleanupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "upgrade_harness_cleanup_failures_total",
			Help: "Total number of failed cleanup steps",
		},
	)

	// Tunnel metrics
	TunnelRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_harness_tunnel_restarts_total",
			Help: "Total number of port-forward restarts by role",
		},
		[]string{"role"},
	)

	// Registry metrics
	VersionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upgrade_harness_version_checks_total",
			Help: "Total number of registry tag lookups by artifact and result",
		},
		[]string{"artifact", "result"},
	)
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func init() {
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StagesTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(CleanupFailures)
	prometheus.MustRegister(TunnelRestarts)
	prometheus.MustRegister(VersionChecks)
}

// ResultLabel maps an error to a result label value
func ResultLabel(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
