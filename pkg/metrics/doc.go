/*
Package metrics defines the Prometheus metrics recorded during a run.

All collectors are registered on the default registry in init. The harness is
a short-lived process, so metrics are exported by pushing them to a
Pushgateway at the end of a run when one is configured:

	timer := metrics.NewTimer()
	err := runStage(ctx)
	timer.ObserveDurationVec(metrics.StageDuration, string(stage), metrics.ResultLabel(err))

	_ = metrics.Push(ctx, "http://pushgateway:9091", "upgrade_harness", runID)

# Metrics

	upgrade_harness_stage_duration_seconds{stage,result}
	upgrade_harness_stages_total{stage,result}
	upgrade_harness_runs_total{provider,result}
	upgrade_harness_cleanup_failures_total
	upgrade_harness_tunnel_restarts_total{role}
	upgrade_harness_version_checks_total{artifact,result}
*/
package metrics
