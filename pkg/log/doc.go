/*
Package log provides structured logging for upgrade-harness using zerolog.

The package wraps a single global zerolog.Logger that every other package
derives component loggers from. Output is human-readable console text by
default and JSON when --log-json is passed, which is what CI pipelines
ingest.

# Usage

	log.Init(log.Config{Level: log.InfoLevel})
	log.WithRunID(runID)

	logger := log.WithComponent("cluster-provider")
	logger.Info().Str("release", "am").Msg("Installing release")

Console output:

	3:04PM INF Installing release component=cluster-provider release=am run_id=...

# Fields

  - component: the package or provider emitting the line
  - run_id: one UUID per CLI invocation, shared with the CI trigger payload
  - stage: the pipeline stage being executed (orchestrator only)

Subprocess output is never logged line by line at info level; wrappers attach
captured stderr to returned errors and the orchestrator logs it once when a
stage fails.
*/
package log
