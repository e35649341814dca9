/*
Package log provides structured logging for Corral using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

# Usage

Initializing the logger:

	import "github.com/corralhq/corral/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Simple logging:

	log.Info("coordinator started")
	log.Error("failed to open store")

Structured logging:

	log.Logger.Info().
		Str("task_id", task.ID).
		Int("instances", len(batch)).
		Msg("task enqueued")

Component loggers:

	execLog := log.WithComponent("executor")
	execLog.Info().Msg("worker pool started")

	taskLog := log.WithTaskID("6c0f...").With().
		Int64("server_id", 3).Logger()
	taskLog.Info().Msg("playbook started")

# Integration Points

This package integrates with:

  - pkg/coordinator: lifecycle and submission logging
  - pkg/executor: per-task playbook execution logging
  - pkg/queue: enqueue/dequeue and recovery logging
  - pkg/ledger: best-effort write failures
  - pkg/api: request logging
*/
package log
