/*
Package coordinator assembles the control plane and exposes its operations.

The coordinator owns the store handle, the durable task queue, the executor
pool, the progress bus, the version ledger and the event broker. Start runs
the recovery pass first: tasks left processing by a previous run fail loudly
with "interrupted by restart", because a partially executed playbook cannot be
assumed idempotent. Shutdown stops intake, drains in-flight work up to the
caller's deadline, then kills what remains.

# Submissions

Submit operations validate synchronously and persist nothing on failure. A
batch update flows through the grouping planner, producing one durable task
per plan item; actions produce one task per instance. Cancellation tries the
instantaneous pending path first and falls back to signalling the running
subprocess.

Reads enrich stored tasks on demand: a processing task carries its live
current step from the progress bus, and captured output is parsed into PLAY
RECAP rows and display summaries at read time, never in the worker loop.

The inventory observation path accepts agent-reported versions and feeds
drift into the version ledger with changed_by=agent.
*/
package coordinator
