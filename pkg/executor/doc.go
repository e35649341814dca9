/*
Package executor runs claimed tasks as external playbook subprocesses on a
fixed worker pool.

Each worker loops: dequeue, load the task's read-only context from the store,
spawn the playbook runner, stream its combined output into the progress bus
and an accumulating result buffer, and map the exit to a terminal outcome
through the queue's single Finish write. Lines matching TASK [..] markers
update the task's current step as they stream.

# Subprocess lifecycle

Each runner leads its own process group, and termination signals the group,
so forked ansible children die with it instead of holding the output pipe
open. The running process is registered in the CancelRegistry under its task
ID. Cancel sends SIGTERM and escalates to SIGKILL after the configured grace;
a killed process flows through the worker's normal exit handling, so the
cancelled task still finishes through Finish. The optional per-task timeout
and shutdown draining use the same termination protocol, ending tasks with
"timed out" and "shutdown" respectively.

On success, update tasks get version post-processing: a best-effort new
version is derived from the artifact URL (or image:tag for docker instances),
the instances are updated, and the transition is recorded in the version
ledger. Ledger failures are logged and never fail the task.
*/
package executor
