/*
Package queue implements the durable FIFO task queue between submission and
execution.

The store is the source of truth: enqueuing persists the batch atomically and
claiming flips the oldest pending task to processing in a single conditional
update, so two workers can never dispatch the same task. A buffered wake
channel cuts dispatch latency after an enqueue; a poll ticker bounds how long
a missed wake can stall the queue. Dequeue tolerates spurious wakes by simply
re-querying.

Cancellation before dispatch goes through the same conditional-update
discipline: a pending task is atomically marked failed and cancelled with
"cancelled by user", and a cancel that loses the race against a claim comes
back as a conflict with the task's actual state. Tasks found in processing at
startup cannot be resumed or safely retried, so RecoverInterrupted fails them
with "interrupted by restart".

With SerializePerServer enabled, Dequeue skips tasks whose server already has
an in-flight task, keeping concurrent playbook runs off the same host.
*/
package queue
