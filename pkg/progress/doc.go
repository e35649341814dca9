/*
Package progress tracks live output of running playbook tasks.

The bus is an in-memory map from task ID to the task's current step and a
bounded ring of recent output lines. Workers are the only writers for their
task; API reads take snapshots under a read lock. Nothing here is durable:
final results live on the task record, the bus only answers "what is this task
doing right now".

Finished entries stay readable for a retention window so a poll landing just
after completion still sees the final step, then a background sweeper removes
them.
*/
package progress
