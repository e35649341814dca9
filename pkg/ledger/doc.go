/*
Package ledger records version transitions of instances as an append-only
history.

A row is written only when something actually changed between the old and new
state (version, image, tag, or distribution path). Two paths feed the ledger:
the executor's success path after an update task (changed_by=user,
change_source=update_task) and the inventory observation path when an agent
reports a drifted version (changed_by=agent, change_source=polling).

Ledger writes on the task success path are best-effort: callers log failures
instead of failing the task.
*/
package ledger
