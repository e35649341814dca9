/*
Package ansible renders ansible-playbook invocations and parses their
human-readable output.

Corral never interprets playbooks itself; the contract with the external
runner is only that it accepts a playbook path plus -e variables, writes
progress to stdout, exits zero on success and is terminable by OS signal.
This package owns both sides of that contract:

  - RenderArgs builds a deterministic argument list from a playbook path and
    a variable map
  - CurrentTask recognizes "TASK [...]" progress markers while streaming
  - ParsePlayRecap extracts the per-host PLAY RECAP summary rows
  - ParseDisplaySummaries extracts "msg" payloads from summary tasks,
    deduplicated by content hash
  - VersionFromDistrURL derives a best-effort version from an artifact URL

Recap and summary parsing run on demand when a finished task is read back,
never in the executor's streaming hot loop.
*/
package ansible
