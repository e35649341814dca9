/*
Package planner turns a batch submission into task plans.

The planner is a pure function over reference data the coordinator loads for
it: given the requested instance IDs, their groups and catalog entries, and
the common submission parameters, it resolves each instance's effective
playbook and groups instances that may run as a single playbook invocation.

# Grouping

Each instance's group declares a batch grouping strategy. Instances sharing a
grouping key become one plan item:

	strategy          without orchestrator                with orchestrator
	by_group          (server, playbook, group)           (playbook, group)
	by_server         (server, playbook)                  (playbook)
	by_instance_name  (server, playbook, base name)       (playbook, base name)
	no_grouping       (instance)                          (instance)

An orchestrator playbook manages the multi-server rollout itself, so the
server component drops out of the key and cross-server instances collapse
into one invocation. Instances without a group plan under by_group.

# Playbook Resolution

Effective playbook path is the first non-empty of: request override, instance
custom path, group update playbook, catalog default, system default (docker
instances fall through to the docker update playbook). A night-restart
submission overrides the entire chain with the night-restart playbook and is
rejected outright if the batch contains a docker instance.

The planner performs no store mutations and no I/O.
*/
package planner
