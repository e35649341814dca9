/*
Package types defines the core data structures shared across all Corral
packages.

This package contains the domain model for the control plane: instances and
the servers they run on, catalog entries and rollout groups, durable tasks
with their typed parameter bags, and the append-only version-history ledger.
It has no dependencies on other Corral packages, making it safe to import
from anywhere.

# Entities

Instance:
  - A concrete running application on a specific server
  - Identified by (ServerID, InstanceName, AppType) among non-deleted rows
  - Carries observed state: status, version, image, tag, distr path
  - Soft-deleted via DeletedAt, never hard-deleted by the control plane

Server:
  - A host that instances live on (name plus network coordinates)

CatalogEntry:
  - The logical application definition shared by many instances
  - Provides default playbook path and artifact URL/extension

Group:
  - A rollout cohort with a batch grouping strategy and playbook default
  - Strategies: by_group, by_server, by_instance_name, no_grouping

Task:
  - Durable record of one playbook invocation against one or more instances
  - Status machine: pending -> processing -> completed | failed
  - A cancelled task always ends failed
  - PID is populated only while the task is processing
  - Params is a discriminated record: Update or Action, keyed by Type

VersionHistory:
  - Append-only row written when an instance's version, image, tag or distr
    path is observed to change
  - ChangedBy distinguishes the executor path (user) from agent polling

# Task Parameter Bags

Tasks persist their parameters as a JSON-encoded TaskParams value with
exactly one variant populated:

	task := &types.Task{
		Type: types.TaskTypeUpdate,
		Params: types.TaskParams{
			Update: &types.UpdateParams{
				AppIDs:   []int64{12, 13},
				DistrURL: "https://repo/jurws-1.80.0.jar",
				Mode:     types.ModeImmediate,
			},
		},
	}

Consumers switch on the task type and read the matching variant instead of
probing a string map.
*/
package types
