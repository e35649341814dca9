package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/corralhq/corral/pkg/types"
)

// Config holds the system-wide playbook path defaults used as the last tier
// of playbook resolution.
type Config struct {
	DefaultUpdatePlaybook string
	NightRestartPlaybook  string
	DockerUpdatePlaybook  string
	ActionPlaybook        string
}

// Params are the common parameters of a batch submission
type Params struct {
	DistrURL             string
	Mode                 types.UpdateMode
	OrchestratorPlaybook string
	DrainWaitTime        int

	// PlaybookOverride is an explicit per-request playbook path that wins
	// over every resolution tier except the night-restart override.
	PlaybookOverride string
}

// Orchestrated reports whether an orchestrator playbook drives the rollout,
// which removes the server component from grouping keys.
func (p Params) Orchestrated() bool {
	return p.OrchestratorPlaybook != "" && p.OrchestratorPlaybook != types.OrchestratorNone
}

// Input is the reference data the planner resolves against. The planner
// never touches the store; the coordinator loads rows and passes them in.
type Input struct {
	Instances []*types.Instance
	Groups    map[int64]*types.Group
	Catalogs  map[int64]*types.CatalogEntry
}

// PlanItem is one task yet to be persisted: a set of instances that run as a
// single playbook invocation. ServerID is the server of the first instance.
type PlanItem struct {
	InstanceIDs  []int64
	PlaybookPath string
	ServerID     int64
}

// Plan fans a batch submission into plan items according to each instance's
// group strategy. It is pure and deterministic: the same inputs produce the
// same items in first-seen key order.
//
// Fails with types.ErrNotFound when a requested ID has no instance, and with
// types.ErrValidation when mode is night-restart and the batch contains a
// docker instance.
func Plan(requested []int64, in Input, params Params, cfg Config) ([]PlanItem, error) {
	byID := make(map[int64]*types.Instance, len(in.Instances))
	for _, inst := range in.Instances {
		byID[inst.ID] = inst
	}

	instances := make([]*types.Instance, 0, len(requested))
	for _, id := range requested {
		inst, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("instance %d: %w", id, types.ErrNotFound)
		}
		if params.Mode == types.ModeNightRestart && inst.AppType == types.AppTypeDocker {
			return nil, fmt.Errorf("night-restart is not supported for docker instance %q: %w",
				inst.InstanceName, types.ErrValidation)
		}
		instances = append(instances, inst)
	}

	var items []PlanItem
	index := make(map[string]int)

	for _, inst := range instances {
		playbook := resolvePlaybook(inst, in, params, cfg)
		key := groupingKey(inst, in, params, playbook)

		if i, ok := index[key]; ok {
			items[i].InstanceIDs = append(items[i].InstanceIDs, inst.ID)
			continue
		}
		index[key] = len(items)
		items = append(items, PlanItem{
			InstanceIDs:  []int64{inst.ID},
			PlaybookPath: playbook,
			ServerID:     inst.ServerID,
		})
	}
	return items, nil
}

// resolvePlaybook picks the effective playbook path for one instance:
// instance custom, then group, then catalog, then the system default. A
// night-restart submission overrides the whole chain.
func resolvePlaybook(inst *types.Instance, in Input, params Params, cfg Config) string {
	if params.Mode == types.ModeNightRestart {
		return cfg.NightRestartPlaybook
	}
	if params.PlaybookOverride != "" {
		return params.PlaybookOverride
	}
	if inst.CustomPlaybookPath != "" {
		return inst.CustomPlaybookPath
	}
	if inst.GroupID != nil {
		if g, ok := in.Groups[*inst.GroupID]; ok && g.UpdatePlaybookPath != "" {
			return g.UpdatePlaybookPath
		}
	}
	if inst.CatalogID != nil {
		if c, ok := in.Catalogs[*inst.CatalogID]; ok && c.DefaultPlaybookPath != "" {
			return c.DefaultPlaybookPath
		}
	}
	if inst.AppType == types.AppTypeDocker {
		return cfg.DockerUpdatePlaybook
	}
	return cfg.DefaultUpdatePlaybook
}

// ResolveActionPlaybook picks the playbook for a start/stop/restart task.
// Actions share one playbook parameterized by action and app_type variables;
// instance and group customizations still win.
func ResolveActionPlaybook(inst *types.Instance, group *types.Group, cfg Config) string {
	if inst.CustomPlaybookPath != "" {
		return inst.CustomPlaybookPath
	}
	if group != nil && group.UpdatePlaybookPath != "" {
		return group.UpdatePlaybookPath
	}
	return cfg.ActionPlaybook
}

// groupingKey computes the batch key for an instance under its group's
// strategy. An orchestrator-driven rollout removes the server component so
// instances across servers collapse into one invocation.
func groupingKey(inst *types.Instance, in Input, params Params, playbook string) string {
	strategy := types.GroupByGroup
	var groupID int64
	if inst.GroupID != nil {
		groupID = *inst.GroupID
		if g, ok := in.Groups[groupID]; ok && g.BatchGroupingStrategy != "" {
			strategy = g.BatchGroupingStrategy
		}
	}

	parts := []string{string(strategy)}
	server := strconv.FormatInt(inst.ServerID, 10)

	switch strategy {
	case types.GroupByServer:
		if params.Orchestrated() {
			parts = append(parts, playbook)
		} else {
			parts = append(parts, server, playbook)
		}
	case types.GroupByInstanceName:
		if params.Orchestrated() {
			parts = append(parts, playbook, inst.BaseName())
		} else {
			parts = append(parts, server, playbook, inst.BaseName())
		}
	case types.GroupNone:
		parts = append(parts, strconv.FormatInt(inst.ID, 10))
	default: // by_group
		g := strconv.FormatInt(groupID, 10)
		if params.Orchestrated() {
			parts = append(parts, playbook, g)
		} else {
			parts = append(parts, server, playbook, g)
		}
	}
	return strings.Join(parts, "\x00")
}
