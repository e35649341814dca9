package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

// TaskContext is the read-only bundle a worker needs to run one task: the
// task row, the batch instances, the anchor server, and derived fields. It is
// loaded once at dispatch and never mutated.
type TaskContext struct {
	Task      *types.Task
	Instances []*types.Instance
	Server    *types.Server

	AppName      string // comma-joined instance names
	AppType      types.AppType
	IsBatch      bool
	PlaybookPath string
	Orchestrator string // "" when not orchestrated
}

// LoadTaskContext builds the context for a claimed task. Fails with
// types.ErrValidation when an update task is missing distr_url or a playbook
// path, and with types.ErrNotFound when referenced rows are gone.
func LoadTaskContext(store storage.Store, task *types.Task) (*TaskContext, error) {
	ids := task.Params.AppIDs()
	if len(ids) == 0 {
		ids = []int64{task.InstanceID}
	}
	instances, err := store.GetInstances(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load task instances: %w", err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("task %s references no instances: %w", task.ID, types.ErrNotFound)
	}

	tc := &TaskContext{
		Task:         task,
		Instances:    instances,
		AppName:      types.JoinInstanceNames(instances),
		AppType:      instances[0].AppType,
		IsBatch:      len(instances) > 1,
		PlaybookPath: task.Params.PlaybookPath(),
	}

	if task.ServerID != nil {
		server, err := store.GetServer(*task.ServerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load task server: %w", err)
		}
		tc.Server = server
	}

	if tc.PlaybookPath == "" {
		return nil, fmt.Errorf("task %s has no playbook path: %w", task.ID, types.ErrValidation)
	}
	if up := task.Params.Update; up != nil {
		if up.Orchestrated() {
			tc.Orchestrator = up.OrchestratorPlaybook
		}
		if up.DistrURL == "" && up.Mode != types.ModeNightRestart {
			return nil, fmt.Errorf("task %s has no distr_url: %w", task.ID, types.ErrValidation)
		}
	}
	return tc, nil
}

// InvokedPlaybook returns the playbook the runner executes: the orchestrator
// playbook when one drives the rollout, the resolved playbook otherwise.
func (tc *TaskContext) InvokedPlaybook() string {
	if tc.Orchestrator != "" {
		return tc.Orchestrator
	}
	return tc.PlaybookPath
}

// Vars renders the extra variables passed to the playbook runner
func (tc *TaskContext) Vars() map[string]string {
	vars := map[string]string{
		"app_name": tc.AppName,
		"app_type": string(tc.AppType),
	}
	if tc.Server != nil {
		vars["server_name"] = tc.Server.Name
	}

	switch {
	case tc.Task.Params.Update != nil:
		up := tc.Task.Params.Update
		if up.DistrURL != "" {
			vars["distr_url"] = up.DistrURL
		}
		if tc.Orchestrator != "" {
			// The orchestrator playbook delegates per-app work to the
			// resolved playbook and paces the rollout itself.
			vars["app_playbook"] = tc.PlaybookPath
			if up.DrainWaitTime > 0 {
				vars["drain_wait_time"] = strconv.Itoa(up.DrainWaitTime)
			}
		}
	case tc.Task.Params.Action != nil:
		vars["action"] = string(tc.Task.Params.Action.Action)
	}
	return vars
}

// ImageRef splits a docker artifact reference "repo/name:tag" into image and
// tag. A reference without a tag yields an empty tag.
func ImageRef(ref string) (image, tag string) {
	i := strings.LastIndex(ref, ":")
	// A colon before the last slash belongs to a registry port
	if i < strings.LastIndex(ref, "/") || i < 0 {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}
