package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/ledger"
	"github.com/corralhq/corral/pkg/queue"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

type fixture struct {
	coord *Coordinator
	store storage.Store

	serverA *types.Server
	serverB *types.Server
	group   *types.Group
	app1    *types.Instance // service on serverA, in group
	app2    *types.Instance // service on serverB, in group
	docker  *types.Instance // docker on serverB, ungrouped
}

// newFixture builds a coordinator with no workers: tasks stay pending, which
// is what the submission and cancellation paths under test need.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewTestStore(t)
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	cfg.Executor.WorkerPoolSize = 0

	f := &fixture{coord: New(cfg, store), store: store}

	f.serverA = &types.Server{Name: "srv_a"}
	f.serverB = &types.Server{Name: "srv_b"}
	require.NoError(t, store.CreateServer(f.serverA))
	require.NoError(t, store.CreateServer(f.serverB))

	f.group = &types.Group{Name: "rollout", BatchGroupingStrategy: types.GroupByServer}
	require.NoError(t, store.CreateGroup(f.group))

	f.app1 = &types.Instance{InstanceName: "app_1", AppType: types.AppTypeService, ServerID: f.serverA.ID, GroupID: &f.group.ID}
	f.app2 = &types.Instance{InstanceName: "app_2", AppType: types.AppTypeService, ServerID: f.serverB.ID, GroupID: &f.group.ID}
	f.docker = &types.Instance{InstanceName: "cache", AppType: types.AppTypeDocker, ServerID: f.serverB.ID}
	require.NoError(t, store.CreateInstance(f.app1))
	require.NoError(t, store.CreateInstance(f.app2))
	require.NoError(t, store.CreateInstance(f.docker))

	return f
}

func (f *fixture) startAndStop(t *testing.T) {
	t.Helper()
	require.NoError(t, f.coord.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.coord.Shutdown(ctx)
	})
}

func TestStartRecoversInterruptedTasks(t *testing.T) {
	f := newFixture(t)

	now := time.Now()
	interrupted := &types.Task{
		ID:         "stuck-1",
		Type:       types.TaskTypeUpdate,
		Status:     types.TaskStatusProcessing,
		InstanceID: f.app1.ID,
		CreatedAt:  now,
		StartedAt:  &now,
		Params: types.TaskParams{
			Update: &types.UpdateParams{AppIDs: []int64{f.app1.ID}, DistrURL: "https://repo/app-1.0.0.jar", Mode: types.ModeImmediate, PlaybookPath: "update.yml"},
		},
	}
	require.NoError(t, f.store.CreateTask(interrupted))

	f.startAndStop(t)

	task, err := f.store.GetTask("stuck-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, queue.RecoveryReason, task.Error)
	require.NotNil(t, task.CompletedAt)

	// No ledger rows reference the interrupted task
	history, err := f.store.ListVersionHistory(f.app1.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSubmitUpdateCreatesPendingTask(t *testing.T) {
	f := newFixture(t)

	id, err := f.coord.SubmitUpdate(f.app1.ID, UpdateRequest{
		DistrURL: "https://repo/app-1.1.0.jar",
		Mode:     types.ModeImmediate,
	})
	require.NoError(t, err)

	task, err := f.store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, types.TaskTypeUpdate, task.Type)
	assert.Equal(t, f.app1.ID, task.InstanceID)
	require.NotNil(t, task.Params.Update)
	assert.Equal(t, "https://repo/app-1.1.0.jar", task.Params.Update.DistrURL)
	assert.Equal(t, "playbooks/update.yml", task.Params.Update.PlaybookPath)
}

func TestSubmitBatchUpdateGroupsByServer(t *testing.T) {
	f := newFixture(t)

	result, err := f.coord.SubmitBatchUpdate(BatchUpdateRequest{
		AppIDs:   []int64{f.app1.ID, f.app2.ID},
		DistrURL: "https://repo/app-1.1.0.jar",
		Mode:     types.ModeImmediate,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.GroupsCount)
	assert.Len(t, result.TaskIDs, 2)

	tasks, err := f.coord.ListTasks(storage.TaskFilter{Status: types.TaskStatusPending})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestSubmitBatchUpdateOrchestratorCollapses(t *testing.T) {
	f := newFixture(t)

	result, err := f.coord.SubmitBatchUpdate(BatchUpdateRequest{
		AppIDs:               []int64{f.app1.ID, f.app2.ID},
		DistrURL:             "https://repo/app-1.1.0.jar",
		Mode:                 types.ModeImmediate,
		OrchestratorPlaybook: "orchestrate.yml",
		DrainWaitTime:        30,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.GroupsCount)

	task, err := f.store.GetTask(result.TaskIDs[0])
	require.NoError(t, err)
	require.NotNil(t, task.Params.Update)
	assert.Equal(t, []int64{f.app1.ID, f.app2.ID}, task.Params.Update.AppIDs)
	assert.Equal(t, "orchestrate.yml", task.Params.Update.OrchestratorPlaybook)
	assert.Equal(t, 30, task.Params.Update.DrainWaitTime)
}

func TestSubmitBatchUpdateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.SubmitBatchUpdate(BatchUpdateRequest{DistrURL: "x", Mode: types.ModeImmediate})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = f.coord.SubmitBatchUpdate(BatchUpdateRequest{AppIDs: []int64{f.app1.ID}, Mode: types.ModeImmediate})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = f.coord.SubmitBatchUpdate(BatchUpdateRequest{AppIDs: []int64{f.app1.ID}, DistrURL: "x", Mode: "yearly"})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = f.coord.SubmitBatchUpdate(BatchUpdateRequest{AppIDs: []int64{9999}, DistrURL: "x", Mode: types.ModeImmediate})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSubmitNightRestartRejectedForDocker(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.SubmitBatchUpdate(BatchUpdateRequest{
		AppIDs: []int64{f.docker.ID, f.app1.ID},
		Mode:   types.ModeNightRestart,
	})
	assert.ErrorIs(t, err, types.ErrValidation)

	// Nothing persisted
	tasks, err := f.coord.ListTasks(storage.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestSubmitAction(t *testing.T) {
	f := newFixture(t)

	id, err := f.coord.SubmitAction(f.app1.ID, types.TaskTypeRestart)
	require.NoError(t, err)

	task, err := f.store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskTypeRestart, task.Type)
	require.NotNil(t, task.Params.Action)
	assert.Equal(t, types.TaskTypeRestart, task.Params.Action.Action)
	assert.Equal(t, "playbooks/action.yml", task.Params.Action.PlaybookPath)

	_, err = f.coord.SubmitAction(f.app1.ID, types.TaskTypeUpdate)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSubmitBulkActionReportsPerInstance(t *testing.T) {
	f := newFixture(t)

	results, err := f.coord.SubmitBulkAction([]int64{f.app1.ID, 9999}, types.TaskTypeStop)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NotEmpty(t, results[0].TaskID)
	assert.Empty(t, results[0].Error)
	assert.Empty(t, results[1].TaskID)
	assert.NotEmpty(t, results[1].Error)
}

func TestCancelTaskPending(t *testing.T) {
	f := newFixture(t)

	id, err := f.coord.SubmitUpdate(f.app1.ID, UpdateRequest{DistrURL: "https://repo/app-1.1.0.jar", Mode: types.ModeImmediate})
	require.NoError(t, err)

	require.NoError(t, f.coord.CancelTask(id))

	task, err := f.store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.True(t, task.Cancelled)
	assert.Equal(t, queue.CancelReason, task.Error)
	assert.Nil(t, task.StartedAt)

	// Double cancel is a diagnostic conflict
	err = f.coord.CancelTask(id)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestGetTaskParsesOutput(t *testing.T) {
	f := newFixture(t)

	result := "TASK [deploy] ***\n" +
		"ok: [srv_a]\n" +
		"\n" +
		"TASK [Display update summary] ***\n" +
		"ok: [srv_a] => {\n" +
		"    \"msg\": \"updated app_1 to 1.1.0\"\n" +
		"}\n" +
		"\n" +
		"PLAY RECAP *********************************************************************\n" +
		"srv_a                      : ok=4    changed=2    unreachable=0    failed=0\n"

	now := time.Now()
	done := now.Add(time.Minute)
	task := &types.Task{
		ID:          "done-1",
		Type:        types.TaskTypeUpdate,
		Status:      types.TaskStatusCompleted,
		InstanceID:  f.app1.ID,
		CreatedAt:   now,
		StartedAt:   &now,
		CompletedAt: &done,
		Result:      result,
		Params: types.TaskParams{
			Update: &types.UpdateParams{AppIDs: []int64{f.app1.ID}, DistrURL: "x", Mode: types.ModeImmediate, PlaybookPath: "update.yml"},
		},
	}
	require.NoError(t, f.store.CreateTask(task))

	detail, err := f.coord.GetTask("done-1")
	require.NoError(t, err)
	require.Len(t, detail.Recap, 1)
	assert.Equal(t, "srv_a", detail.Recap[0].Host)
	assert.Equal(t, 4, detail.Recap[0].OK)
	assert.Equal(t, 2, detail.Recap[0].Changed)
	require.Len(t, detail.Summaries, 1)
	assert.Equal(t, "updated app_1 to 1.1.0", detail.Summaries[0])
}

func TestObserveInstanceRecordsDrift(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.ObserveInstance(f.app1.ID, Observation{
		Version: "1.2.0",
		Status:  types.InstanceStatusOnline,
	}))

	inst, err := f.store.GetInstance(f.app1.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", inst.Version)
	assert.Equal(t, types.InstanceStatusOnline, inst.Status)

	history, err := f.coord.ListVersionHistory(f.app1.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ActorAgent, history[0].ChangedBy)
	assert.Equal(t, ledger.SourcePolling, history[0].ChangeSource)
	assert.Nil(t, history[0].TaskID)

	// Re-observing the same version writes nothing
	require.NoError(t, f.coord.ObserveInstance(f.app1.ID, Observation{Version: "1.2.0"}))
	history, err = f.coord.ListVersionHistory(f.app1.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
