package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/corralhq/corral/pkg/ansible"
	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/executor"
	"github.com/corralhq/corral/pkg/ledger"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/planner"
	"github.com/corralhq/corral/pkg/progress"
	"github.com/corralhq/corral/pkg/queue"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

// Coordinator wires the store, queue, executor, progress bus, ledger and
// event broker together and owns their lifecycle.
type Coordinator struct {
	cfg        *config.Config
	store      storage.Store
	queue      *queue.Queue
	executor   *executor.Executor
	bus        *progress.Bus
	broker     *events.Broker
	ledger     *ledger.Ledger
	collector  *metrics.Collector
	plannerCfg planner.Config
}

// New assembles a coordinator over the given store
func New(cfg *config.Config, store storage.Store) *Coordinator {
	q := queue.New(store, queue.Options{SerializePerServer: cfg.Executor.SerializePerServer})
	bus := progress.NewBus(cfg.Executor.ProgressRetention)
	broker := events.NewBroker()
	l := ledger.New(store)

	return &Coordinator{
		cfg:       cfg,
		store:     store,
		queue:     q,
		executor:  executor.New(cfg.Executor, q, store, l, bus, broker),
		bus:       bus,
		broker:    broker,
		ledger:    l,
		collector: metrics.NewCollector(store),
		plannerCfg: planner.Config{
			DefaultUpdatePlaybook: cfg.Playbooks.DefaultUpdate,
			NightRestartPlaybook:  cfg.Playbooks.NightRestart,
			DockerUpdatePlaybook:  cfg.Playbooks.DockerUpdate,
			ActionPlaybook:        cfg.Playbooks.Action,
		},
	}
}

// Broker exposes the event broker for API streaming
func (c *Coordinator) Broker() *events.Broker {
	return c.broker
}

// Store exposes the backing store for read endpoints
func (c *Coordinator) Store() storage.Store {
	return c.store
}

// Start runs the recovery pass and boots the pool and background loops.
// Tasks left processing by a previous run fail loudly rather than re-run:
// a partially executed playbook cannot be assumed idempotent.
func (c *Coordinator) Start(ctx context.Context) error {
	logger := log.WithComponent("coordinator")

	recovered, err := c.queue.RecoverInterrupted()
	if err != nil {
		return fmt.Errorf("recovery pass failed: %w", err)
	}
	if recovered > 0 {
		logger.Warn().Int64("tasks", recovered).Msg("recovered interrupted tasks")
	}

	c.broker.Start()
	c.bus.Start()
	c.collector.Start()
	c.executor.Start(ctx)

	metrics.RegisterComponent("coordinator", true, "")
	logger.Info().Msg("coordinator started")
	return nil
}

// Shutdown stops intake and drains the pool up to the context deadline;
// tasks still running afterwards are killed and fail with "shutdown".
func (c *Coordinator) Shutdown(ctx context.Context) error {
	err := c.executor.Shutdown(ctx)
	c.collector.Stop()
	c.bus.Stop()
	c.broker.Stop()
	metrics.UpdateComponent("coordinator", false, "stopped")
	log.WithComponent("coordinator").Info().Msg("coordinator stopped")
	return err
}

// UpdateRequest is a single-instance update submission
type UpdateRequest struct {
	DistrURL     string
	ImageName    string
	Mode         types.UpdateMode
	PlaybookPath string
}

// BatchUpdateRequest is a multi-instance update submission
type BatchUpdateRequest struct {
	AppIDs               []int64
	DistrURL             string
	Mode                 types.UpdateMode
	OrchestratorPlaybook string
	DrainWaitTime        int
	PlaybookPath         string
}

// BatchResult reports the fan-out of a batch submission
type BatchResult struct {
	TaskIDs     []string
	GroupsCount int
}

// SubmitUpdate plans and enqueues an update for one instance
func (c *Coordinator) SubmitUpdate(instanceID int64, req UpdateRequest) (string, error) {
	distrURL := req.DistrURL
	if distrURL == "" {
		distrURL = req.ImageName
	}
	result, err := c.SubmitBatchUpdate(BatchUpdateRequest{
		AppIDs:       []int64{instanceID},
		DistrURL:     distrURL,
		Mode:         req.Mode,
		PlaybookPath: req.PlaybookPath,
	})
	if err != nil {
		return "", err
	}
	return result.TaskIDs[0], nil
}

// SubmitBatchUpdate plans a batch submission and enqueues one task per plan
// item. Validation failures surface synchronously and persist nothing.
func (c *Coordinator) SubmitBatchUpdate(req BatchUpdateRequest) (*BatchResult, error) {
	if len(req.AppIDs) == 0 {
		return nil, fmt.Errorf("app_ids is empty: %w", types.ErrValidation)
	}
	if req.Mode == "" {
		req.Mode = types.ModeImmediate
	}
	switch req.Mode {
	case types.ModeImmediate, types.ModeDeliver, types.ModeNightRestart:
	default:
		return nil, fmt.Errorf("unknown mode %q: %w", req.Mode, types.ErrValidation)
	}
	if req.DistrURL == "" && req.Mode != types.ModeNightRestart {
		return nil, fmt.Errorf("distr_url is required: %w", types.ErrValidation)
	}

	in, err := c.loadPlanInput(req.AppIDs)
	if err != nil {
		return nil, err
	}
	params := planner.Params{
		DistrURL:             req.DistrURL,
		Mode:                 req.Mode,
		OrchestratorPlaybook: req.OrchestratorPlaybook,
		DrainWaitTime:        req.DrainWaitTime,
		PlaybookOverride:     req.PlaybookPath,
	}
	items, err := planner.Plan(req.AppIDs, in, params, c.plannerCfg)
	if err != nil {
		return nil, err
	}

	tasks := make([]*types.Task, len(items))
	for i, item := range items {
		serverID := item.ServerID
		tasks[i] = &types.Task{
			Type:       types.TaskTypeUpdate,
			InstanceID: item.InstanceIDs[0],
			ServerID:   &serverID,
			Params: types.TaskParams{
				Update: &types.UpdateParams{
					AppIDs:               item.InstanceIDs,
					DistrURL:             req.DistrURL,
					Mode:                 req.Mode,
					PlaybookPath:         item.PlaybookPath,
					OrchestratorPlaybook: req.OrchestratorPlaybook,
					DrainWaitTime:        req.DrainWaitTime,
				},
			},
		}
	}

	ids, err := c.queue.Enqueue(tasks)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		c.broker.Publish(events.TaskEvent(events.EventTaskCreated, task, "task enqueued"))
	}
	return &BatchResult{TaskIDs: ids, GroupsCount: len(items)}, nil
}

// SubmitAction enqueues a start/stop/restart task for one instance
func (c *Coordinator) SubmitAction(instanceID int64, action types.TaskType) (string, error) {
	switch action {
	case types.TaskTypeStart, types.TaskTypeStop, types.TaskTypeRestart:
	default:
		return "", fmt.Errorf("unknown action %q: %w", action, types.ErrValidation)
	}

	inst, err := c.store.GetInstance(instanceID)
	if err != nil {
		return "", err
	}
	var group *types.Group
	if inst.GroupID != nil {
		if group, err = c.store.GetGroup(*inst.GroupID); err != nil {
			return "", err
		}
	}

	serverID := inst.ServerID
	task := &types.Task{
		Type:       action,
		InstanceID: inst.ID,
		ServerID:   &serverID,
		Params: types.TaskParams{
			Action: &types.ActionParams{
				AppIDs:       []int64{inst.ID},
				Action:       action,
				PlaybookPath: planner.ResolveActionPlaybook(inst, group, c.plannerCfg),
			},
		},
	}

	ids, err := c.queue.Enqueue([]*types.Task{task})
	if err != nil {
		return "", err
	}
	c.broker.Publish(events.TaskEvent(events.EventTaskCreated, task, "task enqueued"))
	return ids[0], nil
}

// ActionResult is the per-instance outcome of a bulk action submission
type ActionResult struct {
	InstanceID int64
	TaskID     string
	Error      string
}

// SubmitBulkAction submits one action task per instance. Failures are
// reported per instance; one bad ID does not sink the rest.
func (c *Coordinator) SubmitBulkAction(appIDs []int64, action types.TaskType) ([]ActionResult, error) {
	if len(appIDs) == 0 {
		return nil, fmt.Errorf("app_ids is empty: %w", types.ErrValidation)
	}

	results := make([]ActionResult, len(appIDs))
	for i, id := range appIDs {
		results[i].InstanceID = id
		taskID, err := c.SubmitAction(id, action)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}
		results[i].TaskID = taskID
	}
	return results, nil
}

// TaskDetail is a task enriched with live progress and parsed output
type TaskDetail struct {
	Task        *types.Task
	CurrentStep string
	Recap       []ansible.RecapLine
	Summaries   []string
}

// ListTasks returns tasks matching the filter
func (c *Coordinator) ListTasks(filter storage.TaskFilter) ([]*types.Task, error) {
	return c.store.ListTasks(filter)
}

// GetTask returns a task with its live current step while processing and the
// parsed recap and display summaries once output is captured.
func (c *Coordinator) GetTask(id string) (*TaskDetail, error) {
	task, err := c.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	detail := &TaskDetail{Task: task}
	if task.Status == types.TaskStatusProcessing {
		detail.CurrentStep = c.bus.CurrentStep(task.ID)
	}
	if task.Result != "" {
		detail.Recap = ansible.ParsePlayRecap(task.Result)
		detail.Summaries = ansible.ParseDisplaySummaries(task.Result)
	}
	return detail, nil
}

// CancelTask cancels a task in any non-terminal state: the pending path marks
// it failed immediately, the in-flight path signals the subprocess.
func (c *Coordinator) CancelTask(id string) error {
	err := c.queue.CancelPending(id)
	if err == nil {
		metrics.TasksCancelled.Inc()
		task, getErr := c.store.GetTask(id)
		if getErr == nil {
			c.broker.Publish(events.TaskEvent(events.EventTaskCancelled, task, queue.CancelReason))
		}
		return nil
	}
	if errors.Is(err, types.ErrConflict) {
		task, getErr := c.store.GetTask(id)
		if getErr != nil {
			return getErr
		}
		if task.Status == types.TaskStatusProcessing && !task.Cancelled {
			return c.executor.Cancel(id)
		}
	}
	return err
}

// ListVersionHistory returns the recorded transitions of an instance
func (c *Coordinator) ListVersionHistory(instanceID int64) ([]*types.VersionHistory, error) {
	return c.ledger.History(instanceID)
}

// Observation is an agent-reported view of an instance's running version
type Observation struct {
	Version string
	Image   string
	Tag     string
	Status  types.InstanceStatus
}

// ObserveInstance records an inventory observation: when the reported
// version drifts from the stored one, the instance is updated and the
// transition lands in the ledger with changed_by=agent.
func (c *Coordinator) ObserveInstance(instanceID int64, obs Observation) error {
	inst, err := c.store.GetInstance(instanceID)
	if err != nil {
		return err
	}

	old := ledger.StateOf(inst)
	if obs.Version != "" {
		inst.Version = obs.Version
	}
	if obs.Image != "" {
		inst.Image = obs.Image
	}
	if obs.Tag != "" {
		inst.Tag = obs.Tag
	}
	if obs.Status != "" {
		inst.Status = obs.Status
	}

	if err := c.store.UpdateInstance(inst); err != nil {
		return err
	}

	now := ledger.StateOf(inst)
	wrote, err := c.ledger.Record(inst.ID, old, now, types.ActorAgent, ledger.SourcePolling, nil)
	if err != nil {
		return err
	}
	if wrote {
		metrics.VersionChanges.Inc()
		c.broker.Publish(events.VersionEvent(inst.ID, old.Version, now.Version))
	}
	return nil
}

// loadPlanInput loads the reference rows the planner resolves against
func (c *Coordinator) loadPlanInput(ids []int64) (planner.Input, error) {
	instances, err := c.store.GetInstances(ids)
	if err != nil {
		return planner.Input{}, err
	}

	in := planner.Input{
		Instances: instances,
		Groups:    make(map[int64]*types.Group),
		Catalogs:  make(map[int64]*types.CatalogEntry),
	}
	for _, inst := range instances {
		if inst.GroupID != nil {
			if _, ok := in.Groups[*inst.GroupID]; !ok {
				group, err := c.store.GetGroup(*inst.GroupID)
				if err != nil {
					return planner.Input{}, err
				}
				in.Groups[group.ID] = group
			}
		}
		if inst.CatalogID != nil {
			if _, ok := in.Catalogs[*inst.CatalogID]; !ok {
				entry, err := c.store.GetCatalogEntry(*inst.CatalogID)
				if err != nil {
					return planner.Input{}, err
				}
				in.Catalogs[entry.ID] = entry
			}
		}
	}
	return in, nil
}
