package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/corralhq/corral/pkg/ansible"
	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/events"
	"github.com/corralhq/corral/pkg/ledger"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/metrics"
	"github.com/corralhq/corral/pkg/progress"
	"github.com/corralhq/corral/pkg/queue"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

// Terminal error strings for abnormal endings
const (
	TimeoutReason  = "timed out"
	ShutdownReason = "shutdown"
)

// maxLineLen bounds a single scanned output line
const maxLineLen = 1024 * 1024

// CommandFunc builds the subprocess for a task. Replaced in tests with a fake
// runner.
type CommandFunc func(ctx context.Context, tc *TaskContext) *exec.Cmd

// Executor runs claimed tasks on a fixed pool of workers, each owning at most
// one playbook subprocess.
type Executor struct {
	cfg      config.ExecutorConfig
	queue    *queue.Queue
	store    storage.Store
	ledger   *ledger.Ledger
	bus      *progress.Bus
	broker   *events.Broker
	registry *CancelRegistry
	command  CommandFunc

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates an executor. The default command builder invokes the configured
// playbook binary with the rendered argument list.
func New(cfg config.ExecutorConfig, q *queue.Queue, store storage.Store, l *ledger.Ledger, bus *progress.Bus, broker *events.Broker) *Executor {
	e := &Executor{
		cfg:      cfg,
		queue:    q,
		store:    store,
		ledger:   l,
		bus:      bus,
		broker:   broker,
		registry: NewCancelRegistry(),
	}
	e.command = func(ctx context.Context, tc *TaskContext) *exec.Cmd {
		args := ansible.RenderArgs(tc.InvokedPlaybook(), tc.Vars())
		return exec.CommandContext(ctx, cfg.PlaybookBin, args...)
	}
	return e
}

// Start boots the worker pool
func (e *Executor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	for i := 0; i < e.cfg.WorkerPoolSize; i++ {
		e.wg.Add(1)
		go e.worker(runCtx, i)
	}
	log.WithComponent("executor").Info().
		Int("workers", e.cfg.WorkerPoolSize).
		Msg("worker pool started")
}

// Cancel terminates the running subprocess of a task: SIGTERM immediately,
// SIGKILL after the configured grace. The task is marked cancelled right away
// so readers see the intent before the process dies; the final failed state
// flows through the normal finish path.
func (e *Executor) Cancel(id string) error {
	if _, err := e.store.GetTask(id); err != nil {
		return err
	}
	if !e.registry.Running(id) {
		return fmt.Errorf("task %s has no running process: %w", id, types.ErrConflict)
	}

	// Conditional on status so a process exiting concurrently cannot be
	// clobbered with a stale row
	flagged, err := e.store.FlagTaskCancelled(id)
	if err != nil {
		return err
	}
	if !flagged {
		return fmt.Errorf("task %s already finished: %w", id, types.ErrConflict)
	}
	e.registry.Terminate(id, queue.CancelReason, e.cfg.KillGrace)

	log.WithTaskID(id).Info().Msg("cancellation signal sent")
	return nil
}

// Shutdown stops the pool: no new dequeues, in-flight tasks get until the
// context deadline, then their subprocesses are killed and the tasks fail
// with "shutdown".
func (e *Executor) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	log.WithComponent("executor").Warn().
		Int("remaining", e.registry.Len()).
		Msg("shutdown deadline reached, killing remaining playbooks")
	e.registry.TerminateAll(ShutdownReason, e.cfg.KillGrace)
	<-done
	return ctx.Err()
}

func (e *Executor) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	logger := log.WithComponent("executor")

	backoff := 100 * time.Millisecond
	for {
		task, err := e.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Transient store errors (locked database, connection blips)
			// must not shrink the pool
			logger.Error().Err(err).Int("worker", id).Dur("backoff", backoff).Msg("dequeue failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > 5*time.Second {
				backoff = 5 * time.Second
			}
			continue
		}
		backoff = 100 * time.Millisecond
		e.run(task)
	}
}

func (e *Executor) run(task *types.Task) {
	logger := log.WithTaskID(task.ID)

	if task.Cancelled {
		e.finish(task, queue.Outcome{
			Status:    types.TaskStatusFailed,
			Error:     queue.CancelReason,
			Cancelled: true,
		})
		return
	}

	tc, err := LoadTaskContext(e.store, task)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load task context")
		e.finish(task, queue.Outcome{Status: types.TaskStatusFailed, Error: err.Error()})
		return
	}

	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDurationVec(metrics.PlaybookDuration, string(task.Type)) }()

	procCtx := context.Background()
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(procCtx, e.cfg.TaskTimeout)
		defer cancel()
	}

	cmd := e.command(procCtx, tc)
	// The runner leads its own process group so termination reaches the
	// ansible children it forks, not just the direct child
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		e.finish(task, queue.Outcome{Status: types.TaskStatusFailed, Error: err.Error()})
		return
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		logger.Error().Err(err).Str("playbook", tc.InvokedPlaybook()).Msg("failed to start playbook runner")
		e.finish(task, queue.Outcome{
			Status: types.TaskStatusFailed,
			Error:  fmt.Sprintf("failed to start playbook runner: %v", err),
		})
		return
	}
	pw.Close()

	pid := cmd.Process.Pid
	task.PID = &pid
	e.registry.Register(task.ID, cmd)
	if err := e.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("failed to record pid")
	}
	e.broker.Publish(events.TaskEvent(events.EventTaskStarted, task, "playbook started"))
	e.bus.Begin(task.ID)

	logger.Info().
		Str("playbook", tc.InvokedPlaybook()).
		Str("app_name", tc.AppName).
		Int("pid", pid).
		Msg("playbook started")

	var result strings.Builder
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), maxLineLen)
	for scanner.Scan() {
		line := scanner.Text()
		result.WriteString(line)
		result.WriteByte('\n')
		step, _ := ansible.CurrentTask(line)
		e.bus.Append(task.ID, line, step)
	}
	if err := scanner.Err(); err != nil {
		// Oversized line or read failure: stop capturing but keep draining
		// so the child never blocks on a full pipe
		logger.Warn().Err(err).Msg("output capture truncated")
		_, _ = io.Copy(io.Discard, pr)
	}
	pr.Close()

	waitErr := cmd.Wait()
	e.registry.MarkExited(task.ID)
	reason := e.registry.Reason(task.ID)
	e.registry.Deregister(task.ID)

	outcome := e.outcome(tc, waitErr, reason, procCtx.Err())
	outcome.Result = result.String()

	if outcome.Status == types.TaskStatusCompleted {
		e.recordVersions(tc)
	}
	e.finish(task, outcome)
}

// outcome maps a subprocess exit to the task's terminal state
func (e *Executor) outcome(tc *TaskContext, waitErr error, reason string, ctxErr error) queue.Outcome {
	switch {
	case reason != "":
		return queue.Outcome{
			Status:    types.TaskStatusFailed,
			Error:     reason,
			Cancelled: reason == queue.CancelReason,
		}
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return queue.Outcome{Status: types.TaskStatusFailed, Error: TimeoutReason}
	case waitErr == nil:
		return queue.Outcome{Status: types.TaskStatusCompleted}
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return queue.Outcome{
				Status: types.TaskStatusFailed,
				Error:  fmt.Sprintf("playbook exited with code %d", exitErr.ExitCode()),
			}
		}
		return queue.Outcome{Status: types.TaskStatusFailed, Error: waitErr.Error()}
	}
}

func (e *Executor) finish(task *types.Task, outcome queue.Outcome) {
	logger := log.WithTaskID(task.ID)

	finished, err := e.queue.Finish(task.ID, outcome)
	if err != nil {
		logger.Error().Err(err).Msg("failed to persist task outcome")
		return
	}
	e.bus.Finish(task.ID)

	switch {
	case finished.Cancelled:
		metrics.TasksCancelled.Inc()
		e.broker.Publish(events.TaskEvent(events.EventTaskCancelled, finished, finished.Error))
		logger.Info().Msg("task cancelled")
	case finished.Status == types.TaskStatusCompleted:
		e.broker.Publish(events.TaskEvent(events.EventTaskCompleted, finished, "playbook finished"))
		logger.Info().Msg("task completed")
	default:
		e.broker.Publish(events.TaskEvent(events.EventTaskFailed, finished, finished.Error))
		logger.Warn().Str("error", finished.Error).Msg("task failed")
	}
}

// recordVersions applies the best-effort version transition of a successful
// update to each instance in the batch. Ledger failures are logged, never
// promoted to task failures.
func (e *Executor) recordVersions(tc *TaskContext) {
	up := tc.Task.Params.Update
	if up == nil || up.DistrURL == "" {
		return
	}

	newVersion := ansible.VersionFromDistrURL(up.DistrURL)
	image, tag := "", ""
	if tc.AppType == types.AppTypeDocker {
		image, tag = ImageRef(up.DistrURL)
		if newVersion == "" {
			newVersion = tag
		}
	}

	for _, inst := range tc.Instances {
		old := ledger.StateOf(inst)

		if newVersion != "" {
			inst.Version = newVersion
		}
		if image != "" {
			inst.Image = image
			inst.Tag = tag
		}
		inst.DistrPath = up.DistrURL

		now := ledger.StateOf(inst)
		if now == old {
			continue
		}

		logger := log.WithInstanceID(inst.ID)
		if err := e.store.UpdateInstance(inst); err != nil {
			logger.Error().Err(err).Msg("failed to update instance version")
			continue
		}
		wrote, err := e.ledger.Record(inst.ID, old, now, types.ActorUser, ledger.SourceUpdateTask, &tc.Task.ID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to record version history")
			continue
		}
		if wrote {
			metrics.VersionChanges.Inc()
			e.broker.Publish(events.VersionEvent(inst.ID, old.Version, now.Version))
		}
	}
}
