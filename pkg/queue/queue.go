package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

// CancelReason is the error recorded on tasks cancelled before dispatch
const CancelReason = "cancelled by user"

// RecoveryReason is the error recorded on tasks found processing at boot
const RecoveryReason = "interrupted by restart"

// Options tunes queue behavior
type Options struct {
	// SerializePerServer makes Dequeue skip tasks whose server already has
	// an in-flight task. Off by default: the pool size is the only throttle.
	SerializePerServer bool

	// PollInterval bounds how stale a missed wake can make the queue. The
	// store remains the source of truth; the wake channel is a latency
	// optimization only.
	PollInterval time.Duration
}

// Queue is the durable FIFO of pending tasks, backed by the Store with an
// in-memory wake channel.
type Queue struct {
	store storage.Store
	opts  Options
	wake  chan struct{}

	mu   sync.Mutex
	held map[int64]int // server id -> in-flight task count
}

// New creates a task queue over the given store
func New(store storage.Store, opts Options) *Queue {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Queue{
		store: store,
		opts:  opts,
		wake:  make(chan struct{}, 1),
		held:  make(map[int64]int),
	}
}

// Outcome is the terminal result of an executed task
type Outcome struct {
	Status    types.TaskStatus // completed or failed
	Result    string           // captured stdout
	Error     string           // one-line failure description
	Cancelled bool
}

// Enqueue persists a planned batch of tasks atomically and wakes a waiting
// worker. Tasks are stamped pending with a fresh ID and creation time when
// the caller left them unset.
func (q *Queue) Enqueue(tasks []*types.Task) ([]string, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks to enqueue: %w", types.ErrValidation)
	}

	now := time.Now()
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		task.Status = types.TaskStatusPending
		if task.CreatedAt.IsZero() {
			// Strictly increasing stamps keep intra-batch FIFO order; the
			// id tiebreak alone is random UUIDs
			task.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		ids[i] = task.ID
	}

	if err := q.store.CreateTasks(tasks); err != nil {
		return nil, err
	}

	q.signal()

	queueLog := log.WithComponent("queue")
	queueLog.Info().Int("tasks", len(tasks)).Msg("tasks enqueued")
	return ids, nil
}

// Dequeue blocks until a pending task can be claimed or ctx is cancelled.
// Claiming is atomic in the store: the task comes back in processing with
// started_at stamped. Spurious wakes simply re-query.
func (q *Queue) Dequeue(ctx context.Context) (*types.Task, error) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		task, err := q.store.ClaimNextPendingTask(q.heldServers())
		if err != nil {
			return nil, err
		}
		if task != nil {
			q.hold(task)
			return task, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		case <-ticker.C:
		}
	}
}

// CancelPending cancels a task that has not been dispatched yet. Returns
// ErrConflict with a diagnostic when the task is past pending.
func (q *Queue) CancelPending(id string) error {
	ok, err := q.store.CancelPendingTask(id, CancelReason)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	task, err := q.store.GetTask(id)
	if err != nil {
		return err
	}
	switch {
	case task.Cancelled:
		return fmt.Errorf("task %s is already cancelled: %w", id, types.ErrConflict)
	case task.Status == types.TaskStatusProcessing:
		return fmt.Errorf("task %s is already processing: %w", id, types.ErrConflict)
	default:
		return fmt.Errorf("task %s already finished (%s): %w", id, task.Status, types.ErrConflict)
	}
}

// Finish records the terminal state of a dispatched task and releases its
// server hold. This is the single linearization point for completed/failed.
func (q *Queue) Finish(id string, outcome Outcome) (*types.Task, error) {
	task, err := q.store.GetTask(id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task.Status = outcome.Status
	task.Result = outcome.Result
	task.Error = outcome.Error
	task.CompletedAt = &now
	task.PID = nil
	if outcome.Cancelled {
		task.Cancelled = true
	}

	if err := q.store.UpdateTask(task); err != nil {
		return nil, err
	}

	q.release(task)
	q.signal()
	return task, nil
}

// RecoverInterrupted fails every task left in processing by a previous run.
// Playbook partial execution cannot be assumed idempotent, so the policy is
// to fail loudly rather than re-queue.
func (q *Queue) RecoverInterrupted() (int64, error) {
	n, err := q.store.FailProcessingTasks(RecoveryReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithComponent("queue").Warn().
			Int64("tasks", n).
			Msg("failed tasks interrupted by restart")
	}
	return n, nil
}

// Depth returns the number of pending tasks
func (q *Queue) Depth() (int64, error) {
	counts, err := q.store.CountTasksByStatus()
	if err != nil {
		return 0, err
	}
	return counts[types.TaskStatusPending], nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) hold(task *types.Task) {
	if !q.opts.SerializePerServer || task.ServerID == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.held[*task.ServerID]++
}

func (q *Queue) release(task *types.Task) {
	if !q.opts.SerializePerServer || task.ServerID == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.held[*task.ServerID] <= 1 {
		delete(q.held, *task.ServerID)
	} else {
		q.held[*task.ServerID]--
	}
}

func (q *Queue) heldServers() []int64 {
	if !q.opts.SerializePerServer {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	servers := make([]int64, 0, len(q.held))
	for id := range q.held {
		servers = append(servers, id)
	}
	return servers
}
