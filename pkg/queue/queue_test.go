package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

func newTestQueue(t *testing.T, opts Options) (*Queue, storage.Store) {
	t.Helper()
	store := storage.NewTestStore(t)
	return New(store, opts), store
}

func updateTask(instanceID int64, serverID int64) *types.Task {
	sid := serverID
	return &types.Task{
		Type:       types.TaskTypeUpdate,
		InstanceID: instanceID,
		ServerID:   &sid,
		Params: types.TaskParams{
			Update: &types.UpdateParams{
				AppIDs:       []int64{instanceID},
				DistrURL:     "https://repo/app-1.0.0.jar",
				Mode:         types.ModeImmediate,
				PlaybookPath: "playbooks/update.yml",
			},
		},
	}
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	// A single batch must dequeue in submission order, not in the random
	// order of its generated IDs
	batch := make([]*types.Task, 8)
	for i := range batch {
		batch[i] = updateTask(int64(i+1), int64(10+i))
	}
	ids, err := q.Enqueue(batch)
	require.NoError(t, err)
	require.Len(t, ids, len(batch))

	ctx := context.Background()
	for i, want := range ids {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID, "position %d", i)
		assert.Equal(t, types.TaskStatusProcessing, got.Status)
		require.NotNil(t, got.StartedAt)
	}
}

func TestEnqueueRejectsEmptyBatch(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	_, err := q.Enqueue(nil)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q, _ := newTestQueue(t, Options{PollInterval: time.Minute})

	done := make(chan *types.Task, 1)
	go func() {
		task, err := q.Dequeue(context.Background())
		if err == nil {
			done <- task
		}
	}()

	select {
	case <-done:
		t.Fatal("dequeue returned before any task was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10)})
	require.NoError(t, err)

	select {
	case task := <-done:
		assert.Equal(t, ids[0], task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func TestDequeueHonorsContextCancel(t *testing.T) {
	q, _ := newTestQueue(t, Options{PollInterval: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not observe context cancellation")
	}
}

func TestCancelPending(t *testing.T) {
	q, store := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10)})
	require.NoError(t, err)

	require.NoError(t, q.CancelPending(ids[0]))

	task, err := store.GetTask(ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.True(t, task.Cancelled)
	assert.Equal(t, CancelReason, task.Error)
	assert.Empty(t, task.Result)
	assert.Nil(t, task.StartedAt)
	require.NotNil(t, task.CompletedAt)
}

func TestCancelledTaskIsNeverDispatched(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10), updateTask(2, 20)})
	require.NoError(t, err)
	require.NoError(t, q.CancelPending(ids[0]))

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[1], task.ID)
}

func TestCancelPendingConflicts(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10)})
	require.NoError(t, err)

	require.NoError(t, q.CancelPending(ids[0]))
	err = q.CancelPending(ids[0])
	assert.ErrorIs(t, err, types.ErrConflict)

	ids, err = q.Enqueue([]*types.Task{updateTask(2, 20)})
	require.NoError(t, err)
	_, err = q.Dequeue(context.Background())
	require.NoError(t, err)

	err = q.CancelPending(ids[0])
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestFinishRecordsOutcome(t *testing.T) {
	q, store := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10)})
	require.NoError(t, err)
	claimed, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	pid := 4242
	claimed.PID = &pid
	require.NoError(t, store.UpdateTask(claimed))

	finished, err := q.Finish(ids[0], Outcome{
		Status: types.TaskStatusCompleted,
		Result: "PLAY RECAP",
	})
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusCompleted, finished.Status)
	assert.Equal(t, "PLAY RECAP", finished.Result)
	assert.Nil(t, finished.PID)
	require.NotNil(t, finished.CompletedAt)
	assert.False(t, finished.Cancelled)
}

func TestFinishCancelledMarksTask(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10)})
	require.NoError(t, err)
	_, err = q.Dequeue(context.Background())
	require.NoError(t, err)

	finished, err := q.Finish(ids[0], Outcome{
		Status:    types.TaskStatusFailed,
		Error:     CancelReason,
		Cancelled: true,
	})
	require.NoError(t, err)
	assert.True(t, finished.Cancelled)
	assert.Equal(t, types.TaskStatusFailed, finished.Status)
}

func TestRecoverInterrupted(t *testing.T) {
	q, store := newTestQueue(t, Options{})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10), updateTask(2, 20)})
	require.NoError(t, err)
	_, err = q.Dequeue(context.Background())
	require.NoError(t, err)

	n, err := q.RecoverInterrupted()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	task, err := store.GetTask(ids[0])
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, RecoveryReason, task.Error)

	// The untouched pending task is still dispatchable
	task, err = q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ids[1], task.ID)
}

func TestSerializePerServer(t *testing.T) {
	q, _ := newTestQueue(t, Options{SerializePerServer: true, PollInterval: 20 * time.Millisecond})

	ids, err := q.Enqueue([]*types.Task{updateTask(1, 10), updateTask(2, 10), updateTask(3, 20)})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], first.ID)

	// Server 10 is busy, so the next claim skips to server 20
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], second.ID)

	// Releasing server 10 makes its second task claimable
	_, err = q.Finish(first.ID, Outcome{Status: types.TaskStatusCompleted})
	require.NoError(t, err)

	third, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[1], third.ID)
}

func TestDepth(t *testing.T) {
	q, _ := newTestQueue(t, Options{})

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Zero(t, depth)

	_, err = q.Enqueue([]*types.Task{updateTask(1, 10), updateTask(2, 20)})
	require.NoError(t, err)

	depth, err = q.Depth()
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	_, err = q.Dequeue(context.Background())
	require.NoError(t, err)

	depth, err = q.Depth()
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}
