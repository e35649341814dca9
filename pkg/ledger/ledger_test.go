package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

func TestRecordWritesOnChange(t *testing.T) {
	store := storage.NewTestStore(t)
	l := New(store)

	taskID := "task-1"
	wrote, err := l.Record(1,
		State{Version: "1.0.0", DistrPath: "/opt/app-1.0.0.jar"},
		State{Version: "1.1.0", DistrPath: "/opt/app-1.1.0.jar"},
		types.ActorUser, SourceUpdateTask, &taskID)
	require.NoError(t, err)
	assert.True(t, wrote)

	history, err := l.History(1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1.0.0", history[0].OldVersion)
	assert.Equal(t, "1.1.0", history[0].NewVersion)
	assert.Equal(t, types.ActorUser, history[0].ChangedBy)
	assert.Equal(t, SourceUpdateTask, history[0].ChangeSource)
	require.NotNil(t, history[0].TaskID)
	assert.Equal(t, taskID, *history[0].TaskID)
}

func TestRecordSkipsNoOpTransition(t *testing.T) {
	store := storage.NewTestStore(t)
	l := New(store)

	same := State{Version: "1.0.0", Image: "app", Tag: "stable"}
	wrote, err := l.Record(1, same, same, types.ActorAgent, SourcePolling, nil)
	require.NoError(t, err)
	assert.False(t, wrote)

	history, err := l.History(1)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRecordTagOnlyChange(t *testing.T) {
	store := storage.NewTestStore(t)
	l := New(store)

	wrote, err := l.Record(2,
		State{Image: "registry/app", Tag: "v1"},
		State{Image: "registry/app", Tag: "v2"},
		types.ActorAgent, SourcePolling, nil)
	require.NoError(t, err)
	assert.True(t, wrote)

	history, err := l.History(2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "v1", history[0].OldTag)
	assert.Equal(t, "v2", history[0].NewTag)
	assert.Nil(t, history[0].TaskID)
}

func TestStateOf(t *testing.T) {
	inst := &types.Instance{
		Version:   "2.0.0",
		Image:     "registry/app",
		Tag:       "stable",
		DistrPath: "/opt/app-2.0.0.jar",
	}
	assert.Equal(t, State{
		Version:   "2.0.0",
		Image:     "registry/app",
		Tag:       "stable",
		DistrPath: "/opt/app-2.0.0.jar",
	}, StateOf(inst))
}
