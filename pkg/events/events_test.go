package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corralhq/corral/pkg/types"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	first := broker.Subscribe()
	second := broker.Subscribe()
	defer broker.Unsubscribe(first)
	defer broker.Unsubscribe(second)

	broker.Publish(&Event{Type: EventTaskCreated, Message: "queued"})

	for _, sub := range []Subscriber{first, second} {
		select {
		case event := <-sub:
			assert.Equal(t, EventTaskCreated, event.Type)
			assert.False(t, event.Timestamp.IsZero())
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestTaskEventMetadata(t *testing.T) {
	serverID := int64(7)
	task := &types.Task{
		ID:       "task-1",
		Type:     types.TaskTypeUpdate,
		Status:   types.TaskStatusCompleted,
		ServerID: &serverID,
	}

	event := TaskEvent(EventTaskCompleted, task, "playbook finished")
	assert.Equal(t, EventTaskCompleted, event.Type)
	assert.Equal(t, "task-1", event.Metadata["task_id"])
	assert.Equal(t, "update", event.Metadata["task_type"])
	assert.Equal(t, "completed", event.Metadata["status"])
	assert.Equal(t, "7", event.Metadata["server_id"])
}

func TestVersionEvent(t *testing.T) {
	event := VersionEvent(12, "1.0.0", "1.1.0")
	assert.Equal(t, EventVersionChanged, event.Type)
	assert.Equal(t, "12", event.Metadata["instance_id"])
	assert.Equal(t, "1.0.0", event.Metadata["old_version"])
	assert.Equal(t, "1.1.0", event.Metadata["new_version"])
}
