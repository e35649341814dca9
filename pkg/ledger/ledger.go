package ledger

import (
	"time"

	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

// Change sources recorded on ledger rows
const (
	SourceUpdateTask = "update_task"
	SourcePolling    = "polling"
)

// State is the version-bearing slice of an instance
type State struct {
	Version   string
	Image     string
	Tag       string
	DistrPath string
}

// StateOf extracts the ledger-relevant fields of an instance
func StateOf(inst *types.Instance) State {
	return State{
		Version:   inst.Version,
		Image:     inst.Image,
		Tag:       inst.Tag,
		DistrPath: inst.DistrPath,
	}
}

// Ledger appends version transitions to the history table
type Ledger struct {
	store storage.Store
}

// New creates a ledger over the given store
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Record appends one history row for the transition old -> new. A transition
// where no field changed writes nothing and returns (false, nil).
func (l *Ledger) Record(instanceID int64, old, new State, actor types.Actor, source string, taskID *string) (bool, error) {
	if old == new {
		return false, nil
	}

	entry := &types.VersionHistory{
		InstanceID:   instanceID,
		OldVersion:   old.Version,
		NewVersion:   new.Version,
		OldImage:     old.Image,
		NewImage:     new.Image,
		OldTag:       old.Tag,
		NewTag:       new.Tag,
		OldDistrPath: old.DistrPath,
		NewDistrPath: new.DistrPath,
		ChangedAt:    time.Now(),
		ChangedBy:    actor,
		ChangeSource: source,
		TaskID:       taskID,
	}
	if err := l.store.CreateVersionHistory(entry); err != nil {
		return false, err
	}
	return true, nil
}

// History returns the recorded transitions of an instance, oldest first
func (l *Ledger) History(instanceID int64) ([]*types.VersionHistory, error) {
	return l.store.ListVersionHistory(instanceID)
}
