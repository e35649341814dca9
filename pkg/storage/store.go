package storage

import (
	"github.com/corralhq/corral/pkg/types"
)

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	Status     types.TaskStatus
	InstanceID int64
	ServerID   int64
}

// Store defines the interface for control-plane state storage.
// Implemented by the GORM-backed relational store.
type Store interface {
	// Servers
	CreateServer(server *types.Server) error
	GetServer(id int64) (*types.Server, error)
	ListServers() ([]*types.Server, error)

	// Catalog
	CreateCatalogEntry(entry *types.CatalogEntry) error
	GetCatalogEntry(id int64) (*types.CatalogEntry, error)

	// Groups
	CreateGroup(group *types.Group) error
	GetGroup(id int64) (*types.Group, error)

	// Instances
	CreateInstance(instance *types.Instance) error
	GetInstance(id int64) (*types.Instance, error)
	GetInstances(ids []int64) ([]*types.Instance, error)
	ListInstances() ([]*types.Instance, error)
	UpdateInstance(instance *types.Instance) error
	SoftDeleteInstance(id int64) error

	// Tasks
	CreateTask(task *types.Task) error
	CreateTasks(tasks []*types.Task) error
	GetTask(id string) (*types.Task, error)
	UpdateTask(task *types.Task) error
	ListTasks(filter TaskFilter) ([]*types.Task, error)

	// ClaimNextPendingTask atomically transitions the oldest pending,
	// non-cancelled task to processing and stamps started_at. Tasks anchored
	// on a server in excludeServers are skipped. Returns (nil, nil) when no
	// task is claimable.
	ClaimNextPendingTask(excludeServers []int64) (*types.Task, error)

	// FlagTaskCancelled marks a task cancelled iff it is still processing.
	// Returns false when the task already reached a terminal state, so a
	// cancel racing the worker's finish cannot clobber the outcome.
	FlagTaskCancelled(id string) (bool, error)

	// CancelPendingTask atomically cancels a task iff it is still pending
	// and not already cancelled, marking it failed with the given reason.
	// Returns false when the task was not in a cancelable state.
	CancelPendingTask(id string, reason string) (bool, error)

	// FailProcessingTasks fails every task currently in processing with the
	// given error message. Used by the startup recovery pass.
	FailProcessingTasks(reason string) (int64, error)

	CountTasksByStatus() (map[types.TaskStatus]int64, error)

	// Version history
	CreateVersionHistory(entry *types.VersionHistory) error
	ListVersionHistory(instanceID int64) ([]*types.VersionHistory, error)

	// Utility
	Close() error
}
