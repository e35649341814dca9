package types

import (
	"regexp"
	"strings"
	"time"
)

// AppType classifies how an instance is run and managed on its server
type AppType string

const (
	AppTypeDocker  AppType = "docker"
	AppTypeEureka  AppType = "eureka"
	AppTypeSite    AppType = "site"
	AppTypeService AppType = "service"
	AppTypeSMF     AppType = "smf"
	AppTypeSysctl  AppType = "sysctl"
)

// InstanceStatus represents the last observed state of an instance
type InstanceStatus string

const (
	InstanceStatusOnline   InstanceStatus = "online"
	InstanceStatusOffline  InstanceStatus = "offline"
	InstanceStatusUnknown  InstanceStatus = "unknown"
	InstanceStatusStarting InstanceStatus = "starting"
	InstanceStatusStopping InstanceStatus = "stopping"
	InstanceStatusNoData   InstanceStatus = "no_data"
)

// Server represents a host that instances live on
type Server struct {
	ID        int64
	Name      string
	Address   string
	SSHPort   int
	CreatedAt time.Time
}

// CatalogEntry holds shared defaults for a logical application.
// Many instances and groups may reference the same entry.
type CatalogEntry struct {
	ID                   int64
	Name                 string
	DefaultPlaybookPath  string
	DefaultArtifactURL   string
	DefaultArtifactExt   string
	CreatedAt            time.Time
}

// GroupingStrategy controls how a batch submission fans out into tasks
type GroupingStrategy string

const (
	GroupByGroup        GroupingStrategy = "by_group"
	GroupByServer       GroupingStrategy = "by_server"
	GroupByInstanceName GroupingStrategy = "by_instance_name"
	GroupNone           GroupingStrategy = "no_grouping"
)

// Group is a rollout cohort carrying batching defaults
type Group struct {
	ID                    int64
	Name                  string
	CatalogID             *int64
	ArtifactListURL       string
	ArtifactExtension     string
	UpdatePlaybookPath    string
	BatchGroupingStrategy GroupingStrategy
	CreatedAt             time.Time
}

// Instance is a concrete running application on a specific server.
// (ServerID, InstanceName, AppType) is unique among non-deleted rows.
type Instance struct {
	ID             int64
	InstanceName   string
	InstanceNumber int
	AppType        AppType
	ServerID       int64
	CatalogID      *int64
	GroupID        *int64
	Status         InstanceStatus
	Version        string
	Image          string
	Tag            string
	IP             string
	Port           int
	DistrPath      string

	// Per-instance overrides for catalog/group defaults
	CustomPlaybookPath string
	CustomArtifactURL  string
	CustomArtifactExt  string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

var baseNameSuffix = regexp.MustCompile(`_\d+$`)

// BaseName returns the instance name with a trailing _<digits> suffix removed,
// e.g. "jurws_1" -> "jurws".
func (i *Instance) BaseName() string {
	return baseNameSuffix.ReplaceAllString(i.InstanceName, "")
}

// Deleted reports whether the instance has been soft-deleted
func (i *Instance) Deleted() bool {
	return i.DeletedAt != nil
}

// TaskType identifies the operation a task performs
type TaskType string

const (
	TaskTypeUpdate  TaskType = "update"
	TaskTypeStart   TaskType = "start"
	TaskTypeStop    TaskType = "stop"
	TaskTypeRestart TaskType = "restart"
)

// TaskStatus represents the state of a task. Status only ever advances
// pending -> processing -> completed|failed.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is a final state
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// UpdateMode controls when and how an update is applied
type UpdateMode string

const (
	ModeImmediate    UpdateMode = "immediate"
	ModeDeliver      UpdateMode = "deliver"
	ModeNightRestart UpdateMode = "night-restart"
)

// OrchestratorNone disables orchestrator-driven rollout when used as the
// orchestrator playbook name.
const OrchestratorNone = "none"

// UpdateParams carries the parameters of an update task
type UpdateParams struct {
	AppIDs               []int64    `json:"app_ids"`
	DistrURL             string     `json:"distr_url"`
	Mode                 UpdateMode `json:"mode"`
	PlaybookPath         string     `json:"playbook_path"`
	OrchestratorPlaybook string     `json:"orchestrator_playbook,omitempty"`
	DrainWaitTime        int        `json:"drain_wait_time,omitempty"`
}

// Orchestrated reports whether an orchestrator playbook drives the rollout
func (p *UpdateParams) Orchestrated() bool {
	return p.OrchestratorPlaybook != "" && p.OrchestratorPlaybook != OrchestratorNone
}

// ActionParams carries the parameters of a start/stop/restart task
type ActionParams struct {
	AppIDs       []int64  `json:"app_ids"`
	Action       TaskType `json:"action"`
	PlaybookPath string   `json:"playbook_path"`
}

// TaskParams is the parameter bag persisted with a task. Exactly one variant
// is populated, matching the task type, so consumers can pattern-match rather
// than string-probe the bag.
type TaskParams struct {
	Update *UpdateParams `json:"update,omitempty"`
	Action *ActionParams `json:"action,omitempty"`
}

// AppIDs returns the instance IDs covered by the task regardless of variant
func (p *TaskParams) AppIDs() []int64 {
	switch {
	case p.Update != nil:
		return p.Update.AppIDs
	case p.Action != nil:
		return p.Action.AppIDs
	}
	return nil
}

// PlaybookPath returns the resolved playbook path regardless of variant
func (p *TaskParams) PlaybookPath() string {
	switch {
	case p.Update != nil:
		return p.Update.PlaybookPath
	case p.Action != nil:
		return p.Action.PlaybookPath
	}
	return ""
}

// Task is the durable record of one playbook invocation against one or more
// instances. InstanceID anchors the batch to its first instance.
type Task struct {
	ID          string
	Type        TaskType
	Status      TaskStatus
	Params      TaskParams
	ServerID    *int64
	InstanceID  int64
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      string
	Error       string
	Progress    string
	PID         *int
	Cancelled   bool
}

// Actor identifies who caused a version transition
type Actor string

const (
	ActorUser   Actor = "user"
	ActorAgent  Actor = "agent"
	ActorSystem Actor = "system"
)

// VersionHistory is an append-only ledger row recording an observed version
// transition of an instance. At least one new-side field differs from its
// old-side counterpart.
type VersionHistory struct {
	ID           int64
	InstanceID   int64
	OldVersion   string
	NewVersion   string
	OldTag       string
	NewTag       string
	OldImage     string
	NewImage     string
	OldDistrPath string
	NewDistrPath string
	ChangedAt    time.Time
	ChangedBy    Actor
	ChangeSource string
	TaskID       *string
}

// JoinInstanceNames returns the comma-joined names of a batch, used as the
// app_name playbook variable.
func JoinInstanceNames(instances []*Instance) string {
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.InstanceName
	}
	return strings.Join(names, ",")
}
