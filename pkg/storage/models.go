package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corralhq/corral/pkg/types"
)

// ServerModel represents the servers table
type ServerModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;unique;not null"`
	Address   string    `gorm:"column:address;not null"`
	SSHPort   int       `gorm:"column:ssh_port;default:22"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (ServerModel) TableName() string {
	return "servers"
}

// CatalogEntryModel represents the catalog table
type CatalogEntryModel struct {
	ID                  int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name                string    `gorm:"column:name;unique;not null"`
	DefaultPlaybookPath string    `gorm:"column:default_playbook_path"`
	DefaultArtifactURL  string    `gorm:"column:default_artifact_url"`
	DefaultArtifactExt  string    `gorm:"column:default_artifact_ext"`
	CreatedAt           time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (CatalogEntryModel) TableName() string {
	return "catalog_entries"
}

// GroupModel represents the groups table
type GroupModel struct {
	ID                    int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name                  string    `gorm:"column:name;unique;not null"`
	CatalogID             *int64    `gorm:"column:catalog_id"`
	ArtifactListURL       string    `gorm:"column:artifact_list_url"`
	ArtifactExtension     string    `gorm:"column:artifact_extension"`
	UpdatePlaybookPath    string    `gorm:"column:update_playbook_path"`
	BatchGroupingStrategy string    `gorm:"column:batch_grouping_strategy;not null;default:'by_group'"`
	CreatedAt             time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (GroupModel) TableName() string {
	return "instance_groups"
}

// InstanceModel represents the instances table.
// The (server_id, instance_name, app_type) identity is unique among
// non-deleted rows; CreateInstance enforces this because a partial unique
// index cannot be expressed portably across sqlite and postgres.
type InstanceModel struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement"`
	InstanceName       string     `gorm:"column:instance_name;not null;index:idx_instance_identity"`
	InstanceNumber     int        `gorm:"column:instance_number"`
	AppType            string     `gorm:"column:app_type;not null;index:idx_instance_identity"`
	ServerID           int64      `gorm:"column:server_id;not null;index:idx_instance_identity"`
	CatalogID          *int64     `gorm:"column:catalog_id"`
	GroupID            *int64     `gorm:"column:group_id"`
	Status             string     `gorm:"column:status;not null;default:'no_data'"`
	Version            string     `gorm:"column:version"`
	Image              string     `gorm:"column:image"`
	Tag                string     `gorm:"column:tag"`
	IP                 string     `gorm:"column:ip"`
	Port               int        `gorm:"column:port"`
	DistrPath          string     `gorm:"column:distr_path"`
	CustomPlaybookPath string     `gorm:"column:custom_playbook_path"`
	CustomArtifactURL  string     `gorm:"column:custom_artifact_url"`
	CustomArtifactExt  string     `gorm:"column:custom_artifact_ext"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null;autoUpdateTime"`
	DeletedAt          *time.Time `gorm:"column:deleted_at;index"`
}

func (InstanceModel) TableName() string {
	return "instances"
}

// TaskModel represents the tasks table. Params is the JSON-encoded bag.
type TaskModel struct {
	ID          string     `gorm:"column:id;primaryKey;not null"`
	TaskType    string     `gorm:"column:task_type;not null"`
	Status      string     `gorm:"column:status;not null;index"`
	Params      string     `gorm:"column:params;type:text;not null"`
	ServerID    *int64     `gorm:"column:server_id;index"`
	InstanceID  int64      `gorm:"column:instance_id;index"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;index"`
	StartedAt   *time.Time `gorm:"column:started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	Result      string     `gorm:"column:result;type:text"`
	Error       string     `gorm:"column:error"`
	Progress    string     `gorm:"column:progress"`
	PID         *int       `gorm:"column:pid"`
	Cancelled   bool       `gorm:"column:cancelled;not null;default:false"`
}

func (TaskModel) TableName() string {
	return "tasks"
}

// VersionHistoryModel represents the version_history table
type VersionHistoryModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	InstanceID   int64     `gorm:"column:instance_id;not null;index"`
	OldVersion   string    `gorm:"column:old_version"`
	NewVersion   string    `gorm:"column:new_version;not null"`
	OldTag       string    `gorm:"column:old_tag"`
	NewTag       string    `gorm:"column:new_tag"`
	OldImage     string    `gorm:"column:old_image"`
	NewImage     string    `gorm:"column:new_image"`
	OldDistrPath string    `gorm:"column:old_distr_path"`
	NewDistrPath string    `gorm:"column:new_distr_path"`
	ChangedAt    time.Time `gorm:"column:changed_at;not null;index"`
	ChangedBy    string    `gorm:"column:changed_by;not null"`
	ChangeSource string    `gorm:"column:change_source"`
	TaskID       *string   `gorm:"column:task_id;index"`
}

func (VersionHistoryModel) TableName() string {
	return "version_history"
}

// Model <-> domain converters

func serverToModel(s *types.Server) *ServerModel {
	return &ServerModel{ID: s.ID, Name: s.Name, Address: s.Address, SSHPort: s.SSHPort, CreatedAt: s.CreatedAt}
}

func serverToDomain(m *ServerModel) *types.Server {
	return &types.Server{ID: m.ID, Name: m.Name, Address: m.Address, SSHPort: m.SSHPort, CreatedAt: m.CreatedAt}
}

func catalogToModel(e *types.CatalogEntry) *CatalogEntryModel {
	return &CatalogEntryModel{
		ID:                  e.ID,
		Name:                e.Name,
		DefaultPlaybookPath: e.DefaultPlaybookPath,
		DefaultArtifactURL:  e.DefaultArtifactURL,
		DefaultArtifactExt:  e.DefaultArtifactExt,
		CreatedAt:           e.CreatedAt,
	}
}

func catalogToDomain(m *CatalogEntryModel) *types.CatalogEntry {
	return &types.CatalogEntry{
		ID:                  m.ID,
		Name:                m.Name,
		DefaultPlaybookPath: m.DefaultPlaybookPath,
		DefaultArtifactURL:  m.DefaultArtifactURL,
		DefaultArtifactExt:  m.DefaultArtifactExt,
		CreatedAt:           m.CreatedAt,
	}
}

func groupToModel(g *types.Group) *GroupModel {
	return &GroupModel{
		ID:                    g.ID,
		Name:                  g.Name,
		CatalogID:             g.CatalogID,
		ArtifactListURL:       g.ArtifactListURL,
		ArtifactExtension:     g.ArtifactExtension,
		UpdatePlaybookPath:    g.UpdatePlaybookPath,
		BatchGroupingStrategy: string(g.BatchGroupingStrategy),
		CreatedAt:             g.CreatedAt,
	}
}

func groupToDomain(m *GroupModel) *types.Group {
	return &types.Group{
		ID:                    m.ID,
		Name:                  m.Name,
		CatalogID:             m.CatalogID,
		ArtifactListURL:       m.ArtifactListURL,
		ArtifactExtension:     m.ArtifactExtension,
		UpdatePlaybookPath:    m.UpdatePlaybookPath,
		BatchGroupingStrategy: types.GroupingStrategy(m.BatchGroupingStrategy),
		CreatedAt:             m.CreatedAt,
	}
}

func instanceToModel(i *types.Instance) *InstanceModel {
	return &InstanceModel{
		ID:                 i.ID,
		InstanceName:       i.InstanceName,
		InstanceNumber:     i.InstanceNumber,
		AppType:            string(i.AppType),
		ServerID:           i.ServerID,
		CatalogID:          i.CatalogID,
		GroupID:            i.GroupID,
		Status:             string(i.Status),
		Version:            i.Version,
		Image:              i.Image,
		Tag:                i.Tag,
		IP:                 i.IP,
		Port:               i.Port,
		DistrPath:          i.DistrPath,
		CustomPlaybookPath: i.CustomPlaybookPath,
		CustomArtifactURL:  i.CustomArtifactURL,
		CustomArtifactExt:  i.CustomArtifactExt,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
		DeletedAt:          i.DeletedAt,
	}
}

func instanceToDomain(m *InstanceModel) *types.Instance {
	return &types.Instance{
		ID:                 m.ID,
		InstanceName:       m.InstanceName,
		InstanceNumber:     m.InstanceNumber,
		AppType:            types.AppType(m.AppType),
		ServerID:           m.ServerID,
		CatalogID:          m.CatalogID,
		GroupID:            m.GroupID,
		Status:             types.InstanceStatus(m.Status),
		Version:            m.Version,
		Image:              m.Image,
		Tag:                m.Tag,
		IP:                 m.IP,
		Port:               m.Port,
		DistrPath:          m.DistrPath,
		CustomPlaybookPath: m.CustomPlaybookPath,
		CustomArtifactURL:  m.CustomArtifactURL,
		CustomArtifactExt:  m.CustomArtifactExt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		DeletedAt:          m.DeletedAt,
	}
}

func taskToModel(t *types.Task) (*TaskModel, error) {
	params, err := json.Marshal(&t.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task params: %w", err)
	}
	return &TaskModel{
		ID:          t.ID,
		TaskType:    string(t.Type),
		Status:      string(t.Status),
		Params:      string(params),
		ServerID:    t.ServerID,
		InstanceID:  t.InstanceID,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
		Result:      t.Result,
		Error:       t.Error,
		Progress:    t.Progress,
		PID:         t.PID,
		Cancelled:   t.Cancelled,
	}, nil
}

func taskToDomain(m *TaskModel) (*types.Task, error) {
	var params types.TaskParams
	if m.Params != "" {
		if err := json.Unmarshal([]byte(m.Params), &params); err != nil {
			return nil, fmt.Errorf("failed to decode params of task %s: %w", m.ID, err)
		}
	}
	return &types.Task{
		ID:          m.ID,
		Type:        types.TaskType(m.TaskType),
		Status:      types.TaskStatus(m.Status),
		Params:      params,
		ServerID:    m.ServerID,
		InstanceID:  m.InstanceID,
		CreatedAt:   m.CreatedAt,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Result:      m.Result,
		Error:       m.Error,
		Progress:    m.Progress,
		PID:         m.PID,
		Cancelled:   m.Cancelled,
	}, nil
}

func historyToModel(h *types.VersionHistory) *VersionHistoryModel {
	return &VersionHistoryModel{
		ID:           h.ID,
		InstanceID:   h.InstanceID,
		OldVersion:   h.OldVersion,
		NewVersion:   h.NewVersion,
		OldTag:       h.OldTag,
		NewTag:       h.NewTag,
		OldImage:     h.OldImage,
		NewImage:     h.NewImage,
		OldDistrPath: h.OldDistrPath,
		NewDistrPath: h.NewDistrPath,
		ChangedAt:    h.ChangedAt,
		ChangedBy:    string(h.ChangedBy),
		ChangeSource: h.ChangeSource,
		TaskID:       h.TaskID,
	}
}

func historyToDomain(m *VersionHistoryModel) *types.VersionHistory {
	return &types.VersionHistory{
		ID:           m.ID,
		InstanceID:   m.InstanceID,
		OldVersion:   m.OldVersion,
		NewVersion:   m.NewVersion,
		OldTag:       m.OldTag,
		NewTag:       m.NewTag,
		OldImage:     m.OldImage,
		NewImage:     m.NewImage,
		OldDistrPath: m.OldDistrPath,
		NewDistrPath: m.NewDistrPath,
		ChangedAt:    m.ChangedAt,
		ChangedBy:    types.Actor(m.ChangedBy),
		ChangeSource: m.ChangeSource,
		TaskID:       m.TaskID,
	}
}
