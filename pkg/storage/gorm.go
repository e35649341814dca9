package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/types"
)

// GormStore implements Store using GORM over sqlite or postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens a database connection per the configuration and returns
// the backing store. The schema must already exist (see AutoMigrate and
// cmd/corral-migrate).
func NewGormStore(cfg *config.DatabaseConfig) (*GormStore, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "postgres":
		dsn := cfg.URL
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		}
		dialector = postgres.Open(dsn)

	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &GormStore{db: db}, nil
}

// AutoMigrate creates or updates the schema for all models
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&ServerModel{},
		&CatalogEntryModel{},
		&GroupModel{},
		&InstanceModel{},
		&TaskModel{},
		&VersionHistoryModel{},
	)
}

// Close closes the underlying database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Server operations

func (s *GormStore) CreateServer(server *types.Server) error {
	model := serverToModel(server)
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	server.ID = model.ID
	server.CreatedAt = model.CreatedAt
	return nil
}

func (s *GormStore) GetServer(id int64) (*types.Server, error) {
	var model ServerModel
	if err := s.db.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("server %d: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get server: %w", err)
	}
	return serverToDomain(&model), nil
}

func (s *GormStore) ListServers() ([]*types.Server, error) {
	var models []ServerModel
	if err := s.db.Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	servers := make([]*types.Server, len(models))
	for i := range models {
		servers[i] = serverToDomain(&models[i])
	}
	return servers, nil
}

// Catalog operations

func (s *GormStore) CreateCatalogEntry(entry *types.CatalogEntry) error {
	model := catalogToModel(entry)
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create catalog entry: %w", err)
	}
	entry.ID = model.ID
	return nil
}

func (s *GormStore) GetCatalogEntry(id int64) (*types.CatalogEntry, error) {
	var model CatalogEntryModel
	if err := s.db.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("catalog entry %d: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get catalog entry: %w", err)
	}
	return catalogToDomain(&model), nil
}

// Group operations

func (s *GormStore) CreateGroup(group *types.Group) error {
	model := groupToModel(group)
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	group.ID = model.ID
	return nil
}

func (s *GormStore) GetGroup(id int64) (*types.Group, error) {
	var model GroupModel
	if err := s.db.First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %d: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return groupToDomain(&model), nil
}

// Instance operations

func (s *GormStore) CreateInstance(instance *types.Instance) error {
	// Enforce identity uniqueness among non-deleted rows
	var count int64
	err := s.db.Model(&InstanceModel{}).
		Where("server_id = ? AND instance_name = ? AND app_type = ? AND deleted_at IS NULL",
			instance.ServerID, instance.InstanceName, instance.AppType).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to check instance identity: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("instance %q (server %d, %s) already exists: %w",
			instance.InstanceName, instance.ServerID, instance.AppType, types.ErrConflict)
	}

	model := instanceToModel(instance)
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	instance.ID = model.ID
	instance.CreatedAt = model.CreatedAt
	instance.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *GormStore) GetInstance(id int64) (*types.Instance, error) {
	var model InstanceModel
	err := s.db.Where("id = ? AND deleted_at IS NULL", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("instance %d: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return instanceToDomain(&model), nil
}

// GetInstances returns the non-deleted instances with the given IDs,
// preserving the order of ids. Missing IDs are simply absent from the result;
// callers decide whether that is an error.
func (s *GormStore) GetInstances(ids []int64) ([]*types.Instance, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []InstanceModel
	err := s.db.Where("id IN ? AND deleted_at IS NULL", ids).Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get instances: %w", err)
	}
	byID := make(map[int64]*types.Instance, len(models))
	for i := range models {
		byID[models[i].ID] = instanceToDomain(&models[i])
	}
	instances := make([]*types.Instance, 0, len(models))
	for _, id := range ids {
		if inst, ok := byID[id]; ok {
			instances = append(instances, inst)
		}
	}
	return instances, nil
}

func (s *GormStore) ListInstances() ([]*types.Instance, error) {
	var models []InstanceModel
	err := s.db.Where("deleted_at IS NULL").Order("instance_name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	instances := make([]*types.Instance, len(models))
	for i := range models {
		instances[i] = instanceToDomain(&models[i])
	}
	return instances, nil
}

func (s *GormStore) UpdateInstance(instance *types.Instance) error {
	model := instanceToModel(instance)
	if err := s.db.Save(model).Error; err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	instance.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *GormStore) SoftDeleteInstance(id int64) error {
	now := time.Now()
	res := s.db.Model(&InstanceModel{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to delete instance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("instance %d: %w", id, types.ErrNotFound)
	}
	return nil
}

// Task operations

func (s *GormStore) CreateTask(task *types.Task) error {
	model, err := taskToModel(task)
	if err != nil {
		return err
	}
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// CreateTasks persists a batch of tasks in a single transaction
func (s *GormStore) CreateTasks(tasks []*types.Task) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, task := range tasks {
			model, err := taskToModel(task)
			if err != nil {
				return err
			}
			if err := tx.Create(model).Error; err != nil {
				return fmt.Errorf("failed to create task %s: %w", task.ID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) GetTask(id string) (*types.Task, error) {
	var model TaskModel
	if err := s.db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return taskToDomain(&model)
}

func (s *GormStore) UpdateTask(task *types.Task) error {
	model, err := taskToModel(task)
	if err != nil {
		return err
	}
	if err := s.db.Save(model).Error; err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (s *GormStore) ListTasks(filter TaskFilter) ([]*types.Task, error) {
	q := s.db.Model(&TaskModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.InstanceID != 0 {
		q = q.Where("instance_id = ?", filter.InstanceID)
	}
	if filter.ServerID != 0 {
		q = q.Where("server_id = ?", filter.ServerID)
	}

	var models []TaskModel
	if err := q.Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks := make([]*types.Task, len(models))
	for i := range models {
		t, err := taskToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}

func (s *GormStore) ClaimNextPendingTask(excludeServers []int64) (*types.Task, error) {
	var claimed *types.Task
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model TaskModel
		q := tx.Where("status = ? AND cancelled = ?", string(types.TaskStatusPending), false)
		if len(excludeServers) > 0 {
			q = q.Where("server_id IS NULL OR server_id NOT IN ?", excludeServers)
		}
		err := q.Order("created_at ASC, id ASC").First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query pending tasks: %w", err)
		}

		now := time.Now()
		// Conditional update guards against a concurrent claimer; losing the
		// race is not an error, the caller just retries on the next wake.
		res := tx.Model(&TaskModel{}).
			Where("id = ? AND status = ?", model.ID, string(types.TaskStatusPending)).
			Updates(map[string]interface{}{
				"status":     string(types.TaskStatusProcessing),
				"started_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to claim task %s: %w", model.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		model.Status = string(types.TaskStatusProcessing)
		model.StartedAt = &now
		task, err := taskToDomain(&model)
		if err != nil {
			return err
		}
		claimed = task
		return nil
	})
	return claimed, err
}

func (s *GormStore) FlagTaskCancelled(id string) (bool, error) {
	res := s.db.Model(&TaskModel{}).
		Where("id = ? AND status = ?", id, string(types.TaskStatusProcessing)).
		Update("cancelled", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to flag task %s cancelled: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CancelPendingTask(id string, reason string) (bool, error) {
	now := time.Now()
	res := s.db.Model(&TaskModel{}).
		Where("id = ? AND status = ? AND cancelled = ?", id, string(types.TaskStatusPending), false).
		Updates(map[string]interface{}{
			"cancelled":    true,
			"status":       string(types.TaskStatusFailed),
			"error":        reason,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel task %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) FailProcessingTasks(reason string) (int64, error) {
	now := time.Now()
	res := s.db.Model(&TaskModel{}).
		Where("status = ?", string(types.TaskStatusProcessing)).
		Updates(map[string]interface{}{
			"status":       string(types.TaskStatusFailed),
			"error":        reason,
			"completed_at": now,
			"pid":          nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail processing tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) CountTasksByStatus() (map[types.TaskStatus]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&TaskModel{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	counts := make(map[types.TaskStatus]int64, len(rows))
	for _, r := range rows {
		counts[types.TaskStatus(r.Status)] = r.N
	}
	return counts, nil
}

// Version history operations

func (s *GormStore) CreateVersionHistory(entry *types.VersionHistory) error {
	model := historyToModel(entry)
	if err := s.db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create version history: %w", err)
	}
	entry.ID = model.ID
	return nil
}

func (s *GormStore) ListVersionHistory(instanceID int64) ([]*types.VersionHistory, error) {
	var models []VersionHistoryModel
	err := s.db.Where("instance_id = ?", instanceID).
		Order("changed_at DESC, id DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list version history: %w", err)
	}
	entries := make([]*types.VersionHistory, len(models))
	for i := range models {
		entries[i] = historyToDomain(&models[i])
	}
	return entries, nil
}
