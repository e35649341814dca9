package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/corralhq/corral/pkg/coordinator"
	"github.com/corralhq/corral/pkg/log"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

var validate = validator.New()

type updateRequest struct {
	DistrURL     string `json:"distr_url"`
	ImageName    string `json:"image_name"`
	Mode         string `json:"mode" validate:"omitempty,oneof=immediate deliver night-restart"`
	PlaybookPath string `json:"playbook_path"`
}

type batchUpdateRequest struct {
	AppIDs               []int64 `json:"app_ids" validate:"required,min=1"`
	DistrURL             string  `json:"distr_url"`
	Mode                 string  `json:"mode" validate:"omitempty,oneof=immediate deliver night-restart"`
	OrchestratorPlaybook string  `json:"orchestrator_playbook"`
	DrainWaitTime        int     `json:"drain_wait_time" validate:"gte=0"`
	PlaybookPath         string  `json:"playbook_path"`
}

type actionRequest struct {
	Action string `json:"action" validate:"required,oneof=start stop restart"`
}

type bulkActionRequest struct {
	AppIDs []int64 `json:"app_ids" validate:"required,min=1"`
	Action string  `json:"action" validate:"required,oneof=start stop restart"`
}

type observeRequest struct {
	Version string `json:"version"`
	Image   string `json:"image"`
	Tag     string `json:"tag"`
	Status  string `json:"status" validate:"omitempty,oneof=online offline unknown starting stopping no_data"`
}

func (s *Server) handleSubmitUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	taskID, err := s.coord.SubmitUpdate(id, coordinator.UpdateRequest{
		DistrURL:     req.DistrURL,
		ImageName:    req.ImageName,
		Mode:         types.UpdateMode(req.Mode),
		PlaybookPath: req.PlaybookPath,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleSubmitBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var req batchUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.coord.SubmitBatchUpdate(coordinator.BatchUpdateRequest{
		AppIDs:               req.AppIDs,
		DistrURL:             req.DistrURL,
		Mode:                 types.UpdateMode(req.Mode),
		OrchestratorPlaybook: req.OrchestratorPlaybook,
		DrainWaitTime:        req.DrainWaitTime,
		PlaybookPath:         req.PlaybookPath,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_ids":     result.TaskIDs,
		"groups_count": result.GroupsCount,
	})
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req actionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	taskID, err := s.coord.SubmitAction(id, types.TaskType(req.Action))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (s *Server) handleSubmitBulkAction(w http.ResponseWriter, r *http.Request) {
	var req bulkActionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.coord.SubmitBulkAction(req.AppIDs, types.TaskType(req.Action))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, len(results))
	for i, res := range results {
		entry := map[string]any{"instance_id": res.InstanceID}
		if res.TaskID != "" {
			entry["task_id"] = res.TaskID
		}
		if res.Error != "" {
			entry["error"] = res.Error
		}
		out[i] = entry
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"results": out})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := storage.TaskFilter{
		Status: types.TaskStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("instance_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("invalid instance_id: %w", types.ErrValidation))
			return
		}
		filter.InstanceID = id
	}
	if v := r.URL.Query().Get("server_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("invalid server_id: %w", types.ErrValidation))
			return
		}
		filter.ServerID = id
	}

	tasks, err := s.coord.ListTasks(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": taskViews(tasks)})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	detail, err := s.coord.GetTask(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	view := taskView(detail.Task)
	if detail.CurrentStep != "" {
		view["current_task"] = detail.CurrentStep
	}
	if detail.Recap != nil {
		view["play_recap"] = detail.Recap
	}
	if detail.Summaries != nil {
		view["summaries"] = detail.Summaries
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.CancelTask(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.coord.Store().ListInstances()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	inst, err := s.coord.Store().GetInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.coord.ListVersionHistory(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleObserveInstance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req observeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err = s.coord.ObserveInstance(id, coordinator.Observation{
		Version: req.Version,
		Image:   req.Image,
		Tag:     req.Tag,
		Status:  types.InstanceStatus(req.Status),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleEvents streams broker events to the client as JSON lines until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	sub := s.coord.Broker().Subscribe()
	defer s.coord.Broker().Unsubscribe(sub)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub:
			if !open {
				return
			}
			if err := enc.Encode(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// taskView renders a task for JSON output, eliding unset optional fields
func taskView(task *types.Task) map[string]any {
	view := map[string]any{
		"id":          task.ID,
		"type":        task.Type,
		"status":      task.Status,
		"params":      task.Params,
		"instance_id": task.InstanceID,
		"created_at":  task.CreatedAt,
		"cancelled":   task.Cancelled,
	}
	if task.ServerID != nil {
		view["server_id"] = *task.ServerID
	}
	if task.StartedAt != nil {
		view["started_at"] = task.StartedAt
	}
	if task.CompletedAt != nil {
		view["completed_at"] = task.CompletedAt
	}
	if task.Result != "" {
		view["result"] = task.Result
	}
	if task.Error != "" {
		view["error"] = task.Error
	}
	if task.PID != nil {
		view["pid"] = *task.PID
	}
	return view
}

func taskViews(tasks []*types.Task) []map[string]any {
	views := make([]map[string]any, len(tasks))
	for i, task := range tasks {
		views[i] = taskView(task)
	}
	return views
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", r.PathValue("id"), types.ErrValidation)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", types.ErrValidation)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, types.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("api").Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
