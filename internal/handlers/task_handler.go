package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/jobs"
	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/services"
)

// TaskQueue is the subset of the task queue the handler needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, input string) (*models.Task, error)
	ClaimNext(ctx context.Context, agentID string) (*models.Task, error)
	Complete(ctx context.Context, taskID uuid.UUID, agentID, outcome, output string) (*models.Task, error)
	GetStatus(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
}

// SkillLookup resolves installed skills for the context block.
type SkillLookup interface {
	GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error)
}

// OutputValidator checks submitted outputs against the TaskOutput schema.
type OutputValidator interface {
	Validate(raw json.RawMessage) (models.TaskOutput, error)
}

// TaskHandler serves /v1/tasks endpoints.
type TaskHandler struct {
	Queue     TaskQueue
	Skills    SkillLookup
	Validator OutputValidator
	Logger    *slog.Logger
}

// --- POST /v1/tasks ---

type createTaskRequest struct {
	Input    string   `json:"input"`
	SkillIDs []string `json:"skillIds"`
}

type createTaskResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// CreateTask handles POST /v1/tasks. Installed skills named in skillIds are
// prepended to the input as an [INSTALLED CONTEXT] block.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		http.Error(w, `{"error":"input is required"}`, http.StatusBadRequest)
		return
	}

	input := req.Input
	if len(req.SkillIDs) > 0 {
		input = h.withInstalledContext(r.Context(), req.SkillIDs, req.Input)
	}

	task, err := h.Queue.Enqueue(r.Context(), input)
	if err != nil {
		if errors.Is(err, jobs.ErrEmptyInput) {
			http.Error(w, `{"error":"input is required"}`, http.StatusBadRequest)
			return
		}
		h.Logger.Error("enqueue task", "error", err)
		http.Error(w, `{"error":"failed to create task"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createTaskResponse{TaskID: task.ID.String(), Status: task.Status})
}

// withInstalledContext builds the context block from the skills that exist.
// Unknown or malformed ids are skipped; with none left the input is unchanged.
func (h *TaskHandler) withInstalledContext(ctx context.Context, ids []string, message string) string {
	var blocks []string
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		sk, err := h.Skills.GetSkill(ctx, id)
		if err != nil {
			h.Logger.Warn("installed skill lookup", "skill_id", raw, "error", err)
			continue
		}
		blocks = append(blocks, "SKILL: "+sk.Title+" ("+sk.Category+")\nDESCRIPTION: "+sk.Description)
	}
	if len(blocks) == 0 {
		return message
	}
	return "[INSTALLED CONTEXT]\n" + strings.Join(blocks, "\n---\n") + "\n\n[USER REQUEST]\n" + message
}

// --- GET /v1/tasks/claim ---

type claimResponse struct {
	Tasks []*models.Task `json:"tasks"`
}

// ClaimTask handles GET /v1/tasks/claim?agentId=. AgentAuth must run first;
// a supplied agentId must name the authenticated agent.
func (h *TaskHandler) ClaimTask(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if q := r.URL.Query().Get("agentId"); q != "" && q != agent.ID {
		http.Error(w, `{"error":"agentId does not match credentials"}`, http.StatusForbidden)
		return
	}

	task, err := h.Queue.ClaimNext(r.Context(), agent.ID)
	if err != nil {
		h.Logger.Error("claim task", "agent_id", agent.ID, "error", err)
		http.Error(w, `{"error":"claim failed"}`, http.StatusInternalServerError)
		return
	}
	resp := claimResponse{Tasks: []*models.Task{}}
	if task != nil {
		resp.Tasks = append(resp.Tasks, task)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- POST /v1/tasks/complete ---

type completeRequest struct {
	TaskID string          `json:"taskId"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
}

// CompleteTask handles POST /v1/tasks/complete. The output must satisfy the
// TaskOutput schema (422 otherwise).
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	taskID, err := uuid.Parse(req.TaskID)
	if err != nil {
		http.Error(w, `{"error":"invalid taskId"}`, http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		req.Status = models.TaskStatusCompleted
	}

	out, err := h.Validator.Validate(req.Output)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		h.Logger.Error("validate output", "error", err)
		http.Error(w, `{"error":"output validation failed"}`, http.StatusInternalServerError)
		return
	}

	task, err := h.Queue.Complete(r.Context(), taskID, agent.ID, req.Status, out.Encode())
	switch {
	case errors.Is(err, jobs.ErrInvalidOutcome):
		http.Error(w, `{"error":"status must be completed or failed"}`, http.StatusBadRequest)
		return
	case errors.Is(err, jobs.ErrTaskNotFound):
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	case errors.Is(err, jobs.ErrNotProcessing):
		http.Error(w, `{"error":"task is not processing"}`, http.StatusConflict)
		return
	case errors.Is(err, jobs.ErrNotClaimant):
		http.Error(w, `{"error":"task is claimed by another agent"}`, http.StatusForbidden)
		return
	case err != nil:
		h.Logger.Error("complete task", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "taskId": task.ID.String()})
}

// --- GET /v1/tasks/status ---

// GetStatus handles GET /v1/tasks/status?taskId=.
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(r.URL.Query().Get("taskId"))
	if err != nil {
		http.Error(w, `{"error":"invalid taskId"}`, http.StatusBadRequest)
		return
	}
	task, err := h.Queue.GetStatus(r.Context(), taskID)
	if errors.Is(err, jobs.ErrTaskNotFound) {
		http.Error(w, `{"error":"task not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("get task status", "task_id", taskID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.TaskStatusView{"task": task.StatusView()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
