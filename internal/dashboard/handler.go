// Package dashboard serves the operator view of the queue.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type TaskLister interface {
	ListRecent(ctx context.Context, status string, limit int) ([]*models.Task, error)
}

type Handler struct {
	tasks TaskLister
	log   *slog.Logger
}

func NewHandler(tasks TaskLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{tasks: tasks, log: log}
}

var validStatus = map[string]bool{
	"":                          true,
	models.TaskStatusPending:    true,
	models.TaskStatusProcessing: true,
	models.TaskStatusCompleted:  true,
	models.TaskStatusExpired:    true,
	models.TaskStatusFailed:     true,
}

// ListTasks handles GET /v1/admin/tasks?status=&limit=. Only trusted agents
// may read it.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil || !agent.Trusted {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}
	status := r.URL.Query().Get("status")
	if !validStatus[status] {
		http.Error(w, `{"error":"unknown status"}`, http.StatusBadRequest)
		return
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxLimit)
	}

	list, err := h.tasks.ListRecent(r.Context(), status, limit)
	if err != nil {
		h.log.Error("list tasks", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Task{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"tasks": list})
}
