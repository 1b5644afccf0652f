package registry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/identity"
	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/models"
)

// Handler serves the skill catalog under /v1/skills and /v1/agent/skills.
type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Search handles GET /v1/skills?q=&category=&minPrice=. minPrice is in microSTX.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := SearchQuery{
		Text:     r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("minPrice"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"minPrice must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		q.MinPriceUnits = n
	}
	list, err := h.svc.Search(r.Context(), q)
	if err != nil {
		h.log.Error("search skills failed", "error", err)
		http.Error(w, `{"error":"search operation failed"}`, http.StatusInternalServerError)
		return
	}
	resp := make([]models.SkillView, 0, len(list))
	for _, sk := range list {
		resp = append(resp, sk.View())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /v1/skills/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid skill id"}`, http.StatusBadRequest)
		return
	}
	sk, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, ErrSkillNotFound) {
		http.Error(w, `{"error":"skill not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("get skill failed", "skill_id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sk.View())
}

// Publish handles POST /v1/skills (provider-signed).
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPublishBytes+64<<10)
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.decodeError(w, err)
		return
	}
	sk, err := h.svc.Publish(r.Context(), req)
	if err != nil {
		h.publishError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk.View())
}

// PublishFromAgent handles POST /v1/agent/skills. AgentAuth must run first.
func (h *Handler) PublishFromAgent(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxPublishBytes+64<<10)
	var req AgentPublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.decodeError(w, err)
		return
	}
	sk, err := h.svc.PublishFromAgent(r.Context(), agent, req)
	if err != nil {
		h.publishError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk.View())
}

func (h *Handler) decodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		http.Error(w, `{"error":"publish payload exceeds 5MB limit"}`, http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
}

func (h *Handler) publishError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingFields), errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInjection):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrContentTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrUntrustedAgent):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, identity.ErrIdentityMismatch):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "public key does not own provider identity", "reason": "identity_mismatch"})
	case errors.Is(err, identity.ErrInvalidSignature):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "signature does not cover the listing", "reason": "invalid_signature"})
	case errors.Is(err, identity.ErrInvalidEncoding):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "malformed public key or signature", "reason": "invalid_encoding"})
	default:
		h.log.Error("publish skill failed", "error", err)
		http.Error(w, `{"error":"failed to publish skill"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
