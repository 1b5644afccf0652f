package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/cache"
	"github.com/hive402/backend/internal/repository"
)

type AccessKeyParser interface {
	Parse(token string) (*auth.AccessClaims, error)
}

// ContentHandler redeems access keys minted on release. Each key works once.
type ContentHandler struct {
	Keys     AccessKeyParser
	Redeemer cache.Redeemer
	Skills   SkillLookup
	Logger   *slog.Logger
}

// GetContent handles GET /v1/skills/{id}/content with the access key as a
// Bearer token.
func (h *ContentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	skillID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid skill id"}`, http.StatusBadRequest)
		return
	}
	token := bearerToken(r)
	if token == "" {
		http.Error(w, `{"error":"access key required"}`, http.StatusUnauthorized)
		return
	}
	claims, err := h.Keys.Parse(token)
	if err != nil {
		http.Error(w, `{"error":"invalid access key"}`, http.StatusUnauthorized)
		return
	}
	if claims.SkillID != skillID.String() {
		http.Error(w, `{"error":"access key is for another skill"}`, http.StatusForbidden)
		return
	}

	ttl := time.Second
	if claims.ExpiresAt != nil {
		if left := time.Until(claims.ExpiresAt.Time); left > ttl {
			ttl = left
		}
	}
	first, err := h.Redeemer.Redeem(r.Context(), claims.ID, ttl)
	if err != nil {
		h.Logger.Error("redeem access key", "skill_id", skillID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !first {
		http.Error(w, `{"error":"access key already used"}`, http.StatusGone)
		return
	}

	sk, err := h.Skills.GetSkill(r.Context(), skillID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.Logger.Error("load released skill", "skill_id", skillID, "error", err)
		http.Error(w, `{"error":"skill unavailable"}`, status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"skillId":          sk.ID.String(),
		"title":            sk.Title,
		"contentReference": sk.ContentReference,
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
