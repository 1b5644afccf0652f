package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/models"
)

type contextKey string

const ctxAgentKey contextKey = "agent"

// AgentStore resolves an agent id to its stored credential.
type AgentStore interface {
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
}

// AgentAuth authenticates polling agents. The Bearer token has the form
// "<agentId>.<secret>"; the secret is checked against the stored bcrypt hash.
// On success the agent is placed into the request context.
func AgentAuth(store AgentStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			agentID, secret, ok := strings.Cut(raw, ".")
			if !ok || agentID == "" || secret == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}

			agent, err := store.GetAgent(r.Context(), agentID)
			if err != nil {
				http.Error(w, `{"error":"invalid agent credentials"}`, http.StatusUnauthorized)
				return
			}
			if err := auth.CompareSecret(agent.SecretHash, secret); err != nil {
				http.Error(w, `{"error":"invalid agent credentials"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAgent(r.Context(), agent)))
		})
	}
}

// AgentFromCtx returns the authenticated agent, or nil.
func AgentFromCtx(ctx context.Context) *models.Agent {
	ag, _ := ctx.Value(ctxAgentKey).(*models.Agent)
	return ag
}

// WithAgent returns a context carrying the given agent.
func WithAgent(ctx context.Context, ag *models.Agent) context.Context {
	return context.WithValue(ctx, ctxAgentKey, ag)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
