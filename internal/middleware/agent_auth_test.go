package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockAgentStore struct {
	agents map[string]*models.Agent
}

func (m *mockAgentStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a, nil
}

func newAgentStore(t *testing.T, id, secret string) *mockAgentStore {
	t.Helper()
	hash, err := auth.HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	return &mockAgentStore{agents: map[string]*models.Agent{
		id: {ID: id, Name: "worker", SecretHash: hash, Trusted: true},
	}}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAgentAuth(t *testing.T) {
	store := newAgentStore(t, "agent_local_worker_01", "hk_s3cret")

	var seen *models.Agent
	h := AgentAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AgentFromCtx(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer agent_local_worker_01.hk_s3cret", http.StatusOK},
		{"lowercase scheme", "bearer agent_local_worker_01.hk_s3cret", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"no separator", "Bearer agent_local_worker_01", http.StatusUnauthorized},
		{"wrong secret", "Bearer agent_local_worker_01.hk_wrong", http.StatusUnauthorized},
		{"unknown agent", "Bearer agent_x.hk_s3cret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/v1/tasks/claim", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
			if tc.want == http.StatusOK && (seen == nil || seen.ID != "agent_local_worker_01") {
				t.Fatalf("expected agent in context, got %+v", seen)
			}
			if tc.want != http.StatusOK && seen != nil {
				t.Fatal("handler must not run for rejected requests")
			}
		})
	}
}

func TestIngestRateLimit(t *testing.T) {
	limiter := newCountingLimiter(2)
	var reached int
	h := IngestRateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(body string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
		req.RemoteAddr = "198.51.100.7:40000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	body := `{"skillId":"s1","address":"agent:pk:ed25519:abc"}`
	if code := send(body); code != http.StatusOK {
		t.Fatalf("first attempt: expected 200, got %d", code)
	}
	if code := send(body); code != http.StatusOK {
		t.Fatalf("second attempt: expected 200, got %d", code)
	}
	if code := send(body); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: expected 429, got %d", code)
	}
	if code := send(`{"skillId":"s1","address":"agent:pk:ed25519:other"}`); code != http.StatusOK {
		t.Fatalf("other identity: expected 200, got %d", code)
	}
	if reached != 3 {
		t.Fatalf("expected handler reached 3 times, got %d", reached)
	}
	if limiter.keys[0] != "ip:198.51.100.7|id:agent:pk:ed25519:abc" {
		t.Fatalf("unexpected limiter key %q", limiter.keys[0])
	}
}

func TestIngestRateLimit_OtherClientsKeepTheirQuota(t *testing.T) {
	limiter := newCountingLimiter(1)
	h := IngestRateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"address":"agent:pk:ed25519:abc"}`))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.9:5000"); code != http.StatusOK {
		t.Fatalf("first client: expected 200, got %d", code)
	}
	if code := send("203.0.113.9:5001"); code != http.StatusTooManyRequests {
		t.Fatalf("first client again: expected 429, got %d", code)
	}
	if code := send("192.0.2.44:6000"); code != http.StatusOK {
		t.Fatalf("another client naming the same address: expected 200, got %d", code)
	}
}

func TestIngestRateLimit_BodyRestored(t *testing.T) {
	var got string
	h := IngestRateLimit(newCountingLimiter(10), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	}))
	body := `{"skillId":"s1"}`
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body)))
	if got != body {
		t.Fatalf("expected body %q restored, got %q", body, got)
	}
}

type countingLimiter struct {
	limit  int
	counts map[string]int
	keys   []string
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{limit: limit, counts: make(map[string]int)}
}

func (c *countingLimiter) Allow(_ context.Context, key string) (bool, error) {
	c.keys = append(c.keys, key)
	c.counts[key]++
	return c.counts[key] <= c.limit, nil
}

func (c *countingLimiter) Limit() int { return c.limit }
