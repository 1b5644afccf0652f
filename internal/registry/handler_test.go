package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository/memstore"
)

func newTestMux(t *testing.T) (*http.ServeMux, *Service) {
	t.Helper()
	svc := NewService(memstore.New(), nil)
	h := NewHandler(svc, nil)
	withAgent := func(next http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithAgent(r.Context(), &models.Agent{ID: "agent_local_worker_01", Trusted: true})
			next(w, r.WithContext(ctx))
		})
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/skills", h.Search)
	mux.HandleFunc("GET /v1/skills/{id}", h.Get)
	mux.HandleFunc("POST /v1/skills", h.Publish)
	mux.Handle("POST /v1/agent/skills", withAgent(h.PublishFromAgent))
	return mux, svc
}

func do(t *testing.T, mux http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestHandler_PublishSearchGet(t *testing.T) {
	mux, _ := newTestMux(t)
	p := newProvider(t)

	rec := do(t, mux, http.MethodPost, "/v1/skills", p.signed(PublishRequest{
		Title: "Postgres Tuning", Description: "vacuum and indexes", PriceUnits: 2_000_000,
		Category: "db", ContentReference: "ipfs://secret-fragment",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "ipfs://secret-fragment")

	var created models.SkillView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 2.0, created.PriceSTX)

	rec = do(t, mux, http.MethodGet, "/v1/skills?q=postgres", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SkillView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
	assert.NotContains(t, rec.Body.String(), "ipfs://")

	rec = do(t, mux, http.MethodGet, "/v1/skills/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "ipfs://")
}

func TestHandler_Errors(t *testing.T) {
	mux, _ := newTestMux(t)
	p := newProvider(t)

	bad := p.signed(PublishRequest{Title: "t", Description: "d", PriceUnits: 5, Category: "c"})
	bad.Title = "changed"

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown skill", http.MethodGet, "/v1/skills/8f0e6c1e-4e43-4a8a-9d1e-0c1b2a3d4e5f", nil, http.StatusNotFound},
		{"malformed id", http.MethodGet, "/v1/skills/nope", nil, http.StatusBadRequest},
		{"bad minPrice", http.MethodGet, "/v1/skills?minPrice=-1", nil, http.StatusBadRequest},
		{"bad signature", http.MethodPost, "/v1/skills", bad, http.StatusUnauthorized},
		{"missing fields", http.MethodPost, "/v1/agent/skills", AgentPublishRequest{Title: "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, mux, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_AgentPublish(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := do(t, mux, http.MethodPost, "/v1/agent/skills", AgentPublishRequest{
		Title: "Helm Charts", Description: "templating", Category: "devops", Complexity: 3, ProviderIdentity: "ST2AGENT",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v models.SkillView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, int64(1_000_000), v.PriceUnits)
}
