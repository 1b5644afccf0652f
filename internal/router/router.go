// Package router assembles the HTTP surface of the API.
package router

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/hive402/backend/internal/dashboard"
	"github.com/hive402/backend/internal/handlers"
	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/registry"
)

// Deps are the handlers and middleware the routes are built from.
// AgentAuth and IngestLimit may be nil in tests; nil means pass-through.
type Deps struct {
	Tasks       *handlers.TaskHandler
	Ingest      *handlers.IngestHandler
	Content     *handlers.ContentHandler
	Skills      *registry.Handler
	Dashboard   *dashboard.Handler
	AgentAuth   func(http.Handler) http.Handler
	IngestLimit func(http.Handler) http.Handler
	CORSOrigins []string
	Logger      *slog.Logger
}

// Routes registers every endpoint on a fresh mux without outer middleware.
func Routes(d Deps) *http.ServeMux {
	agent := orPass(d.AgentAuth)
	limit := orPass(d.IngestLimit)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /v1/tasks", d.Tasks.CreateTask)
	mux.HandleFunc("GET /v1/tasks/status", d.Tasks.GetStatus)
	mux.Handle("GET /v1/tasks/claim", agent(http.HandlerFunc(d.Tasks.ClaimTask)))
	mux.Handle("POST /v1/tasks/complete", agent(http.HandlerFunc(d.Tasks.CompleteTask)))

	mux.Handle("POST /v1/ingest", limit(http.HandlerFunc(d.Ingest.Ingest)))
	mux.HandleFunc("GET /v1/skills/{id}/content", d.Content.GetContent)

	mux.HandleFunc("GET /v1/skills", d.Skills.Search)
	mux.HandleFunc("GET /v1/skills/{id}", d.Skills.Get)
	mux.HandleFunc("POST /v1/skills", d.Skills.Publish)
	mux.Handle("POST /v1/agent/skills", agent(http.HandlerFunc(d.Skills.PublishFromAgent)))

	if d.Dashboard != nil {
		mux.Handle("GET /v1/admin/tasks", agent(http.HandlerFunc(d.Dashboard.ListTasks)))
	}
	return mux
}

// New wraps Routes with panic recovery, request ids, access logging and CORS.
func New(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", handlers.PaymentSignatureHeader},
		ExposedHeaders: []string{handlers.PaymentRequiredHeader},
	})

	var h http.Handler = Routes(d)
	h = c.Handler(h)
	h = middleware.RequestLogger(logger)(h)
	h = chimw.RequestID(h)
	h = chimw.Recoverer(h)
	return h
}

func orPass(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
