// Package testserver runs the full API over an in-memory store for
// end-to-end tests of clients and agents.
package testserver

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/cache"
	"github.com/hive402/backend/internal/dashboard"
	"github.com/hive402/backend/internal/gate"
	"github.com/hive402/backend/internal/handlers"
	"github.com/hive402/backend/internal/jobs"
	"github.com/hive402/backend/internal/ledger"
	"github.com/hive402/backend/internal/middleware"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/payment"
	"github.com/hive402/backend/internal/registry"
	"github.com/hive402/backend/internal/repository/memstore"
	"github.com/hive402/backend/internal/router"
	"github.com/hive402/backend/internal/services"
)

type Server struct {
	*httptest.Server
	Store *memstore.Store
	Jobs  *jobs.Service
	Keys  *auth.AccessKeys
}

// Options tune the stack. Zero values give simulated proofs enabled and a
// generous ingest limit.
type Options struct {
	Lookup        payment.TxLookup
	DenySimulated bool
	IngestLimit   int
	StaleAfter    time.Duration
	KeyTTL        time.Duration
}

func New(t testing.TB, opts Options) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store := memstore.New()

	validator, err := services.NewOutputValidator()
	if err != nil {
		t.Fatalf("output validator: %v", err)
	}
	jobOpts := []jobs.Option{jobs.WithLogger(logger)}
	if opts.StaleAfter > 0 {
		jobOpts = append(jobOpts, jobs.WithStaleAfter(opts.StaleAfter))
	}
	queue := jobs.NewService(store, jobOpts...)

	ttl := opts.KeyTTL
	if ttl == 0 {
		ttl = time.Minute
	}
	keys := auth.NewAccessKeys("testserver-secret", ttl)
	rail := payment.DefaultRail()
	verifier := &payment.Verifier{Rail: rail, Lookup: opts.Lookup, AllowSimulated: !opts.DenySimulated}
	g := gate.New(store, verifier, ledger.NewService(store), keys, rail, gate.WithLogger(logger))

	limit := opts.IngestLimit
	if limit == 0 {
		limit = 1000
	}

	h := router.New(router.Deps{
		Tasks:       &handlers.TaskHandler{Queue: queue, Skills: store, Validator: validator, Logger: logger},
		Ingest:      &handlers.IngestHandler{Gate: g, Logger: logger},
		Content:     &handlers.ContentHandler{Keys: keys, Redeemer: cache.NewMemoryRedeemer(), Skills: store, Logger: logger},
		Skills:      registry.NewHandler(registry.NewService(store, logger), logger),
		Dashboard:   dashboard.NewHandler(store, logger),
		AgentAuth:   middleware.AgentAuth(store),
		IngestLimit: middleware.IngestRateLimit(cache.NewMemoryRateLimiter(limit, time.Minute), logger),
		Logger:      logger,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Server{Server: srv, Store: store, Jobs: queue, Keys: keys}
}

// RegisterAgent stores an agent and returns its bearer token.
func (s *Server) RegisterAgent(t testing.TB, id string, trusted bool) string {
	t.Helper()
	secret, err := auth.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	hash, err := auth.HashSecret(secret)
	if err != nil {
		t.Fatalf("hash secret: %v", err)
	}
	agent := &models.Agent{ID: id, Name: id, SecretHash: hash, Trusted: trusted, CreatedAt: time.Now()}
	if err := s.Store.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	return id + "." + secret
}

// AddSkill stores a skill directly, bypassing publish checks.
func (s *Server) AddSkill(t testing.TB, sk *models.Skill) *models.Skill {
	t.Helper()
	if err := s.Store.CreateSkill(context.Background(), sk); err != nil {
		t.Fatalf("create skill: %v", err)
	}
	return sk
}
