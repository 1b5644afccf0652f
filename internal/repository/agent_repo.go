package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive402/backend/internal/models"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

func (r *AgentRepo) CreateAgent(ctx context.Context, a *models.Agent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, secret_hash, trusted)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, a.ID, a.Name, a.SecretHash, a.Trusted).Scan(&a.CreatedAt)
	return translate(err)
}

func (r *AgentRepo) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, secret_hash, trusted, created_at FROM agents WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.SecretHash, &a.Trusted, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}
