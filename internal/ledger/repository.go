package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrder inserts a settled order. The unique index on
// (payment_reference, payer_identity, skill_id) makes a second insert for the
// same key fail with repository.ErrDuplicate.
func (r *Repository) CreateOrder(ctx context.Context, o *models.Order) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, payer_identity, skill_id, payment_reference, amount_units, status, simulated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, o.ID, o.PayerIdentity, o.SkillID, o.PaymentReference, o.AmountUnits, o.Status, o.Simulated).Scan(&o.CreatedAt, &o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	return err
}

func (r *Repository) GetOrder(ctx context.Context, ref, payer string, skillID uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.pool.QueryRow(ctx, `
		SELECT id, payer_identity, skill_id, payment_reference, amount_units, status, simulated, created_at, updated_at
		FROM orders WHERE payment_reference = $1 AND payer_identity = $2 AND skill_id = $3
	`, ref, payer, skillID).Scan(&o.ID, &o.PayerIdentity, &o.SkillID, &o.PaymentReference, &o.AmountUnits, &o.Status, &o.Simulated, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
