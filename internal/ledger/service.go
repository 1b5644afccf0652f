package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

// Store is the order persistence needed by the ledger.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, ref, payer string, skillID uuid.UUID) (*models.Order, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Settle records a settled order for the release. Orders are keyed by
// (reference, payer, skill): re-presenting the same proof returns the
// existing order, and the same reference presented by another payer gets
// its own record.
func (s *Service) Settle(ctx context.Context, payer string, skillID uuid.UUID, ref string, amount int64, simulated bool) (*models.Order, error) {
	o := &models.Order{
		ID:               uuid.New(),
		PayerIdentity:    payer,
		SkillID:          skillID,
		PaymentReference: ref,
		AmountUnits:      amount,
		Status:           models.OrderStatusSettled,
		Simulated:        simulated,
	}
	err := s.store.CreateOrder(ctx, o)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("create order: %w", err)
	}
	existing, err := s.store.GetOrder(ctx, ref, payer, skillID)
	if err != nil {
		return nil, fmt.Errorf("lookup order: %w", err)
	}
	return existing, nil
}
