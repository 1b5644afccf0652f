package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
	"github.com/hive402/backend/internal/repository/memstore"
)

// Store is the catalog persistence the registry needs.
type Store interface {
	CreateSkill(ctx context.Context, s *models.Skill) error
	GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error)
	SearchSkills(ctx context.Context, q repository.SkillQuery) ([]*models.Skill, error)
}

var (
	_ Store = (*repository.SkillRepo)(nil)
	_ Store = (*memstore.Store)(nil)
)
