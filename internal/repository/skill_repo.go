package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hive402/backend/internal/models"
)

const skillColumns = `id, title, description, price_units, provider_identity, payout_address, content_reference, category, created_at`

// SkillQuery filters a catalog scan. Keywords match title or description
// case-insensitively; any keyword is enough. Results are ranked by
// MatchScore, newest first on ties, before Limit applies.
type SkillQuery struct {
	Keywords      []string
	Category      string
	MinPriceUnits int64
	Limit         int
}

type SkillRepo struct {
	pool *pgxpool.Pool
}

func NewSkillRepo(pool *pgxpool.Pool) *SkillRepo {
	return &SkillRepo{pool: pool}
}

func scanSkill(row pgx.Row) (*models.Skill, error) {
	var s models.Skill
	if err := row.Scan(&s.ID, &s.Title, &s.Description, &s.PriceUnits, &s.ProviderIdentity, &s.PayoutAddress, &s.ContentReference, &s.Category, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SkillRepo) CreateSkill(ctx context.Context, s *models.Skill) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO skills (`+skillColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`, s.ID, s.Title, s.Description, s.PriceUnits, s.ProviderIdentity, s.PayoutAddress, s.ContentReference, s.Category).Scan(&s.CreatedAt)
	return translate(err)
}

func (r *SkillRepo) GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	s, err := scanSkill(r.pool.QueryRow(ctx, `SELECT `+skillColumns+` FROM skills WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (r *SkillRepo) SearchSkills(ctx context.Context, q SkillQuery) ([]*models.Skill, error) {
	patterns := make([]string, 0, len(q.Keywords))
	for _, kw := range q.Keywords {
		patterns = append(patterns, "%"+escapeLike(kw)+"%")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+skillColumns+` FROM skills
		WHERE (cardinality($1::text[]) = 0 OR title ILIKE ANY($1) OR description ILIKE ANY($1))
		  AND ($2 = '' OR category = $2)
		  AND price_units >= $3
		ORDER BY (
			SELECT COALESCE(SUM(
				CASE WHEN title ILIKE p THEN 2 ELSE 0 END +
				CASE WHEN description ILIKE p THEN 1 ELSE 0 END), 0)
			FROM unnest($1::text[]) AS p
		) DESC, created_at DESC, id
		LIMIT $4
	`, patterns, q.Category, q.MinPriceUnits, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// MatchScore weights title hits above description hits.
func MatchScore(sk *models.Skill, keywords []string) int {
	title := strings.ToLower(sk.Title)
	desc := strings.ToLower(sk.Description)
	n := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(title, kw) {
			n += 2
		}
		if strings.Contains(desc, kw) {
			n++
		}
	}
	return n
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
