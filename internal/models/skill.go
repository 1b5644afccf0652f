package models

import (
	"time"

	"github.com/google/uuid"
)

// UnitsPerSTX converts whole STX into the rail's smallest unit (microSTX).
const UnitsPerSTX = 1_000_000

// Skill is a priced artifact. ContentReference is withheld from every
// response that has not passed the ingestion gate, so it carries no JSON tag.
type Skill struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	PriceUnits       int64     `json:"priceUnits"`
	ProviderIdentity string    `json:"providerIdentity"`
	PayoutAddress    string    `json:"payoutAddress,omitempty"`
	ContentReference string    `json:"-"`
	Category         string    `json:"category"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Payee is the rail principal that must receive payment for this skill.
func (s *Skill) Payee() string {
	if s.PayoutAddress != "" {
		return s.PayoutAddress
	}
	return s.ProviderIdentity
}

// SkillView is the public projection of a Skill.
type SkillView struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	PriceUnits       int64     `json:"priceUnits"`
	PriceSTX         float64   `json:"priceStx"`
	Category         string    `json:"category"`
	ProviderIdentity string    `json:"providerAddress"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (s *Skill) View() SkillView {
	return SkillView{
		ID:               s.ID,
		Title:            s.Title,
		Description:      s.Description,
		PriceUnits:       s.PriceUnits,
		PriceSTX:         float64(s.PriceUnits) / UnitsPerSTX,
		Category:         s.Category,
		ProviderIdentity: s.ProviderIdentity,
		CreatedAt:        s.CreatedAt,
	}
}
