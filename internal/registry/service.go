package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hive402/backend/internal/identity"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/repository"
)

const (
	// MaxResults caps every search response.
	MaxResults = 10
	// MaxPublishBytes bounds the combined size of a publish request's text fields.
	MaxPublishBytes = 5 * 1024 * 1024

	agentURIPrefix = "openclaw://agent-generated-"
)

var (
	ErrSkillNotFound   = errors.New("skill not found")
	ErrMissingFields   = errors.New("missing required fields")
	ErrInvalidPrice    = errors.New("price must be >= 0")
	ErrContentTooLarge = errors.New("publish payload exceeds 5MB limit")
	ErrInjection       = errors.New("prompt injection pattern detected")
	ErrUntrustedAgent  = errors.New("agent is not trusted to publish")
)

var (
	scriptTag         = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	injectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)ignore all previous`),
		regexp.MustCompile(`(?i)you are now a`),
		regexp.MustCompile(`(?i)forget everything`),
		regexp.MustCompile(`(?i)system prompt`),
	}
)

// SearchQuery is a discovery request. Text is split into keywords when
// Keywords is empty.
type SearchQuery struct {
	Text          string
	Keywords      []string
	Category      string
	MinPriceUnits int64
}

// PublishRequest is a provider-signed listing. The signature covers
// identity.PublishMessage(Title, PriceUnits, ProviderIdentity).
type PublishRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	PriceUnits       int64  `json:"priceUnits"`
	Category         string `json:"category"`
	ContentReference string `json:"contentReference"`
	ProviderIdentity string `json:"providerIdentity"`
	PayoutAddress    string `json:"payoutAddress"`
	PublicKey        string `json:"publicKey"`
	Signature        string `json:"signature"`
}

// AgentPublishRequest is a listing synthesized by a trusted agent. When
// PriceUnits is zero the price tier follows Complexity.
type AgentPublishRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	Complexity       int    `json:"complexity"`
	PriceUnits       int64  `json:"priceUnits"`
	ProviderIdentity string `json:"providerIdentity"`
	PayoutAddress    string `json:"payoutAddress"`
}

type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// PriceForComplexity maps a 1-5 complexity score to a price tier in microSTX.
func PriceForComplexity(complexity int) int64 {
	switch {
	case complexity <= 2:
		return 500_000
	case complexity == 3:
		return 1_000_000
	case complexity == 4:
		return 2_500_000
	default:
		return 5_000_000
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Skill, error) {
	sk, err := s.store.GetSkill(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSkillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return sk, nil
}

// Search returns at most MaxResults skills, best keyword match first.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]*models.Skill, error) {
	keywords := q.Keywords
	if len(keywords) == 0 {
		keywords = strings.Fields(strings.ToLower(q.Text))
	}
	list, err := s.store.SearchSkills(ctx, repository.SkillQuery{
		Keywords:      keywords,
		Category:      q.Category,
		MinPriceUnits: q.MinPriceUnits,
		Limit:         MaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("search skills: %w", err)
	}
	return list, nil
}

// Publish verifies the provider signature, sanitizes the listing and stores it.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*models.Skill, error) {
	if req.Title == "" || req.Description == "" || req.Category == "" || req.ProviderIdentity == "" {
		return nil, ErrMissingFields
	}
	if req.PriceUnits < 0 {
		return nil, ErrInvalidPrice
	}
	msg := identity.PublishMessage(req.Title, req.PriceUnits, req.ProviderIdentity)
	if err := identity.Verify(req.ProviderIdentity, req.PublicKey, req.Signature, msg); err != nil {
		return nil, err
	}
	if len(req.Title)+len(req.Description)+len(req.ContentReference) > MaxPublishBytes {
		return nil, ErrContentTooLarge
	}
	if err := scanInjection(req.Description); err != nil {
		return nil, err
	}
	ref := req.ContentReference
	if ref == "" {
		ref = "ipfs://placeholder-fragment-" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	sk := &models.Skill{
		ID:               uuid.New(),
		Title:            sanitize(req.Title),
		Description:      sanitize(req.Description),
		PriceUnits:       req.PriceUnits,
		ProviderIdentity: req.ProviderIdentity,
		PayoutAddress:    req.PayoutAddress,
		ContentReference: ref,
		Category:         req.Category,
	}
	if err := s.store.CreateSkill(ctx, sk); err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	s.logger.Info("skill published", "skill_id", sk.ID, "provider", sk.ProviderIdentity, "price_units", sk.PriceUnits)
	return sk, nil
}

// PublishFromAgent stores a listing produced by a trusted agent. No provider
// signature is required.
func (s *Service) PublishFromAgent(ctx context.Context, agent *models.Agent, req AgentPublishRequest) (*models.Skill, error) {
	if agent == nil || !agent.Trusted {
		return nil, ErrUntrustedAgent
	}
	if req.Title == "" || req.Description == "" || req.Category == "" || req.ProviderIdentity == "" {
		return nil, ErrMissingFields
	}
	if req.PriceUnits < 0 {
		return nil, ErrInvalidPrice
	}
	price := req.PriceUnits
	if price == 0 {
		price = PriceForComplexity(req.Complexity)
	}
	if err := scanInjection(req.Description); err != nil {
		return nil, err
	}
	sk := &models.Skill{
		ID:               uuid.New(),
		Title:            sanitize(req.Title),
		Description:      sanitize(req.Description),
		PriceUnits:       price,
		ProviderIdentity: req.ProviderIdentity,
		PayoutAddress:    req.PayoutAddress,
		ContentReference: agentURIPrefix + strconv.FormatInt(s.now().UnixMilli(), 10),
		Category:         req.Category,
	}
	if err := s.store.CreateSkill(ctx, sk); err != nil {
		return nil, fmt.Errorf("create skill: %w", err)
	}
	s.logger.Info("agent skill published", "skill_id", sk.ID, "agent_id", agent.ID, "price_units", sk.PriceUnits)
	return sk, nil
}

func sanitize(s string) string {
	return strings.TrimSpace(scriptTag.ReplaceAllString(s, ""))
}

func scanInjection(text string) error {
	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return fmt.Errorf("%w: %q", ErrInjection, p.String())
		}
	}
	return nil
}
