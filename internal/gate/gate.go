// Package gate implements payment-gated retrieval of skill content:
// REQUESTED -> IDENTITY_CHECKED -> PAYMENT_CHECKED -> RELEASED, with
// identity rejection and payment-required exits.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hive402/backend/internal/auth"
	"github.com/hive402/backend/internal/events"
	"github.com/hive402/backend/internal/identity"
	"github.com/hive402/backend/internal/models"
	"github.com/hive402/backend/internal/payment"
	"github.com/hive402/backend/internal/repository"
	"github.com/hive402/backend/internal/telemetry"
)

var (
	ErrSkillNotFound     = errors.New("skill not found")
	ErrChallengeMismatch = errors.New("challenge does not match skill")
	ErrIdentityRejected  = errors.New("identity rejected")
	ErrRailUnavailable   = errors.New("payment rail unavailable")
)

type SkillLookup interface {
	GetSkill(ctx context.Context, id uuid.UUID) (*models.Skill, error)
}

type PaymentVerifier interface {
	Verify(ctx context.Context, proof string, req payment.Requirement) (*payment.Settlement, error)
}

// OrderLedger records settled orders. It is an audit trail: a reference
// presented by several payers settles one order per payer.
type OrderLedger interface {
	Settle(ctx context.Context, payer string, skillID uuid.UUID, ref string, amount int64, simulated bool) (*models.Order, error)
}

type KeyMinter interface {
	Mint(identity, skillID string, simulated bool) (*auth.AccessKey, error)
}

// SignatureVerifier checks that publicKey owns claimedIdentity and signed message.
type SignatureVerifier func(claimedIdentity, publicKey, signature, message string) error

type Request struct {
	SkillID         string
	ClaimedIdentity string
	PublicKey       string
	Signature       string
	Challenge       string
	PaymentProof    string
}

type Outcome string

const (
	OutcomeReleased        Outcome = "released"
	OutcomePaymentRequired Outcome = "payment_required"
)

// Result is either a release or a payment-required descriptor. Rejection is
// set when a proof was supplied but did not settle the requirement.
type Result struct {
	Outcome     Outcome
	Requirement *payment.Requirement
	Rejection   *payment.Rejection
	Release     *Release
}

type Release struct {
	SkillID            uuid.UUID
	Title              string
	ContentReference   string
	AccessKey          string
	AccessKeyExpiresAt time.Time
	OrderID            uuid.UUID
	Simulated          bool
	Timestamp          time.Time
}

type Gate struct {
	skills    SkillLookup
	verifier  PaymentVerifier
	ledger    OrderLedger
	keys      KeyMinter
	rail      payment.Rail
	verifySig SignatureVerifier
	events    events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Gate)

func WithSignatureVerifier(v SignatureVerifier) Option { return func(g *Gate) { g.verifySig = v } }
func WithEvents(p events.Publisher) Option { return func(g *Gate) { g.events = p } }
func WithLogger(l *slog.Logger) Option { return func(g *Gate) { g.logger = l } }
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

func New(skills SkillLookup, verifier PaymentVerifier, orders OrderLedger, keys KeyMinter, rail payment.Rail, opts ...Option) *Gate {
	g := &Gate{
		skills:    skills,
		verifier:  verifier,
		ledger:    orders,
		keys:      keys,
		rail:      rail,
		verifySig: identity.Verify,
		events:    events.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ingest runs one synchronous round of checks. Cheap checks run first: the
// challenge is compared before any signature work.
func (g *Gate) Ingest(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := telemetry.Tracer("gate").Start(ctx, "gate.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("skill.id", req.SkillID))
	defer func() {
		outcome, reason := outcomeLabels(res, err)
		telemetry.GateIngests.WithLabelValues(outcome, reason).Inc()
		span.SetAttributes(attribute.String("gate.outcome", outcome), attribute.String("gate.reason", reason))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	// REQUESTED
	skill, err := g.lookupSkill(ctx, req.SkillID)
	if err != nil {
		return nil, err
	}
	if req.Challenge != identity.DeriveChallenge(req.SkillID) {
		return nil, ErrChallengeMismatch
	}
	if err := g.verifySig(req.ClaimedIdentity, req.PublicKey, req.Signature, req.Challenge); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityRejected, err)
	}

	// IDENTITY_CHECKED
	requirement := g.rail.Requirement(skill.Payee(), skill.PriceUnits, skill.ID.String())
	proof := strings.TrimSpace(req.PaymentProof)
	if proof == "" {
		return &Result{Outcome: OutcomePaymentRequired, Requirement: &requirement}, nil
	}

	settlement, err := g.verifier.Verify(ctx, proof, requirement)
	if err != nil {
		var rej *payment.Rejection
		if errors.As(err, &rej) {
			g.logger.Info("payment proof rejected", "skill_id", skill.ID, "identity", req.ClaimedIdentity, "reason", rej.Reason)
			return paymentRequired(requirement, rej), nil
		}
		return nil, fmt.Errorf("%w: %w", ErrRailUnavailable, err)
	}

	// PAYMENT_CHECKED
	order, err := g.ledger.Settle(ctx, req.ClaimedIdentity, skill.ID, settlement.Reference, requirement.Amount, settlement.Simulated)
	if err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}
	key, err := g.keys.Mint(req.ClaimedIdentity, skill.ID.String(), settlement.Simulated)
	if err != nil {
		return nil, err
	}

	// RELEASED
	now := g.now()
	if err := g.events.Publish(ctx, events.Event{Kind: events.SkillReleased, SkillID: skill.ID.String(), Identity: req.ClaimedIdentity, At: now}); err != nil {
		g.logger.Warn("publish release event", "error", err)
	}
	return &Result{
		Outcome: OutcomeReleased,
		Release: &Release{
			SkillID:            skill.ID,
			Title:              skill.Title,
			ContentReference:   skill.ContentReference,
			AccessKey:          key.Token,
			AccessKeyExpiresAt: key.ExpiresAt,
			OrderID:            order.ID,
			Simulated:          settlement.Simulated,
			Timestamp:          now,
		},
	}, nil
}

func (g *Gate) lookupSkill(ctx context.Context, rawID string) (*models.Skill, error) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrSkillNotFound
	}
	skill, err := g.skills.GetSkill(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSkillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load skill: %w", err)
	}
	return skill, nil
}

func paymentRequired(req payment.Requirement, rej *payment.Rejection) *Result {
	return &Result{Outcome: OutcomePaymentRequired, Requirement: &req, Rejection: rej}
}

// Reason names the failure in err for callers and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSkillNotFound):
		return "not_found"
	case errors.Is(err, ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, identity.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, identity.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, identity.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ErrIdentityRejected):
		return "identity_rejected"
	case errors.Is(err, ErrRailUnavailable):
		return "rail_unavailable"
	}
	return "internal"
}

func outcomeLabels(res *Result, err error) (string, string) {
	if err != nil {
		return "error", Reason(err)
	}
	if res.Rejection != nil {
		return string(res.Outcome), res.Rejection.Reason
	}
	return string(res.Outcome), ""
}
