// Package payment decides whether a payment proof settles a priced
// access requirement.
package payment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hive402/backend/internal/telemetry"
)

const DefaultSimulatedPrefix = "simulated_tx_"

// Settlement describes an accepted proof.
type Settlement struct {
	Reference string
	Simulated bool
}

// Verifier accepts simulated proofs only when AllowSimulated is set. That
// path bypasses the rail entirely and must stay off in production.
type Verifier struct {
	Rail            Rail
	Lookup          TxLookup
	AllowSimulated  bool
	SimulatedPrefix string
}

// Verify returns a *Rejection when the proof does not settle req, and a
// plain error when the rail could not be consulted.
func (v *Verifier) Verify(ctx context.Context, proof string, req Requirement) (*Settlement, error) {
	proof = strings.TrimSpace(proof)
	prefix := v.SimulatedPrefix
	if prefix == "" {
		prefix = DefaultSimulatedPrefix
	}
	if strings.HasPrefix(proof, prefix) {
		if !v.AllowSimulated {
			telemetry.PaymentVerifications.WithLabelValues("simulated", "rejected").Inc()
			return nil, Reject(ReasonInvalid, "simulated proofs are disabled")
		}
		telemetry.PaymentVerifications.WithLabelValues("simulated", "accepted").Inc()
		return &Settlement{Reference: proof, Simulated: true}, nil
	}

	s, err := v.verifyLive(ctx, proof, req)
	result := "accepted"
	var rej *Rejection
	switch {
	case errors.As(err, &rej):
		result = "rejected"
	case err != nil:
		result = "error"
	}
	telemetry.PaymentVerifications.WithLabelValues("live", result).Inc()
	return s, err
}

func (v *Verifier) verifyLive(ctx context.Context, proof string, req Requirement) (*Settlement, error) {
	txID, ok := NormalizeTxID(proof)
	if !ok {
		return nil, Reject(ReasonInvalid, "not a transaction id")
	}
	if v.Lookup == nil {
		return nil, errors.New("no payment rail configured")
	}

	tx, err := v.Lookup.LookupTx(ctx, txID)
	switch {
	case errors.Is(err, ErrTxNotFound):
		return nil, Reject(ReasonNotFound, txID)
	case errors.Is(err, ErrTxMalformed):
		return nil, Reject(ReasonInvalid, txID)
	case err != nil:
		return nil, fmt.Errorf("lookup %s: %w", txID, err)
	}

	switch tx.Status {
	case "success":
	case "pending":
		return nil, Reject(ReasonNotFinalized, "transaction is pending")
	default:
		return nil, Reject(ReasonInvalid, "transaction status "+tx.Status)
	}

	if tx.Type != "contract_call" || tx.ContractID != req.Contract || tx.Function != req.Function {
		return nil, Reject(ReasonWrongTarget, fmt.Sprintf("%s.%s", tx.ContractID, tx.Function))
	}

	provider, ok := callArg(tx.Args, 1)
	if !ok || parsePrincipalRepr(provider.Repr) != req.Payee {
		return nil, Reject(ReasonPayeeMismatch, provider.Repr)
	}

	amountArg, ok := callArg(tx.Args, 0)
	if !ok {
		return nil, Reject(ReasonAmountMismatch, "missing amount")
	}
	amount, err := parseUintRepr(amountArg.Repr)
	if err != nil {
		return nil, Reject(ReasonInvalid, err.Error())
	}
	if amount != req.Amount {
		return nil, Reject(ReasonAmountMismatch, fmt.Sprintf("paid %d, required %d", amount, req.Amount))
	}

	itemArg, ok := callArg(tx.Args, 2)
	if !ok {
		return nil, Reject(ReasonItemMismatch, "missing item")
	}
	item, err := parseStringRepr(itemArg.Repr)
	if err != nil || item != req.ItemID {
		return nil, Reject(ReasonItemMismatch, itemArg.Repr)
	}

	return &Settlement{Reference: txID}, nil
}

// NormalizeTxID returns the canonical 0x-prefixed lowercase form of a
// 32-byte transaction id.
func NormalizeTxID(s string) (string, bool) {
	raw := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(raw) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", false
	}
	return "0x" + raw, true
}
