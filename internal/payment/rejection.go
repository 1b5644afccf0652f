package payment

import "fmt"

// Rejection reasons.
const (
	ReasonNotFound       = "proof_not_found"
	ReasonInvalid        = "proof_invalid"
	ReasonNotFinalized   = "not_finalized"
	ReasonWrongTarget    = "wrong_target"
	ReasonPayeeMismatch  = "payee_mismatch"
	ReasonAmountMismatch = "amount_mismatch"
	ReasonItemMismatch   = "item_mismatch"
)

// Rejection classes: the proof itself is unusable, or it is a real payment
// for something other than what was required.
const (
	ClassProofInvalid = "proof_invalid"
	ClassMismatch     = "mismatch"
)

// Rejection is returned when a proof does not settle the requirement. It is
// a normal control-flow result, not a transport failure.
type Rejection struct {
	Reason string
	Class  string
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "payment rejected: " + r.Reason
	}
	return fmt.Sprintf("payment rejected: %s: %s", r.Reason, r.Detail)
}

func Reject(reason, detail string) *Rejection {
	class := ClassProofInvalid
	switch reason {
	case ReasonWrongTarget, ReasonPayeeMismatch, ReasonAmountMismatch, ReasonItemMismatch:
		class = ClassMismatch
	}
	return &Rejection{Reason: reason, Class: class, Detail: detail}
}
