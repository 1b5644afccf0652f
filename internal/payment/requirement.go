package payment

import "fmt"

// Rail describes the settlement contract payments must target.
type Rail struct {
	Network  string
	Contract string
	Function string
	Asset    string
}

func DefaultRail() Rail {
	return Rail{
		Network:  "stacks:testnet",
		Contract: "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.hive-payment-splitter",
		Function: "pay-for-access",
		Asset:    "STX",
	}
}

// Requirement is the priced access descriptor returned with a
// payment-required result.
type Requirement struct {
	Method      string `json:"x402_method"`
	Network     string `json:"network"`
	Contract    string `json:"contract"`
	Function    string `json:"function"`
	Asset       string `json:"asset"`
	Payee       string `json:"payee"`
	Amount      int64  `json:"amount"`
	ItemID      string `json:"itemId"`
	CallPattern string `json:"callPattern"`
}

func (r Rail) Requirement(payee string, amount int64, itemID string) Requirement {
	return Requirement{
		Method:      "contract-call",
		Network:     r.Network,
		Contract:    r.Contract,
		Function:    r.Function,
		Asset:       r.Asset,
		Payee:       payee,
		Amount:      amount,
		ItemID:      itemID,
		CallPattern: fmt.Sprintf("%s.%s(u%d, '%s, %q)", r.Contract, r.Function, amount, payee, itemID),
	}
}

// Instruction is the human-facing sentence telling a caller what to pay.
func (q Requirement) Instruction() string {
	return fmt.Sprintf("Pay %d micro-%s to %s by calling %s, then retry with the transaction id as paymentProof",
		q.Amount, q.Asset, q.Payee, q.CallPattern)
}
