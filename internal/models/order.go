package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OrderStatusPending = "pending"
	OrderStatusSettled = "settled"
)

type Order struct {
	ID               uuid.UUID `json:"id"`
	PayerIdentity    string    `json:"payerIdentity"`
	SkillID          uuid.UUID `json:"skillId"`
	PaymentReference string    `json:"paymentReference"`
	AmountUnits      int64     `json:"amountUnits"`
	Status           string    `json:"status"`
	Simulated        bool      `json:"simulated"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
