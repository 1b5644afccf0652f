package models

import "time"

// Agent is a registered polling worker. Trusted agents may publish skills
// without a provider signature.
type Agent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SecretHash string    `json:"-"`
	Trusted    bool      `json:"trusted"`
	CreatedAt  time.Time `json:"createdAt"`
}
