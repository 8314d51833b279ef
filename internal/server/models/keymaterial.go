package models

import "time"

// KeyMaterial is everything needed to re-derive and check a user's diary
// key. Verifier is a serialized cryptox.Envelope sealed at setup.
type KeyMaterial struct {
	UserID     string
	Salt       []byte
	Iterations int
	Verifier   []byte
	Hint       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
