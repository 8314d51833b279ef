package models

import "time"

// RecoveryCredential lets a user reset the login password. It is stored
// apart from KeyMaterial and can never reproduce the diary key.
type RecoveryCredential struct {
	UserID     string
	KeyHash    []byte
	KeySalt    []byte
	Questions  []RecoveryQuestion
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type RecoveryQuestion struct {
	Position   int
	Question   string
	AnswerHash []byte
	AnswerSalt []byte
}
