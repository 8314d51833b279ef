package models

import "time"

// User is an account. PasswordHash is the argon2id hash of the login
// password; it has no relation to the diary key.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
}
