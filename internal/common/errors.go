// Package common defines shared constants and sentinel errors used across
// client and server layers of diarykeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrConflict means a record changed between reading and writing it.
	// The write was not applied; retrying is safe.
	ErrConflict = errors.New("record changed concurrently")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrUserExists     = errors.New("user already exists")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidInput reports malformed parameters. It is returned before
	// any I/O takes place.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWrongPassword means the derived key failed the verifier check.
	ErrWrongPassword = errors.New("wrong diary password")

	// ErrIntegrity is returned when an envelope fails authentication or its
	// stored content hash does not match. Never retried with another key.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrDiaryLocked is returned by content operations while the diary is
	// not unlocked.
	ErrDiaryLocked = errors.New("diary is locked")

	// State machine misuse.
	ErrAlreadySetUp = errors.New("diary already set up")
	ErrNotSetUp     = errors.New("diary not set up")

	// ErrRecoveryFailed covers any security answer or recovery key mismatch.
	ErrRecoveryFailed = errors.New("recovery failed")
)
