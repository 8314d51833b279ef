// Package cryptox holds the diary's key derivation, authenticated encryption
// and the envelope format that carries ciphertext to storage.
package cryptox

import (
	"crypto/sha256"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize = 32

	SaltSize    = 32
	MinSaltSize = 16

	DefaultIterations     = 600_000
	RecommendedIterations = 100_000
	MaxIterations         = 10_000_000
)

// DeriveKey stretches password into a 32-byte key with PBKDF2-HMAC-SHA256.
// The same inputs always give the same key. Any password, including an
// empty one, is accepted.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("salt must be at least %d bytes: %w", MinSaltSize, common.ErrInvalidInput)
	}
	if iterations < 1 || iterations > MaxIterations {
		return nil, fmt.Errorf("iterations must be in [1, %d]: %w", MaxIterations, common.ErrInvalidInput)
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

// NewSalt returns SaltSize fresh random bytes.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}
