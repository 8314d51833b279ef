package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies the AEAD profile an envelope was sealed with.
type Algorithm uint8

const (
	// AlgAES256GCM is used for entry text and the setup verifier.
	AlgAES256GCM Algorithm = 1
	// AlgXChaCha20Poly1305 is used for media; its 24-byte nonce keeps random
	// nonces safe for large attachment counts.
	AlgXChaCha20Poly1305 Algorithm = 2
)

const TagSize = 16

func (a Algorithm) String() string {
	switch a {
	case AlgAES256GCM:
		return "aes-256-gcm"
	case AlgXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("alg(%d)", uint8(a))
	}
}

func newAEAD(alg Algorithm, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unknown algorithm %s", alg)
	}
}

// AAD builds associated data from its parts. Each part is length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func AAD(parts ...string) []byte {
	n := 0
	for _, p := range parts {
		n += 4 + len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = binary.BigEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}

// Seal encrypts plaintext under key with a fresh random nonce and returns a
// new envelope.
func Seal(alg Algorithm, key, plaintext, aad []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes: %w", KeySize, common.ErrInvalidInput)
	}
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidInput)
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - TagSize

	return &Envelope{
		Version:    EnvelopeVersion,
		Algorithm:  alg,
		Nonce:      nonce,
		Ciphertext: sealed[:split:split],
		Tag:        sealed[split:],
	}, nil
}

// Open authenticates and decrypts env. Every failure after the key length
// check is reported as common.ErrIntegrity and no plaintext is returned.
func Open(key []byte, env *Envelope, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes: %w", KeySize, common.ErrInvalidInput)
	}
	if env == nil || env.Version != EnvelopeVersion || len(env.Tag) != TagSize {
		return nil, common.ErrIntegrity
	}
	aead, err := newAEAD(env.Algorithm, key)
	if err != nil {
		return nil, common.ErrIntegrity
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, common.ErrIntegrity
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Open(nil, env.Nonce, sealed, aad)
	if err != nil {
		return nil, common.ErrIntegrity
	}
	return plaintext, nil
}
