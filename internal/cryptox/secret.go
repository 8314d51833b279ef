package cryptox

import (
	"crypto/subtle"
	"errors"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

// verifierPlaintext is sealed at setup; opening it proves a key is right
// without touching any diary content.
var verifierPlaintext = []byte("diarykeeper/verifier/v1")

// HashSecret hashes a low-entropy secret (login password, recovery answer,
// recovery key) with argon2id.
func HashSecret(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// VerifySecret reports whether secret hashes to want under salt.
func VerifySecret(secret, salt, want []byte) bool {
	got := HashSecret(secret, salt)
	defer common.WipeByteArray(got)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func verifierAAD(principal string) []byte {
	return AAD(principal, "verifier")
}

// NewVerifier seals the fixed verifier constant under key, bound to principal.
func NewVerifier(key []byte, principal string) (*Envelope, error) {
	return Seal(AlgAES256GCM, key, verifierPlaintext, verifierAAD(principal))
}

// CheckVerifier returns common.ErrWrongPassword when key does not open the
// principal's verifier.
func CheckVerifier(key []byte, env *Envelope, principal string) error {
	pt, err := Open(key, env, verifierAAD(principal))
	if err != nil {
		if errors.Is(err, common.ErrIntegrity) {
			return common.ErrWrongPassword
		}
		return err
	}
	defer common.WipeByteArray(pt)
	if subtle.ConstantTimeCompare(pt, verifierPlaintext) != 1 {
		return common.ErrWrongPassword
	}
	return nil
}
