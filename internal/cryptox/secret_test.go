package cryptox

import (
	"testing"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret(t *testing.T) {
	salt := []byte("0123456789abcdef")
	h := HashSecret([]byte("blue"), salt)
	assert.Len(t, h, 32)

	assert.True(t, VerifySecret([]byte("blue"), salt, h))
	assert.False(t, VerifySecret([]byte("Blue"), salt, h))
	assert.False(t, VerifySecret([]byte("blue"), []byte("fedcba9876543210"), h))
}

func TestVerifier(t *testing.T) {
	key := testKey(9)
	v, err := NewVerifier(key, "user-1")
	require.NoError(t, err)

	require.NoError(t, CheckVerifier(key, v, "user-1"))
	require.ErrorIs(t, CheckVerifier(testKey(10), v, "user-1"), common.ErrWrongPassword)
	require.ErrorIs(t, CheckVerifier(key, v, "user-2"), common.ErrWrongPassword)
}

func TestVerifier_OtherPlaintextRejected(t *testing.T) {
	key := testKey(11)
	env, err := Seal(AlgAES256GCM, key, []byte("not the constant"), verifierAAD("user-1"))
	require.NoError(t, err)
	require.ErrorIs(t, CheckVerifier(key, env, "user-1"), common.ErrWrongPassword)
}
