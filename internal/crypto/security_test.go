package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/formsync/internal/crypto"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSecurityRequirements(t *testing.T) {
	provider := crypto.NewProvider()

	t.Run("key size is 256 bits", func(t *testing.T) {
		assert.Equal(t, 32, crypto.KeySize)
	})

	t.Run("nonce is random for each encryption", func(t *testing.T) {
		key := randomKey(t)
		plaintext := []byte("test message")

		cipher1, err := provider.EncryptData(plaintext, key)
		require.NoError(t, err)

		cipher2, err := provider.EncryptData(plaintext, key)
		require.NoError(t, err)

		assert.NotEqual(t, cipher1, cipher2)
		assert.Len(t, cipher1, crypto.NonceSize+len(plaintext)+crypto.TagSize)

		plain1, err := provider.DecryptData(cipher1, key)
		require.NoError(t, err)
		plain2, err := provider.DecryptData(cipher2, key)
		require.NoError(t, err)

		assert.Equal(t, plaintext, plain1)
		assert.Equal(t, plaintext, plain2)
	})

	t.Run("authentication tag prevents tampering", func(t *testing.T) {
		key := randomKey(t)
		ciphertext, err := provider.EncryptData([]byte("sensitive data"), key)
		require.NoError(t, err)

		ciphertext[len(ciphertext)-1] ^= 0xFF

		_, err = provider.DecryptData(ciphertext, key)
		assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		ciphertext, err := provider.EncryptData([]byte("data"), randomKey(t))
		require.NoError(t, err)

		_, err = provider.DecryptData(ciphertext, randomKey(t))
		assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	})

	t.Run("short ciphertext rejected", func(t *testing.T) {
		_, err := provider.DecryptData(make([]byte, crypto.NonceSize), randomKey(t))
		assert.ErrorIs(t, err, crypto.ErrInvalidCiphertext)
	})

	t.Run("key size enforced", func(t *testing.T) {
		_, err := provider.EncryptData([]byte("x"), make([]byte, 16))
		assert.ErrorIs(t, err, crypto.ErrInvalidKey)
	})
}

func TestDeriveKey(t *testing.T) {
	provider := crypto.NewProvider()
	secret := randomKey(t)

	k1, err := provider.DeriveKey(secret, "a")
	require.NoError(t, err)
	k2, err := provider.DeriveKey(secret, "a")
	require.NoError(t, err)
	k3, err := provider.DeriveKey(secret, "b")
	require.NoError(t, err)

	assert.Len(t, k1, crypto.KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, secret, k1)

	_, err = provider.DeriveKey([]byte("short"), "a")
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}
