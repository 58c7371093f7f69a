package vault_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subkeyhq/gateway/internal/vault"
)

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := vault.NewCipher("test-process-secret")
	require.NoError(t, err)

	secrets := []string{
		"sk-upstream-credential",
		"a",
		strings.Repeat("x", 4096),
		"key with spaces and unicode éè",
	}

	for _, secret := range secrets {
		blob, err := cipher.Encrypt(secret)
		require.NoError(t, err)

		plaintext, err := cipher.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, secret, plaintext)
	}
}

func TestCipherFreshNonce(t *testing.T) {
	cipher, err := vault.NewCipher("test-process-secret")
	require.NoError(t, err)

	first, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same plaintext")
	require.NoError(t, err)

	// A fresh nonce per call must yield distinct blobs.
	assert.NotEqual(t, first, second)
}

func TestCipherRejectsMalformedBlobs(t *testing.T) {
	cipher, err := vault.NewCipher("test-process-secret")
	require.NoError(t, err)

	for _, blob := range []string{"", "no-separator", "zz:zz", "abcd:"} {
		_, err := cipher.Decrypt(blob)
		require.Error(t, err, "blob %q should not decrypt", blob)
	}
}

func TestCipherWrongKey(t *testing.T) {
	first, err := vault.NewCipher("secret-one")
	require.NoError(t, err)
	second, err := vault.NewCipher("secret-two")
	require.NoError(t, err)

	blob, err := first.Encrypt("plaintext")
	require.NoError(t, err)

	_, err = second.Decrypt(blob)
	assert.ErrorIs(t, err, vault.ErrDecryptionFailed)
}

func TestCipherRequiresSecret(t *testing.T) {
	_, err := vault.NewCipher("")
	assert.ErrorIs(t, err, vault.ErrEmptySecret)
}
