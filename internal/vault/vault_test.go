package vault_test

import (
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbdeck/internal/vault"
)

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(key)
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, plain := range []string{"hunter2", "päss wörd", "p@ss:with:colons", strings.Repeat("x", 4096)} {
		tagged, err := v.Protect(plain)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(tagged, vault.Prefix), "protected value must carry the tag")
		assert.NotContains(t, tagged, plain)

		got, err := v.Reveal(tagged)
		require.NoError(t, err)
		assert.Equal(t, plain, got)
	}
}

func TestVault_ProtectIsIdempotent(t *testing.T) {
	v := newTestVault(t)

	tagged, err := v.Protect("secret")
	require.NoError(t, err)

	again, err := v.Protect(tagged)
	require.NoError(t, err)
	assert.Equal(t, tagged, again, "already-tagged values must not be double-wrapped")
}

func TestVault_EmptyPassesThrough(t *testing.T) {
	v := newTestVault(t)

	tagged, err := v.Protect("")
	require.NoError(t, err)
	assert.Equal(t, "", tagged)

	plain, err := v.Reveal("")
	require.NoError(t, err)
	assert.Equal(t, "", plain)
}

func TestVault_RevealUntaggedPassesThrough(t *testing.T) {
	// Records saved before encryption existed hold plaintext passwords.
	v := newTestVault(t)

	got, err := v.Reveal("legacy-plaintext")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext", got)
}

func TestVault_RevealCorruptedCiphertext(t *testing.T) {
	v := newTestVault(t)

	tagged, err := v.Protect("secret")
	require.NoError(t, err)

	// Flip a character in the ciphertext body.
	corrupted := tagged[:len(tagged)-2] + "=="
	_, err = v.Reveal(corrupted)
	require.Error(t, err)

	var decErr *vault.DecryptionError
	assert.True(t, errors.As(err, &decErr))
}

func TestVault_RevealForeignCiphertext(t *testing.T) {
	a := newTestVault(t)
	b := newTestVault(t)

	tagged, err := a.Protect("secret")
	require.NoError(t, err)

	_, err = b.Reveal(tagged)
	require.Error(t, err)

	var decErr *vault.DecryptionError
	assert.True(t, errors.As(err, &decErr))
}

func TestVault_RevealBadBase64(t *testing.T) {
	v := newTestVault(t)

	_, err := v.Reveal(vault.Prefix + "!!not base64!!")
	require.Error(t, err)

	var decErr *vault.DecryptionError
	assert.True(t, errors.As(err, &decErr))
}

func TestVault_NonceVariesPerCall(t *testing.T) {
	v := newTestVault(t)

	first, err := v.Protect("secret")
	require.NoError(t, err)
	second, err := v.Protect("secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "Protect must use a fresh nonce per call")

	for _, tagged := range []string{first, second} {
		got, err := v.Reveal(tagged)
		require.NoError(t, err)
		assert.Equal(t, "secret", got)
	}
}

func TestVault_KeySizeEnforced(t *testing.T) {
	_, err := vault.New([]byte("short"))
	assert.Error(t, err)
}

func TestVault_NewFromSecret(t *testing.T) {
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	v1, err := vault.NewFromSecret([]byte("machine secret"), salt)
	require.NoError(t, err)
	v2, err := vault.NewFromSecret([]byte("machine secret"), salt)
	require.NoError(t, err)

	// Same secret and salt derive the same key: v2 can read v1's output.
	tagged, err := v1.Protect("secret")
	require.NoError(t, err)
	got, err := v2.Reveal(tagged)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	_, err = vault.NewFromSecret(nil, salt)
	assert.Error(t, err)
	_, err = vault.NewFromSecret([]byte("x"), []byte("tiny"))
	assert.Error(t, err)
}
