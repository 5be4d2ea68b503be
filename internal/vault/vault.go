package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Prefix tags encrypted values. It is a format marker so pre-existing
// plaintext records can be told apart from ciphertext, not a security boundary.
const Prefix = "enc:"

const (
	keySize    = 32 // AES-256
	kdfRounds  = 100_000
	kdfSaltLen = 16
)

// DecryptionError reports a tagged value that could not be decrypted
// (corrupted or foreign ciphertext). Callers treat it as a connection
// failure since connecting cannot proceed without a usable password.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("vault: decrypt credential: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Vault encrypts and decrypts credential fields with AES-256-GCM.
// It performs no I/O; both transforms are pure.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewFromSecret derives the key from an arbitrary-length secret and salt
// with PBKDF2-SHA256.
func NewFromSecret(secret, salt []byte) (*Vault, error) {
	if len(secret) == 0 {
		return nil, errors.New("vault: empty secret")
	}
	if len(salt) < kdfSaltLen {
		return nil, fmt.Errorf("vault: salt must be at least %d bytes", kdfSaltLen)
	}
	key := pbkdf2.Key(secret, salt, kdfRounds, keySize, sha256.New)
	return New(key)
}

// Protect encrypts a plaintext credential and tags it with the enc: prefix.
// Empty and already-tagged values pass through unchanged, so repeated save
// operations cannot double-wrap a stored password.
func (v *Vault) Protect(value string) (string, error) {
	if value == "" || strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(value), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Reveal decrypts a tagged credential. Untagged values are returned as-is,
// which lets records created before encryption was introduced keep working.
func (v *Vault) Reveal(value string) (string, error) {
	if value == "" || !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", &DecryptionError{Err: errors.New("ciphertext shorter than nonce")}
	}
	plain, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return string(plain), nil
}
