package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySecret        = errors.New("encryption secret is required")
	ErrMalformedBlob      = errors.New("malformed ciphertext blob")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrEmptyPlaintext     = errors.New("plaintext is required")
	errCiphertextTooShort = errors.New("ciphertext shorter than nonce")
)

// Cipher encrypts and decrypts master credentials with AES-256-GCM. The
// key is derived exactly once, at construction, from the process-wide
// secret and is immutable thereafter.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the symmetric key as SHA-256 of the configured secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext with a fresh random nonce. The result is one
// opaque value, "nonceHex:ciphertextHex", so each call produces a
// distinct blob even for identical plaintexts.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *Cipher) Decrypt(blob string) (string, error) {
	nonceHex, sealedHex, found := strings.Cut(blob, ":")
	if !found {
		return "", ErrMalformedBlob
	}

	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return "", ErrMalformedBlob
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return "", ErrMalformedBlob
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", errCiphertextTooShort
	}

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
