// Package vault encrypts and decrypts stored portal secrets with a
// symmetric key supplied at startup.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const tokenVersion byte = 0x01

var (
	// ErrMissingKey is returned when no key is configured
	ErrMissingKey = errors.New("vault: encryption key is not configured")
	// ErrInvalidKey is returned when the key is not 32 bytes of url-safe base64
	ErrInvalidKey = errors.New("vault: encryption key must be 32 bytes of url-safe base64")
	// ErrInvalidToken is returned for malformed, tampered or foreign tokens
	ErrInvalidToken = errors.New("vault: invalid token")
)

// Cipher performs authenticated symmetric encryption of short secrets.
// Tokens are url-safe base64 of version || nonce || ciphertext.
type Cipher struct {
	key []byte
}

// New builds a Cipher from a url-safe base64 key
func New(key string) (*Cipher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingKey
	}

	raw, err := decodeKey(key)
	if err != nil || len(raw) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}

	return &Cipher{key: raw}, nil
}

// GenerateKey returns a fresh random key in the format New expects
func GenerateKey() (string, error) {
	raw := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("vault: generating key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// Encrypt returns an opaque token for plaintext
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generating nonce: %w", err)
	}

	out := append([]byte{tokenVersion}, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), []byte{tokenVersion})
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt recovers the plaintext of a token produced by Encrypt
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(token), "="))
	if err != nil {
		return "", ErrInvalidToken
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("vault: %w", err)
	}

	if len(raw) < 1+aead.NonceSize()+aead.Overhead() || raw[0] != tokenVersion {
		return "", ErrInvalidToken
	}

	nonce := raw[1 : 1+aead.NonceSize()]
	plain, err := aead.Open(nil, nonce, raw[1+aead.NonceSize():], []byte{tokenVersion})
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}

// EncryptOptional encrypts a value that may be absent. nil stays nil.
func (c *Cipher) EncryptOptional(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	token, err := c.Encrypt(*plaintext)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DecryptOptional decrypts a value that may be absent. nil stays nil.
func (c *Cipher) DecryptOptional(token *string) (*string, error) {
	if token == nil {
		return nil, nil
	}
	plain, err := c.Decrypt(*token)
	if err != nil {
		return nil, err
	}
	return &plain, nil
}

func decodeKey(key string) ([]byte, error) {
	if strings.HasSuffix(key, "=") {
		return base64.URLEncoding.DecodeString(key)
	}
	return base64.RawURLEncoding.DecodeString(key)
}
