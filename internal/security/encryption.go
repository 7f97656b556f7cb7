// Package security seals credentials at rest and masks secrets for display.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "enc:v1:"

// ErrSealed is returned when a sealed value is read without a key.
var ErrSealed = errors.New("security: value is sealed and no key is configured")

// Encryptor seals values with AES-256-GCM. The storage key name is bound as
// additional data, so a ciphertext moved to another key fails to open.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives a 32-byte AES key from passphrase with SHA-256.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if len(passphrase) < 8 {
		return nil, fmt.Errorf("passphrase must be at least 8 characters")
	}
	sum := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext for storage under name.
func (e *Encryptor) Seal(name string, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ct := e.aead.Seal(nonce, nonce, plaintext, []byte(name))
	return []byte(sealedPrefix + base64.StdEncoding.EncodeToString(ct)), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is so
// that plaintext entries written before a key was configured stay readable.
func (e *Encryptor) Open(name string, stored []byte) ([]byte, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(string(stored[len(sealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	n := e.aead.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	pt, err := e.aead.Open(nil, data[:n], data[n:], []byte(name))
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", name, err)
	}
	return pt, nil
}

// IsSealed reports whether a stored value carries the sealed prefix.
func IsSealed(stored []byte) bool {
	return strings.HasPrefix(string(stored), sealedPrefix)
}

// MaskSecret shows the first and last showChars characters of a secret and
// replaces the middle with asterisks.
func MaskSecret(value string, showChars int) string {
	if len(value) <= showChars*2 {
		return strings.Repeat("*", len(value))
	}
	return value[:showChars] + strings.Repeat("*", len(value)-showChars*2) + value[len(value)-showChars:]
}
