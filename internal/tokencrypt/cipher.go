// Package tokencrypt encrypts OAuth tokens at rest.
//
// Each value is stored as hex(iv) + ":" + hex(ciphertext), so decrypting a
// single column never depends on any other stored state.
package tokencrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLen    = 32
	separator = ":"
)

// ErrMalformed is returned for stored values that are not iv:ciphertext pairs.
var ErrMalformed = errors.New("malformed encrypted token")

// Cipher is an AES-256-GCM cipher keyed by the process-wide token secret.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES key from secret with HKDF-SHA256.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("token encryption secret is empty")
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("casefile oauth tokens")), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(iv) + separator + hex.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(value string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(value, separator)
	if !ok || ivHex == "" || ctHex == "" {
		return "", ErrMalformed
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != c.aead.NonceSize() {
		return "", ErrMalformed
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", ErrMalformed
	}
	plain, err := c.aead.Open(nil, iv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plain), nil
}
