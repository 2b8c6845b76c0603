package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// TokenCipher seals and opens OAuth tokens with AES-256-GCM. The sealed
// wire format is "base64(nonce):base64(ciphertext)", matching the layout
// credential documents already use.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from the shared secret key. Keys shorter
// than 32 bytes are zero-padded and longer ones truncated, so the key
// material stored in Secret Manager round-trips regardless of length.
func NewTokenCipher(key string) (*TokenCipher, error) {
	if key == "" {
		return nil, fmt.Errorf("crypto: empty encryption key")
	}
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(key))

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals a plaintext token.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed token produced by Encrypt.
func (c *TokenCipher) Decrypt(sealed string) (string, error) {
	ivPart, ctPart, ok := strings.Cut(sealed, ":")
	if !ok {
		return "", fmt.Errorf("crypto: invalid sealed token format")
	}
	nonce, err := base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return "", fmt.Errorf("crypto: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("crypto: bad nonce length %d", len(nonce))
	}
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(plaintext), nil
}
