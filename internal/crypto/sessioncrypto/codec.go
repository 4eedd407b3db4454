// Package sessioncrypto encrypts issued session tokens before they are cached.
package sessioncrypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/cms-admin/internal/errs"
	"github.com/and161185/cms-admin/internal/model"
)

// KeyLen is the required key size in bytes.
const KeyLen = chacha20poly1305.KeySize

// Codec seals strings with XChaCha20-Poly1305 under a fixed key.
// Every Encode draws a fresh random 24-byte nonce, so nonces never repeat in practice.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec constructs a Codec for a KeyLen-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeyLen {
		return nil, fmt.Errorf("session key: got %d bytes, want %d", len(key), KeyLen)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Codec{aead: aead}, nil
}

// DeriveKey decodes a hex configuration secret into a KeyLen-byte key.
func DeriveKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	if len(key) != KeyLen {
		return nil, fmt.Errorf("session key: got %d bytes, want %d", len(key), KeyLen)
	}
	return key, nil
}

// GenerateKey returns a fresh random key, hex-encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeyLen)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Encode encrypts plaintext under a fresh nonce.
func (c *Codec) Encode(plaintext string) (model.EncryptedSession, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return model.EncryptedSession{}, err
	}
	ct := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return model.EncryptedSession{
		IV:            hex.EncodeToString(nonce),
		EncryptedData: hex.EncodeToString(ct),
	}, nil
}

// Decode opens a blob produced by Encode. Tampering, truncation, a wrong key
// or a wrong nonce all yield errs.ErrDecryption.
func (c *Codec) Decode(s model.EncryptedSession) (string, error) {
	nonce, err := hex.DecodeString(s.IV)
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad iv", errs.ErrDecryption)
	}
	ct, err := hex.DecodeString(s.EncryptedData)
	if err != nil || len(ct) < c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad ciphertext", errs.ErrDecryption)
	}
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDecryption, err)
	}
	return string(pt), nil
}
