package oidc

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hashicorp/cap-cognito/sdk/id"
	"golang.org/x/crypto/chacha20poly1305"
)

// cipherVersion prefixes every ciphertext so the format can change later.
const cipherVersion = "v1."

// TokenCipher encrypts and authenticates tokens stored on the client, such
// as refresh tokens in cookies. Its key is the base64url encoded SHA-256
// digest of the application secret, and the cipher is XChaCha20-Poly1305.
// It's safe for concurrent use.
type TokenCipher struct {
	aead cipher.AEAD
}

// DeriveKey returns the key a TokenCipher uses for secret: the SHA-256
// digest of the secret, base64url encoded.
func DeriveKey(secret SecretKey) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// NewTokenCipher creates a new TokenCipher keyed from secret.
func NewTokenCipher(secret SecretKey) (*TokenCipher, error) {
	const op = "oidc.NewTokenCipher"
	if secret == "" {
		return nil, fmt.Errorf("%s: secret key is empty: %w: %w", op, ErrConfiguration, ErrInvalidParameter)
	}
	key, err := base64.URLEncoding.DecodeString(DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode key: %w", op, err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt returns an opaque, url safe ciphertext of plaintext. A fresh nonce
// is used for every call, so encrypting the same plaintext twice gives
// different ciphertexts.
//
// Supported options: WithAssociatedData
func (c *TokenCipher) Encrypt(plaintext string, opt ...Option) (string, error) {
	const op = "TokenCipher.Encrypt"
	opts := getCipherOpts(opt...)
	nonce, err := id.RandomBytes(c.aead.NonceSize())
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), opts.withAssociatedData)
	return cipherVersion + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext of a ciphertext from Encrypt. Any change to
// the ciphertext, or different associated data, is an ErrDecryption and no
// plaintext is returned.
//
// Supported options: WithAssociatedData
func (c *TokenCipher) Decrypt(ciphertext string, opt ...Option) (string, error) {
	const op = "TokenCipher.Decrypt"
	opts := getCipherOpts(opt...)
	encoded, ok := strings.CutPrefix(ciphertext, cipherVersion)
	if !ok {
		return "", fmt.Errorf("%s: unknown ciphertext version: %w", op, ErrDecryption)
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%s: ciphertext is not base64url: %w", op, ErrDecryption)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", fmt.Errorf("%s: ciphertext is too short: %w", op, ErrDecryption)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, opts.withAssociatedData)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrDecryption)
	}
	return string(plaintext), nil
}
