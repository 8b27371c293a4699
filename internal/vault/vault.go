package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadCiphertext is returned when a stored secret cannot be decrypted,
// usually because the seal key changed or the row is corrupt.
var ErrBadCiphertext = errors.New("ciphertext cannot be opened")

// Opener seals and opens wallet signing secrets with XChaCha20-Poly1305.
// Ciphertexts are stored as base64(nonce || sealed).
type Opener struct {
	key []byte
}

// New returns an Opener for the given 32-byte key.
func New(key []byte) (*Opener, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Opener{key: key}, nil
}

// NewFromEnv reads the hex-encoded seal key from WALLET_SEAL_KEY.
func NewFromEnv() (*Opener, error) {
	raw := os.Getenv("WALLET_SEAL_KEY")
	if raw == "" {
		return nil, errors.New("WALLET_SEAL_KEY not set")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("WALLET_SEAL_KEY is not hex: %w", err)
	}
	return New(key)
}

// Seal encrypts a secret for storage.
func (o *Opener) Seal(secret string) (string, error) {
	aead, err := chacha20poly1305.NewX(o.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored ciphertext back into the signing secret.
func (o *Opener) Open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrBadCiphertext
	}
	aead, err := chacha20poly1305.NewX(o.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrBadCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	secret, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrBadCiphertext
	}
	return string(secret), nil
}
