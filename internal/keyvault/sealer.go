package keyvault

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatPlain  byte = 0x00
	formatSealed byte = 0x01

	hkdfInfo = "push-relay keyvault v1"
)

// Sealer encrypts private keys at rest with XChaCha20-Poly1305.
// The site id is bound as additional data, so a sealed key only opens for its own site.
// A Sealer without a master key stores keys unencrypted.
type Sealer struct {
	key []byte
}

// NewSealer derives the sealing key from masterKey. An empty masterKey disables sealing.
func NewSealer(masterKey string) (*Sealer, error) {
	if masterKey == "" {
		return &Sealer{}, nil
	}
	if len(masterKey) < 32 {
		return nil, ErrMasterKeyShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return &Sealer{key: key}, nil
}

// Enabled reports whether keys are encrypted at rest.
func (s *Sealer) Enabled() bool {
	return len(s.key) > 0
}

// Seal returns the stored form of privateKey for siteID.
func (s *Sealer) Seal(siteID string, privateKey []byte) ([]byte, error) {
	if !s.Enabled() {
		return append([]byte{formatPlain}, privateKey...), nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(privateKey)+aead.Overhead())
	out[0] = formatSealed
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[1:], privateKey, []byte(siteID)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(siteID string, stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, ErrSealedKey
	}

	switch stored[0] {
	case formatPlain:
		return stored[1:], nil
	case formatSealed:
		if !s.Enabled() {
			return nil, fmt.Errorf("%w: master key not configured", ErrSealedKey)
		}
	default:
		return nil, ErrSealedKey
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	body := stored[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedKey
	}
	nonce, ciphertext := body[:aead.NonceSize()], body[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(siteID))
	if err != nil {
		return nil, ErrSealedKey
	}
	return plain, nil
}
