package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	sessionKeyContext = "qf-session-v1"

	gcmNonceSize = 12
	gcmTagSize   = 16
)

var ErrMalformed = errors.New("malformed sealed value")

// DeriveKey turns the shared cookie secret into a 32-byte AES key.
func DeriveKey(secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionKeyContext))
	return mac.Sum(nil)
}

// Sealer encrypts values with AES-256-GCM. Sealed values are laid out as
// base64url(nonce[12] || tag[16] || ciphertext).
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	// Go appends the tag after the ciphertext; move it in front.
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, gcmNonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(value string) ([]byte, error) {
	combined, err := DecodeSegment(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(combined) < gcmNonceSize+gcmTagSize+1 {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}

	nonce := combined[:gcmNonceSize]
	tag := combined[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ciphertext := combined[gcmNonceSize+gcmTagSize:]

	sealed := make([]byte, 0, len(ciphertext)+gcmTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt sealed value: %w", err)
	}
	return plaintext, nil
}

// DecodeSegment decodes base64url with or without trailing padding.
func DecodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
