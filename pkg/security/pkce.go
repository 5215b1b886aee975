package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	verifierBytes = 32
	tokenBytes    = 16
)

type PKCE struct {
	CodeVerifier  string
	CodeChallenge string
	State         string
	Nonce         string
}

// GeneratePKCE returns a fresh verifier/challenge pair together with an
// independent state and nonce for one authorization request.
func GeneratePKCE() (*PKCE, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}

	state, err := GenerateRandomState()
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	return &PKCE{
		CodeVerifier:  verifier,
		CodeChallenge: ComputeCodeChallenge(verifier),
		State:         state,
		Nonce:         nonce,
	}, nil
}

func GenerateCodeVerifier() (string, error) {
	b, err := randomBytes(verifierBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func ComputeCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func GenerateRandomState() (string, error) {
	return randomHex("state")
}

func GenerateNonce() (string, error) {
	return randomHex("nonce")
}

func randomHex(what string) (string, error) {
	b, err := randomBytes(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", what, err)
	}
	return hex.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
