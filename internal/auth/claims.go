package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type IdentityClaims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// DecodeIdentityClaims reads name and email from the payload of an ID token
// WITHOUT verifying its signature. The result is for display only and must
// never drive an authorization decision.
func DecodeIdentityClaims(idToken string) (*IdentityClaims, bool) {
	if idToken == "" {
		return nil, false
	}

	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(idToken, claims)
	// An unknown or missing alg only matters for verification.
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return nil, false
	}

	var out IdentityClaims
	var found bool
	if name, ok := claims["name"].(string); ok {
		out.Name = name
		found = true
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
		found = true
	}
	if !found {
		return nil, false
	}

	return &out, true
}
