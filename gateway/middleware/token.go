package middleware

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"supplynet/crypto"
)

// TokenRequest describes a bearer token minted for a registry account.
type TokenRequest struct {
	Account  [20]byte
	Scopes   []string
	Issuer   string
	Audience []string
	TTL      time.Duration
}

// MintToken signs an HS256 token whose subject is the bech32 account.
func MintToken(secret string, req TokenRequest, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("auth secret not configured")
	}
	if req.TTL <= 0 {
		req.TTL = time.Hour
	}
	claims := jwt.MapClaims{
		"sub": crypto.FormatAccount(req.Account),
		"iat": now.Unix(),
		"exp": now.Add(req.TTL).Unix(),
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if len(req.Audience) > 0 {
		claims["aud"] = req.Audience
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
