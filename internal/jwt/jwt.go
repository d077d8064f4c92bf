// Package jwt emite y valida los tokens HS256 de administración del relay.
package jwt

import (
	"errors"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid_jwt")
	ErrInvalidIssuer = errors.New("invalid_issuer")
	ErrMissingRole   = errors.New("missing_role")
)

// Leeway tolera desfasaje de reloj en exp/nbf.
const Leeway = 30 * time.Second

// Issue firma un token con sub, roles y exp = now+ttl.
func Issue(secret []byte, issuer, sub string, roles []string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt: empty secret")
	}
	now := time.Now()
	claims := jwtv5.MapClaims{
		"sub":   sub,
		"roles": roles,
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(secret)
}

// ParseHS256 valida firma, exp/nbf e iss (si expectedIss != "") y devuelve las claims.
func ParseHS256(token string, secret []byte, expectedIss string) (map[string]any, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithLeeway(Leeway),
		jwtv5.WithExpirationRequired(),
	}
	if expectedIss != "" {
		opts = append(opts, jwtv5.WithIssuer(expectedIss))
	}
	tok, err := jwtv5.Parse(token, func(*jwtv5.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenInvalidIssuer) {
			return nil, ErrInvalidIssuer
		}
		return nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

// HasRole acepta roles como ["a","b"] o como string separado por espacios.
func HasRole(claims map[string]any, role string) bool {
	var roles []string
	switch v := claims["roles"].(type) {
	case []any:
		for _, r := range v {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	case []string:
		roles = v
	case string:
		roles = strings.Fields(v)
	}
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
