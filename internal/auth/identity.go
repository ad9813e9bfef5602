package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/careerpilot-app/credits-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingJWTSecret indicates the deployment has no JWT secret configured.
var ErrMissingJWTSecret = errors.New("auth: missing jwt secret")

// ErrInvalidToken indicates a bearer token that failed verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity describes the authenticated platform user.
type Identity struct {
	Subject string // Stable account identifier from the identity provider.
	Email   string // Email claim, may be empty.
}

// Verifier validates bearer tokens issued by the identity provider.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier from JWT settings.
func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingJWTSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Parse verifies a token and extracts the caller's identity.
func (v *Verifier) Parse(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if errParse != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject, errSubject := claims.GetSubject()
	if errSubject != nil || strings.TrimSpace(subject) == "" {
		return Identity{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	return Identity{
		Subject: strings.TrimSpace(subject),
		Email:   strings.TrimSpace(email),
	}, nil
}
