package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/careerpilot-app/credits-api/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// adminScope is the scope claim stamped on operator session tokens.
const adminScope = "admin"

// AdminSession identifies an authenticated operator.
type AdminSession struct {
	AdminID  uint64
	Username string
}

// IssueAdminToken signs a session token for an operator.
func IssueAdminToken(cfg config.JWTConfig, adminID uint64, username string) (string, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return "", ErrMissingJWTSecret
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatUint(adminID, 10),
		"username": username,
		"scope":    adminScope,
		"iat":      now.Unix(),
		"exp":      now.Add(cfg.Expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("auth: sign admin token: %w", errSign)
	}
	return signed, nil
}

// ParseAdminToken verifies an operator session token.
func ParseAdminToken(cfg config.JWTConfig, tokenString string) (AdminSession, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return AdminSession{}, ErrMissingJWTSecret
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return AdminSession{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if errParse != nil || !token.Valid {
		return AdminSession{}, ErrInvalidToken
	}

	if scope, _ := claims["scope"].(string); scope != adminScope {
		return AdminSession{}, ErrInvalidToken
	}

	subject, errSubject := claims.GetSubject()
	if errSubject != nil {
		return AdminSession{}, ErrInvalidToken
	}
	adminID, errParseID := strconv.ParseUint(strings.TrimSpace(subject), 10, 64)
	if errParseID != nil || adminID == 0 {
		return AdminSession{}, ErrInvalidToken
	}

	username, _ := claims["username"].(string)
	return AdminSession{AdminID: adminID, Username: username}, nil
}
