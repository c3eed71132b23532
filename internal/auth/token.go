package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and validates admin API tokens
type TokenManager struct {
	secret string
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}
}

// Expiry returns the lifetime of issued tokens
func (tm *TokenManager) Expiry() time.Duration {
	return tm.expiry
}

// GenerateAdminToken creates a short-lived admin token with a unique JTI
func (tm *TokenManager) GenerateAdminToken(username string) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:     models.TokenTypeAdmin,
		Username: username,
		Role:     models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithTimeFunc(tm.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type != models.TokenTypeAdmin {
		return nil, fmt.Errorf("invalid token: unexpected type %q", claims.Type)
	}
	if claims.Role != models.RoleAdmin {
		return nil, models.ErrForbidden
	}

	return claims, nil
}
