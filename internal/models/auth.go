package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenTypeAdmin marks tokens issued to operators of the admin API
const TokenTypeAdmin = "admin"

// RoleAdmin is the only role the admin API accepts
const RoleAdmin = "admin"

// TokenClaims are the JWT claims carried by admin API tokens
type TokenClaims struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminCredentials is the single operator account configured for the admin API
type AdminCredentials struct {
	Username     string
	PasswordHash string
}
