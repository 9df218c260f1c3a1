package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the identity attached to every authenticated request.
// Tokens are minted by the identity provider; this service only verifies them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}
