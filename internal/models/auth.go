package models

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole labels the caller's role as asserted by the identity service. Roles
// are carried for auditing; authorization decisions stay with collaborators.
type UserRole string

const (
	RoleStaff    UserRole = "STAFF"
	RoleProvider UserRole = "PROVIDER"
	RolePatient  UserRole = "PATIENT"
	RoleService  UserRole = "SERVICE"
)

// JWTClaims represents the JWT payload for access tokens issued by the
// identity service.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}

type claimsContextKey struct{}

// ClaimsToContext attaches verified claims to a request context so services can
// consult the acting user without depending on the HTTP layer.
func ClaimsToContext(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims stored by the auth middleware, or nil.
func ClaimsFromContext(ctx context.Context) *JWTClaims {
	claims, _ := ctx.Value(claimsContextKey{}).(*JWTClaims)
	return claims
}
