package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService("test-secret", nil)
	claims := &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	parsed, err := svc.ValidateToken(signToken(t, "test-secret", claims))
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, models.RoleStaff, parsed.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc := NewAuthService("test-secret", nil)
	claims := &models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	_, err := svc.ValidateToken(signToken(t, "other-secret", claims))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewAuthService("test-secret", nil)
	claims := &models.JWTClaims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}}

	_, err := svc.ValidateToken(signToken(t, "test-secret", claims))
	assert.Error(t, err)
}

func TestValidateTokenMissingSubject(t *testing.T) {
	svc := NewAuthService("test-secret", nil)
	claims := &models.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	_, err := svc.ValidateToken(signToken(t, "test-secret", claims))
	assert.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	svc := NewAuthService("test-secret", nil)
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RolePatient}

	assert.NoError(t, svc.RequireRole(claims, models.RolePatient, models.RoleStaff))
	err := svc.RequireRole(claims, models.RoleProvider)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
