package service

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
)

// AuthService validates bearer tokens issued by the identity service. This
// service never issues tokens itself.
type AuthService struct {
	secret []byte
	logger *zap.Logger
}

// NewAuthService constructs an AuthService with the shared HS256 secret.
func NewAuthService(secret string, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{secret: []byte(secret), logger: logger}
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing subject")
	}
	return claims, nil
}

// RequireRole checks the claims against an allowed role set.
func (s *AuthService) RequireRole(claims *models.JWTClaims, roles ...models.UserRole) error {
	for _, role := range roles {
		if claims.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient role")
}
