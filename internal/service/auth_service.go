package service

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the fields this service reads from tokens minted by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	Role model.Role `json:"role"`
}

// AuthService validates externally issued JWTs. It never issues tokens.
type AuthService struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	return &AuthService{secret: []byte(cfg.JWTSecret), opts: opts}
}

// ValidateToken parses and validates a JWT, returning the caller it identifies.
func (s *AuthService) ValidateToken(tokenStr string) (model.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, s.opts...)
	if err != nil {
		return model.Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Caller{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.Caller{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}

	switch claims.Role {
	case model.RoleStudent, model.RoleAdmin:
	default:
		return model.Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return model.Caller{ID: id, Role: claims.Role}, nil
}
