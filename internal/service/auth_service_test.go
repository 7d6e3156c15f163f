package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func claimsFor(sub string, role model.Role, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "exstem-identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: testSecret, JWTIssuer: "exstem-identity"})
	id := uuid.New()

	caller, err := svc.ValidateToken(signToken(t, testSecret, jwt.SigningMethodHS256, claimsFor(id.String(), model.RoleAdmin, time.Hour)))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if caller.ID != id || caller.Role != model.RoleAdmin {
		t.Errorf("unexpected caller %+v", caller)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(&config.Config{JWTSecret: testSecret, JWTIssuer: "exstem-identity"})
	id := uuid.New().String()

	wrongIssuer := claimsFor(id, model.RoleStudent, time.Hour)
	wrongIssuer.Issuer = "someone-else"
	noExpiry := claimsFor(id, model.RoleStudent, time.Hour)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signToken(t, "other", jwt.SigningMethodHS256, claimsFor(id, model.RoleStudent, time.Hour))},
		{"wrong algorithm", signToken(t, testSecret, jwt.SigningMethodHS512, claimsFor(id, model.RoleStudent, time.Hour))},
		{"expired", signToken(t, testSecret, jwt.SigningMethodHS256, claimsFor(id, model.RoleStudent, -time.Minute))},
		{"no expiry", signToken(t, testSecret, jwt.SigningMethodHS256, noExpiry)},
		{"wrong issuer", signToken(t, testSecret, jwt.SigningMethodHS256, wrongIssuer)},
		{"subject not uuid", signToken(t, testSecret, jwt.SigningMethodHS256, claimsFor("nisn-123", model.RoleStudent, time.Hour))},
		{"unknown role", signToken(t, testSecret, jwt.SigningMethodHS256, claimsFor(id, "superuser", time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
