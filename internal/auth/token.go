package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shenikar/safety_alert_dispatch/internal/models"
)

const defaultIssuer = "safety-alert-dispatch"

// Claims - полезная нагрузка токена участника. Subject - id туриста, экипажа или оператора.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenResolver проверяет токены участников (HS256) и превращает их в Identity
type TokenResolver struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewTokenResolver(signingKey string) *TokenResolver {
	return &TokenResolver{
		signingKey: []byte(signingKey),
		issuer:     defaultIssuer,
		now:        time.Now,
	}
}

// IssueToken выпускает токен; используется провижинингом и тестами
func (r *TokenResolver) IssueToken(subjectID string, role models.Role, expiresIn time.Duration) (string, error) {
	now := r.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    r.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(r.signingKey)
	if err != nil {
		return "", fmt.Errorf("auth: could not sign token: %w", err)
	}
	return signed, nil
}

// Resolve проверяет подпись, срок и роль. Любая ошибка проверки - ErrUnauthorized.
func (r *TokenResolver) Resolve(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("auth: empty token: %w", models.ErrUnauthorized)
	}
	if len(r.signingKey) == 0 {
		return models.Identity{}, fmt.Errorf("auth: token secret is not configured: %w", models.ErrUnauthorized)
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.signingKey, nil
	},
		jwt.WithIssuer(r.issuer),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, fmt.Errorf("auth: token has expired: %w", models.ErrUnauthorized)
		}
		return models.Identity{}, fmt.Errorf("auth: invalid token: %w", models.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return models.Identity{}, fmt.Errorf("auth: invalid token claims: %w", models.ErrUnauthorized)
	}
	if claims.Subject == "" || !validRole(claims.Role) {
		return models.Identity{}, fmt.Errorf("auth: token without subject or role: %w", models.ErrUnauthorized)
	}
	return models.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

func validRole(r models.Role) bool {
	switch r {
	case models.RoleTourist, models.RoleResponder, models.RoleOperator, models.RoleAdmin:
		return true
	}
	return false
}
