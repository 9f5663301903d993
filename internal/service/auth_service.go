package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"therapyroom/internal/metrics"
	"therapyroom/internal/model"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RevocationStore tracks revoked token ids
type RevocationStore interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

// AuthService verifies connection credentials
type AuthService struct {
	jwtSecret   []byte
	revocations RevocationStore
	now         func() time.Time
}

// NewAuthService creates a new auth service. revocations may be nil.
func NewAuthService(secret string, revocations RevocationStore) *AuthService {
	return &AuthService{
		jwtSecret:   []byte(secret),
		revocations: revocations,
		now:         time.Now,
	}
}

// Authenticate validates a bearer token and returns the identity it carries.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*model.Identity, error) {
	id, err := s.authenticate(ctx, tokenString)
	if err != nil {
		metrics.AuthFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}
	return id, nil
}

func (s *AuthService) authenticate(ctx context.Context, tokenString string) (*model.Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &model.UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*model.UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	if s.revocations != nil && claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Redis unavailable: accept the token
			log.Warn().Err(err).Str("user", claims.UserID).Msg("revocation check failed")
		} else if revoked {
			return nil, ErrRevokedToken
		}
	}

	return &model.Identity{
		UserID:    claims.UserID,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}

// Revoke rejects the identity's token until it expires.
func (s *AuthService) Revoke(ctx context.Context, id model.Identity) error {
	if id.TokenID == "" {
		return fmt.Errorf("%w: token has no id", ErrInvalidRequest)
	}
	if s.revocations == nil {
		return errors.New("token revocation is not configured")
	}
	ttl := id.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.Revoke(ctx, id.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	log.Info().Str("user", id.UserID).Dur("ttl", ttl).Msg("token revoked")
	return nil
}

// IssueToken signs a connection token for userID acting as role.
func (s *AuthService) IssueToken(userID string, role model.Role, ttl time.Duration) (string, error) {
	if userID == "" || !role.Valid() {
		return "", ErrInvalidRequest
	}
	now := s.now()
	claims := &model.UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrRevokedToken):
		return "revoked"
	}
	return "invalid"
}
