package services

import (
	"context"
	"errors"

	"salon-chat/internal/repository"
	salon_errors "salon-chat/pkg/errors"
	"salon-chat/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is a verified caller.
type Identity struct {
	StaffID  uuid.UUID
	Role     string
	IsActive bool
}

// IdentityVerifier turns a bearer credential into an Identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// AccessClaims are issued by the business backend; this service only
// verifies them.
type AccessClaims struct {
	StaffID string `json:"sub"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthService struct {
	jwtSecret []byte
	staff     repository.StaffDirectory
}

func NewAuthService(jwtSecret string, staff repository.StaffDirectory) *AuthService {
	return &AuthService{jwtSecret: []byte(jwtSecret), staff: staff}
}

func (s *AuthService) ParseAccessToken(tokenString string) (AccessClaims, error) {
	if tokenString == "" {
		return AccessClaims{}, salon_errors.Authentication("missing credential")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, salon_errors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return AccessClaims{}, salon_errors.Authentication("invalid credential")
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, salon_errors.Authentication("invalid credential")
	}

	return *claims, nil
}

// Verify checks the token and that the staff record is still active.
func (s *AuthService) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return Identity{}, err
	}
	staffID, err := uuid.Parse(claims.StaffID)
	if err != nil {
		return Identity{}, salon_errors.Authentication("invalid subject")
	}

	found, err := s.staff.Lookup(ctx, []uuid.UUID{staffID})
	if err != nil {
		return Identity{}, err
	}
	rec, ok := found[staffID]
	if !ok || !rec.IsActive {
		return Identity{}, salon_errors.Authentication("staff account is not active")
	}

	role := claims.Role
	if role == "" {
		role = rec.Role
	}
	return Identity{StaffID: staffID, Role: role, IsActive: true}, nil
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, salon_errors.ErrInvalidInput):
		return 400
	case errors.Is(err, salon_errors.ErrUnauthorized):
		return 401
	case errors.Is(err, salon_errors.ErrForbidden):
		return 403
	case errors.Is(err, salon_errors.ErrNotFound):
		return 404
	case errors.Is(err, salon_errors.ErrAlreadyExists), errors.Is(err, salon_errors.ErrConflict):
		return 409
	case errors.Is(err, salon_errors.ErrRateLimited):
		return 429
	default:
		return 500
	}
}

type ctxKey string

var identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, logger.StaffIdKey, id.StaffID.String())
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func StaffIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return id.StaffID, true
}
