package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/isdelr/todo-auth-be/internal/models"
	"github.com/rs/zerolog/log"
)

// AuthServiceProvider defines the interface for authentication services.
type AuthServiceProvider interface {
	Authenticate(ctx context.Context, email, password string) (string, error)
	Refresh(ctx context.Context, token string) (string, error)
	Resolve(ctx context.Context, token string) (models.User, error)
	IssueConfirmation(email string) (string, error)
	Confirm(ctx context.Context, token string) (models.User, error)
}

// AuthService issues and checks tokens for users.
type AuthService struct {
	users      UserServiceProvider
	codec      *auth.Codec
	hasher     auth.PasswordHasher
	events     EventServiceProvider
	accessTTL  time.Duration
	confirmTTL time.Duration

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserServiceProvider, codec *auth.Codec, hasher auth.PasswordHasher, events EventServiceProvider, accessTTL, confirmTTL time.Duration) *AuthService {
	return &AuthService{
		users:      users,
		codec:      codec,
		hasher:     hasher,
		events:     events,
		accessTTL:  accessTTL,
		confirmTTL: confirmTTL,
	}
}

// Authenticate checks the credentials of an active user and returns an
// access token for them.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return "", err
		}
		// Spend the same time as a real comparison.
		_ = s.hasher.Compare(s.dummyPasswordHash(), password)
		log.Debug().Str("email", email).Msg("Login attempt for unknown email")
		return "", common.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			return "", err
		}
		recordEvent(ctx, s.events, "auth.login_failed", LevelWarn, "Failed login attempt.", &user.ID)
		return "", common.ErrInvalidCredentials
	}

	if !user.IsActive {
		return "", common.ErrAccountInactive
	}

	token, err := s.codec.Issue(user.Email, auth.PurposeAccess, s.accessTTL)
	if err != nil {
		return "", err
	}
	recordEvent(ctx, s.events, "auth.login", LevelInfo, "Logged in.", &user.ID)
	return token, nil
}

// Refresh exchanges a valid access token for a fresh one.
func (s *AuthService) Refresh(ctx context.Context, token string) (string, error) {
	user, err := s.Resolve(ctx, token)
	if err != nil {
		return "", err
	}
	return s.codec.Issue(user.Email, auth.PurposeAccess, s.accessTTL)
}

// Resolve maps an access token to its user. Every failure wraps
// common.ErrUnauthenticated; expired tokens additionally wrap
// auth.ErrTokenExpired.
func (s *AuthService) Resolve(ctx context.Context, token string) (models.User, error) {
	payload, err := s.decode(token, auth.PurposeAccess)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetUserByEmail(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			log.Debug().Str("email", payload.Subject).Msg("Token subject no longer exists")
			return models.User{}, common.ErrUnauthenticated
		}
		return models.User{}, err
	}
	return user, nil
}

// IssueConfirmation returns a confirmation token for email.
func (s *AuthService) IssueConfirmation(email string) (string, error) {
	return s.codec.Issue(email, auth.PurposeConfirmation, s.confirmTTL)
}

// Confirm activates the user a confirmation token was issued for.
// Confirming an already active account succeeds again.
func (s *AuthService) Confirm(ctx context.Context, token string) (models.User, error) {
	payload, err := s.decode(token, auth.PurposeConfirmation)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.ActivateUser(ctx, payload.Subject)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return models.User{}, common.ErrUnauthenticated
		}
		return models.User{}, err
	}

	recordEvent(ctx, s.events, "user.confirm", LevelInfo, "Email confirmed.", &user.ID)
	return user, nil
}

func (s *AuthService) decode(token string, want auth.Purpose) (auth.Payload, error) {
	payload, err := s.codec.Decode(token)
	if err != nil {
		log.Debug().Err(err).Str("purpose", want.String()).Msg("Rejected token")
		if errors.Is(err, auth.ErrTokenExpired) {
			return auth.Payload{}, fmt.Errorf("%w: %w", common.ErrUnauthenticated, auth.ErrTokenExpired)
		}
		return auth.Payload{}, common.ErrUnauthenticated
	}
	if payload.Purpose != want {
		log.Debug().Str("purpose", payload.Purpose.String()).Str("want", want.String()).Msg("Rejected token of wrong purpose")
		return auth.Payload{}, common.ErrUnauthenticated
	}
	return payload, nil
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err != nil {
			log.Error().Err(err).Msg("Failed to prepare dummy password hash")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
