package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/secret"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// SessionCreator is the part of the session manager that login needs.
type SessionCreator interface {
	Create(identity models.Identity, prior string) (models.Session, string, error)
	Destroy(token string)
}

// AuthServiceProvider defines the interface for authentication.
type AuthServiceProvider interface {
	Login(ctx context.Context, username, password, prior string) (models.Session, string, error)
	Logout(token string)
}

// AuthService verifies credentials and opens sessions.
type AuthService struct {
	users    UserServiceProvider
	sessions SessionCreator
	cost     int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService creates a new AuthService. cost should match the work
// factor of stored hashes so unknown usernames take as long as known ones.
func NewAuthService(users UserServiceProvider, sessions SessionCreator, cost int) *AuthService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AuthService{users: users, sessions: sessions, cost: cost}
}

// Login checks username and password and, on success, creates a session
// replacing the one referenced by prior. Every failure is reported as
// ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password, prior string) (models.Session, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			log.Error().Err(err).Msg("Credential lookup failed")
		}
		// Burn the same time a real comparison would.
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return models.Session{}, "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.Session{}, "", ErrInvalidCredentials
	}

	sess, token, err := s.sessions.Create(user.Identity(), prior)
	if err != nil {
		return models.Session{}, "", fmt.Errorf("create session: %w", err)
	}
	return sess, token, nil
}

// Logout destroys the session referenced by token, if any.
func (s *AuthService) Logout(token string) {
	s.sessions.Destroy(token)
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		pw, err := secret.Bytes(16)
		if err != nil {
			pw = []byte("unused-dummy-password")
		}
		s.dummyHash, _ = bcrypt.GenerateFromPassword(pw, s.cost)
	})
	return s.dummyHash
}
