// Package auth signs staff in and out through the backend API and keeps the
// resulting session state.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/sessionstore"
)

// ErrInvalidInput rejects blank credentials before they reach the backend.
var ErrInvalidInput = errors.New("username and password are required")

// Backend is the auth part of the backend API.
type Backend interface {
	Login(ctx context.Context, creds backendapi.Credentials) (string, error)
	Register(ctx context.Context, reg backendapi.Registration) error
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Session  session.State
	ReturnTo string
}

// Service manages sessions.
type Service struct {
	backend Backend
	store   sessionstore.Store
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewService creates an auth service. ttl bounds tokens that carry no expiry
// of their own.
func NewService(backend Backend, store sessionstore.Store, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// touchInterval throttles how often Resolve records activity on a session.
const touchInterval = time.Minute

// Resolve loads the session with id. An empty or unknown id starts a fresh
// anonymous session, which is stored right away. A known session is marked
// as used so the idle purge only removes sessions nobody is using.
func (s *Service) Resolve(ctx context.Context, id string) (session.State, error) {
	if id != "" {
		st, err := s.store.Load(ctx, id)
		if err == nil {
			return s.touch(ctx, st), nil
		}
		if !errors.Is(err, sessionstore.ErrNotFound) {
			return session.State{}, err
		}
	}

	st := session.New(s.newID(), s.now())
	if err := s.store.Save(ctx, st); err != nil {
		return session.State{}, err
	}
	return st, nil
}

func (s *Service) touch(ctx context.Context, st session.State) session.State {
	now := s.now()
	if now.Sub(st.UpdatedAt) < touchInterval {
		return st
	}
	if err := s.store.Touch(ctx, st.ID, now); err != nil {
		s.logger.Warn("Failed to touch session", "session_id", st.ID, "error", err)
		return st
	}
	st.UpdatedAt = now
	return st
}

// Remember records the path an anonymous request was turned away from.
func (s *Service) Remember(ctx context.Context, st session.State, path string) (session.State, error) {
	st = st.Remember(path, s.now())
	if err := s.store.Save(ctx, st); err != nil {
		return session.State{}, err
	}
	return st, nil
}

// Login exchanges credentials for a token and signs the session in. The
// result carries the path the session was sent away from, or "/".
func (s *Service) Login(ctx context.Context, st session.State, creds backendapi.Credentials) (*LoginResult, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrInvalidInput
	}

	token, err := s.backend.Login(ctx, creds)
	if err != nil {
		s.logger.Warn("Login failed", "username", creds.Username, "error", err)
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	now := s.now()
	st = st.SignIn(creds.Username, token, now, s.ttl)
	st, target := st.Resume(now)
	if err := s.store.Save(ctx, st); err != nil {
		return nil, err
	}

	s.logger.Info("Logged in", "username", creds.Username, "expires_at", st.ExpiresAt)
	return &LoginResult{Session: st, ReturnTo: target}, nil
}

// Register creates a staff account. It does not sign in.
func (s *Service) Register(ctx context.Context, reg backendapi.Registration) error {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Username == "" || reg.Password == "" {
		return ErrInvalidInput
	}

	if err := s.backend.Register(ctx, reg); err != nil {
		s.logger.Warn("Registration failed", "username", reg.Username, "error", err)
		return fmt.Errorf("failed to register: %w", err)
	}
	s.logger.Info("Registered user", "username", reg.Username)
	return nil
}

// Logout drops the token. The session id is kept so drafts survive.
func (s *Service) Logout(ctx context.Context, st session.State) (session.State, error) {
	st = st.SignOut(s.now())
	if err := s.store.Save(ctx, st); err != nil {
		return session.State{}, err
	}
	return st, nil
}

// Now is the clock used for expiry checks.
func (s *Service) Now() time.Time {
	return s.now()
}
