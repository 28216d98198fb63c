// Package sessionstore persists login sessions in SQLite or Redis.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// ErrNotFound is returned for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Store loads and saves sessions.
type Store interface {
	Load(ctx context.Context, id string) (session.State, error)
	Save(ctx context.Context, s session.State) error
	Delete(ctx context.Context, id string) error

	// Touch marks a session as used at now without rewriting it.
	Touch(ctx context.Context, id string, now time.Time) error
}

// SQL stores sessions in the application database.
type SQL struct {
	repo storage.SessionRepository
}

// NewSQL wraps a session repository.
func NewSQL(repo storage.SessionRepository) *SQL {
	return &SQL{repo: repo}
}

func (s *SQL) Load(ctx context.Context, id string) (session.State, error) {
	st, err := s.repo.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return session.State{}, ErrNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("failed to load session: %w", err)
	}
	return *st, nil
}

func (s *SQL) Save(ctx context.Context, st session.State) error {
	if err := s.repo.SaveSession(ctx, st); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQL) Touch(ctx context.Context, id string, now time.Time) error {
	if err := s.repo.TouchSession(ctx, id, now); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Purge removes sessions idle for longer than maxIdle.
func (s *SQL) Purge(ctx context.Context, now time.Time, maxIdle time.Duration) (int64, error) {
	return s.repo.PurgeSessions(ctx, now.Add(-maxIdle))
}
