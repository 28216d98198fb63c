package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory mock)
// and makes testing with mocks straightforward.
type Repository interface {
	SessionRepository
	WorkspaceRepository
	ApprovalRepository
	APICallRepository
	Close() error
}

// SessionRepository persists login sessions.
type SessionRepository interface {
	// GetSession returns ErrNotFound for an unknown id.
	GetSession(ctx context.Context, id string) (*session.State, error)

	// SaveSession inserts or replaces a session
	SaveSession(ctx context.Context, s session.State) error

	DeleteSession(ctx context.Context, id string) error

	// TouchSession moves updated_at of an existing session to at
	TouchSession(ctx context.Context, id string, at time.Time) error

	// PurgeSessions deletes sessions not updated since before
	PurgeSessions(ctx context.Context, before time.Time) (int64, error)
}

// WorkspaceRepository persists the review draft of each (session, partner).
type WorkspaceRepository interface {
	// GetWorkspace returns ErrNotFound when nothing was saved yet.
	GetWorkspace(ctx context.Context, sessionID, partner string) (*Workspace, error)

	SaveWorkspace(ctx context.Context, w *Workspace) error

	DeleteWorkspace(ctx context.Context, sessionID, partner string) error
}

// ApprovalRepository records approved orders.
type ApprovalRepository interface {
	// SaveApproval stores a and returns its id
	SaveApproval(ctx context.Context, a *Approval) (int64, error)

	// ListApprovals returns approvals newest first
	ListApprovals(ctx context.Context, filters ApprovalFilters) (*ApprovalListResult, error)
}

// ApprovalFilters defines filters for listing approvals
type ApprovalFilters struct {
	Partner   string // Filter by partner slug (empty = all)
	SessionID string // Filter by session (empty = all)
	Limit     int    // Max results (0 = default 50)
	Offset    int    // Pagination offset
}

// ApprovalListResult contains paginated approvals
type ApprovalListResult struct {
	Approvals  []Approval `json:"approvals"`
	TotalCount int        `json:"total_count"`
	Limit      int        `json:"limit"`
	Offset     int        `json:"offset"`
}

// APICallRepository handles remote call logging
type APICallRepository interface {
	// LogAPICall logs a remote call to the database
	LogAPICall(ctx context.Context, call *APICall) error

	// ListAPICalls returns the latest calls of a session, newest first
	ListAPICalls(ctx context.Context, sessionID string, limit int) ([]APICall, error)
}
