package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/receipt-desk/internal/domain/editor"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

const defaultListLimit = 50

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Storage provides SQLite database access.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath and applies
// pending migrations.
func NewStorage(dbPath string) (*Storage, error) {
	return NewStorageWithLogger(dbPath, slog.Default())
}

// NewStorageWithLogger is NewStorage with an explicit logger.
func NewStorageWithLogger(dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	s := &Storage{db: db, logger: logger}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// ================================================================
// SESSIONS
// ================================================================

// GetSession loads a session by id.
func (s *Storage) GetSession(ctx context.Context, id string) (*session.State, error) {
	query := `
	SELECT id, token, username, expires_at, return_to, created_at, updated_at
	FROM sessions WHERE id = ?
	`

	var (
		st                   session.State
		expiresAt            sql.NullString
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&st.ID,
		&st.Token,
		&st.Username,
		&expiresAt,
		&st.ReturnTo,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		st.ExpiresAt = parseTime(expiresAt.String)
	}
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// SaveSession inserts or replaces a session.
func (s *Storage) SaveSession(ctx context.Context, st session.State) error {
	query := `
	INSERT OR REPLACE INTO sessions
	(id, token, username, expires_at, return_to, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var expiresAt sql.NullString
	if !st.ExpiresAt.IsZero() {
		expiresAt = sql.NullString{String: formatTime(st.ExpiresAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		st.ID,
		st.Token,
		st.Username,
		expiresAt,
		st.ReturnTo,
		formatTime(st.CreatedAt),
		formatTime(st.UpdatedAt),
	)
	return err
}

// TouchSession bumps updated_at without rewriting the rest of the row.
func (s *Storage) TouchSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, formatTime(at), id)
	return err
}

// DeleteSession removes a session and its workspaces.
func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE session_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// PurgeSessions deletes sessions idle since before, with their workspaces.
func (s *Storage) PurgeSessions(ctx context.Context, before time.Time) (int64, error) {
	cutoff := formatTime(before)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM workspaces
		WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)
	`, cutoff); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ================================================================
// WORKSPACES
// ================================================================

// GetWorkspace loads the workspace of (sessionID, partner).
func (s *Storage) GetWorkspace(ctx context.Context, sessionID, partner string) (*Workspace, error) {
	query := `
	SELECT session_id, partner, mode, draft_json, updated_at
	FROM workspaces WHERE session_id = ? AND partner = ?
	`

	var (
		w         Workspace
		mode      string
		draftJSON sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, sessionID, partner).Scan(
		&w.SessionID,
		&w.Partner,
		&mode,
		&draftJSON,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	w.Mode = editor.Mode(mode)
	w.UpdatedAt = parseTime(updatedAt)
	if draftJSON.Valid && draftJSON.String != "" {
		var draft receipt.OrderRecord
		if err := json.Unmarshal([]byte(draftJSON.String), &draft); err != nil {
			return nil, fmt.Errorf("failed to decode draft: %w", err)
		}
		w.Draft = &draft
	}
	return &w, nil
}

// SaveWorkspace inserts or replaces a workspace.
func (s *Storage) SaveWorkspace(ctx context.Context, w *Workspace) error {
	query := `
	INSERT OR REPLACE INTO workspaces
	(session_id, partner, mode, draft_json, updated_at)
	VALUES (?, ?, ?, ?, ?)
	`

	var draftJSON sql.NullString
	if w.Draft != nil {
		b, err := json.Marshal(w.Draft)
		if err != nil {
			return fmt.Errorf("failed to encode draft: %w", err)
		}
		draftJSON = sql.NullString{String: string(b), Valid: true}
	}

	mode := w.Mode
	if mode == "" {
		mode = editor.ModeViewing
	}

	_, err := s.db.ExecContext(ctx, query,
		w.SessionID,
		w.Partner,
		string(mode),
		draftJSON,
		formatTime(w.UpdatedAt),
	)
	return err
}

// DeleteWorkspace removes a workspace. Missing rows are not an error.
func (s *Storage) DeleteWorkspace(ctx context.Context, sessionID, partner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE session_id = ? AND partner = ?`, sessionID, partner)
	return err
}

// ================================================================
// APPROVALS
// ================================================================

// SaveApproval records an approval and returns its id.
func (s *Storage) SaveApproval(ctx context.Context, a *Approval) (int64, error) {
	query := `
	INSERT INTO approvals
	(session_id, username, partner, order_id, total, payload_json, response_json, approved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var total sql.NullFloat64
	if a.Total != nil {
		total = sql.NullFloat64{Float64: *a.Total, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query,
		a.SessionID,
		a.Username,
		a.Partner,
		a.OrderID,
		total,
		a.PayloadJSON,
		a.ResponseJSON,
		formatTime(a.ApprovedAt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// ListApprovals returns approvals matching filters, newest first.
func (s *Storage) ListApprovals(ctx context.Context, filters ApprovalFilters) (*ApprovalListResult, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	where := "WHERE 1=1"
	var args []any
	if filters.Partner != "" {
		where += " AND partner = ?"
		args = append(args, filters.Partner)
	}
	if filters.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, filters.SessionID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM approvals "+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := `
	SELECT id, session_id, username, partner, order_id, total, payload_json, response_json, approved_at
	FROM approvals ` + where + `
	ORDER BY id DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	approvals := make([]Approval, 0)
	for rows.Next() {
		var (
			a          Approval
			totalVal   sql.NullFloat64
			approvedAt string
		)
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.Username,
			&a.Partner,
			&a.OrderID,
			&totalVal,
			&a.PayloadJSON,
			&a.ResponseJSON,
			&approvedAt,
		); err != nil {
			return nil, err
		}
		if totalVal.Valid {
			v := totalVal.Float64
			a.Total = &v
		}
		a.ApprovedAt = parseTime(approvedAt)
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ApprovalListResult{
		Approvals:  approvals,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// ================================================================
// API CALLS
// ================================================================

// LogAPICall logs a remote call to the database
func (s *Storage) LogAPICall(ctx context.Context, call *APICall) error {
	query := `
		INSERT INTO api_calls
		(session_id, service, method, path, request_json, response_json, status_code, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ts := call.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.ExecContext(ctx, query,
		call.SessionID,
		call.Service,
		call.Method,
		call.Path,
		call.RequestJSON,
		call.ResponseJSON,
		call.StatusCode,
		call.Error,
		call.DurationMs,
		formatTime(ts),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		call.ID = id
	}
	return nil
}

// ListAPICalls returns the latest calls of a session, newest first.
func (s *Storage) ListAPICalls(ctx context.Context, sessionID string, limit int) ([]APICall, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, session_id, service, method, path, request_json, response_json, status_code, error, duration_ms, timestamp
		FROM api_calls
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var calls []APICall
	for rows.Next() {
		var call APICall
		var timestamp string
		err := rows.Scan(
			&call.ID,
			&call.SessionID,
			&call.Service,
			&call.Method,
			&call.Path,
			&call.RequestJSON,
			&call.ResponseJSON,
			&call.StatusCode,
			&call.Error,
			&call.DurationMs,
			&timestamp,
		)
		if err != nil {
			return nil, err
		}
		call.Timestamp = parseTime(timestamp)
		calls = append(calls, call)
	}

	return calls, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
