package storage

import (
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/editor"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
)

// Workspace is the review state of one partner page in one session.
// A nil Draft means the page is waiting for an upload.
type Workspace struct {
	SessionID string               `json:"session_id"`
	Partner   string               `json:"partner"`
	Mode      editor.Mode          `json:"mode"`
	Draft     *receipt.OrderRecord `json:"draft"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Approval is an order the orders service accepted.
type Approval struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Username     string    `json:"username,omitempty"`
	Partner      string    `json:"partner"`
	OrderID      string    `json:"order_id,omitempty"`
	Total        *float64  `json:"total"`
	PayloadJSON  string    `json:"payload_json"`
	ResponseJSON string    `json:"response_json,omitempty"`
	ApprovedAt   time.Time `json:"approved_at"`
}

// APICall is one remote call made on behalf of a session.
type APICall struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id,omitempty"`
	Service      string    `json:"service"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	RequestJSON  string    `json:"request_json,omitempty"`
	ResponseJSON string    `json:"response_json,omitempty"`
	StatusCode   int       `json:"status_code"`
	Error        string    `json:"error,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	Timestamp    time.Time `json:"timestamp"`
}
