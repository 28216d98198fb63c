package dto

import (
	"encoding/json"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SessionResponse describes the caller's session. After a sign-in ReturnTo is
// the page the caller was sent away from.
type SessionResponse struct {
	Status    session.Status `json:"status"`
	Username  string         `json:"username,omitempty"`
	ExpiresAt string         `json:"expires_at,omitempty"`
	ReturnTo  string         `json:"return_to,omitempty"`
}

// PartnerListResponse is the partner selector.
type PartnerListResponse struct {
	Partners []PartnerResponse `json:"partners"`
}

// PartnerResponse is one selector entry.
type PartnerResponse struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// ApprovalResponse represents a recorded approval in API responses.
type ApprovalResponse struct {
	ID         int64    `json:"id"`
	Partner    string   `json:"partner"`
	Username   string   `json:"username,omitempty"`
	OrderID    string   `json:"order_id,omitempty"`
	Total      *float64 `json:"total"`
	ApprovedAt string   `json:"approved_at"`
}

// ApprovalListResponse is returned when listing approvals.
type ApprovalListResponse struct {
	Approvals  []ApprovalResponse `json:"approvals"`
	TotalCount int                `json:"total_count"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewSessionResponse describes st as of now.
func NewSessionResponse(st session.State, now time.Time) SessionResponse {
	resp := SessionResponse{
		Status:   st.Status(now),
		ReturnTo: st.ReturnTo,
	}
	if st.Authenticated(now) {
		resp.Username = st.Username
		if !st.ExpiresAt.IsZero() {
			resp.ExpiresAt = st.ExpiresAt.UTC().Format(time.RFC3339)
		}
	}
	return resp
}

// NewPartnerListResponse lists the partners in selector order.
func NewPartnerListResponse(list []partners.Partner) PartnerListResponse {
	resp := PartnerListResponse{Partners: make([]PartnerResponse, 0, len(list))}
	for _, p := range list {
		resp.Partners = append(resp.Partners, PartnerResponse{
			Slug: p.Slug,
			Name: p.Name,
			Path: "/upload/" + p.Slug,
		})
	}
	return resp
}

// NewApprovalListResponse converts stored approvals.
func NewApprovalListResponse(result *storage.ApprovalListResult) ApprovalListResponse {
	resp := ApprovalListResponse{
		Approvals:  make([]ApprovalResponse, 0, len(result.Approvals)),
		TotalCount: result.TotalCount,
		Limit:      result.Limit,
		Offset:     result.Offset,
	}
	for _, a := range result.Approvals {
		resp.Approvals = append(resp.Approvals, ApprovalResponse{
			ID:         a.ID,
			Partner:    a.Partner,
			Username:   a.Username,
			OrderID:    a.OrderID,
			Total:      a.Total,
			ApprovedAt: a.ApprovedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

// ApprovedResponse is returned after the orders service accepted an order.
type ApprovedResponse struct {
	Message    string          `json:"message"`
	ApprovalID int64           `json:"approval_id"`
	Response   json.RawMessage `json:"response,omitempty"`
	Workspace  any             `json:"workspace"`
}
