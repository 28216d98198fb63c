package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
// It is safe for concurrent use.
type MockRepository struct {
	mu         sync.Mutex
	sessions   map[string]session.State
	workspaces map[workspaceKey]Workspace
	approvals  []Approval
	apiCalls   []APICall
	nextID     int64

	// Hooks for test assertions
	SaveSessionCalled   bool
	SaveWorkspaceCalled bool
	SaveApprovalCalled  bool
	LogAPICallCalled    bool
	LastSavedApproval   *Approval
	TouchSessionCalls   int

	// Error injection for testing error paths
	GetSessionErr    error
	SaveSessionErr   error
	GetWorkspaceErr  error
	SaveWorkspaceErr error
	SaveApprovalErr  error
	LogAPICallErr    error
}

type workspaceKey struct {
	sessionID string
	partner   string
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		sessions:   make(map[string]session.State),
		workspaces: make(map[workspaceKey]Workspace),
		nextID:     1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

func (m *MockRepository) GetSession(_ context.Context, id string) (*session.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MockRepository) SaveSession(_ context.Context, s session.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveSessionCalled = true
	if m.SaveSessionErr != nil {
		return m.SaveSessionErr
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MockRepository) TouchSession(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TouchSessionCalls++
	if s, ok := m.sessions[id]; ok {
		s.UpdatedAt = at
		m.sessions[id] = s
	}
	return nil
}

func (m *MockRepository) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for k := range m.workspaces {
		if k.sessionID == id {
			delete(m.workspaces, k)
		}
	}
	return nil
}

func (m *MockRepository) PurgeSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			for k := range m.workspaces {
				if k.sessionID == id {
					delete(m.workspaces, k)
				}
			}
			n++
		}
	}
	return n, nil
}

func (m *MockRepository) GetWorkspace(_ context.Context, sessionID, partner string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetWorkspaceErr != nil {
		return nil, m.GetWorkspaceErr
	}
	w, ok := m.workspaces[workspaceKey{sessionID, partner}]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkspace(w), nil
}

func (m *MockRepository) SaveWorkspace(_ context.Context, w *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveWorkspaceCalled = true
	if m.SaveWorkspaceErr != nil {
		return m.SaveWorkspaceErr
	}
	// Deep copy to avoid test mutations
	m.workspaces[workspaceKey{w.SessionID, w.Partner}] = *copyWorkspace(*w)
	return nil
}

func (m *MockRepository) DeleteWorkspace(_ context.Context, sessionID, partner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, workspaceKey{sessionID, partner})
	return nil
}

func (m *MockRepository) SaveApproval(_ context.Context, a *Approval) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveApprovalCalled = true
	m.LastSavedApproval = a
	if m.SaveApprovalErr != nil {
		return 0, m.SaveApprovalErr
	}
	a.ID = m.nextID
	m.nextID++
	m.approvals = append(m.approvals, *a)
	return a.ID, nil
}

func (m *MockRepository) ListApprovals(_ context.Context, filters ApprovalFilters) (*ApprovalListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matching := make([]Approval, 0)
	for _, a := range m.approvals {
		if filters.Partner != "" && a.Partner != filters.Partner {
			continue
		}
		if filters.SessionID != "" && a.SessionID != filters.SessionID {
			continue
		}
		matching = append(matching, a)
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].ID > matching[j].ID })

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	total := len(matching)
	start := filters.Offset
	if start > total {
		start = total
	}
	if start < 0 {
		start = 0
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &ApprovalListResult{
		Approvals:  matching[start:end],
		TotalCount: total,
		Limit:      limit,
		Offset:     start,
	}, nil
}

func (m *MockRepository) LogAPICall(_ context.Context, call *APICall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogAPICallCalled = true
	if m.LogAPICallErr != nil {
		return m.LogAPICallErr
	}
	call.ID = m.nextID
	m.nextID++
	m.apiCalls = append(m.apiCalls, *call)
	return nil
}

func (m *MockRepository) ListAPICalls(_ context.Context, sessionID string, limit int) ([]APICall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []APICall
	for i := len(m.apiCalls) - 1; i >= 0 && len(out) < limit; i-- {
		if m.apiCalls[i].SessionID == sessionID {
			out = append(out, m.apiCalls[i])
		}
	}
	return out, nil
}

// APICalls returns every logged call in insertion order.
func (m *MockRepository) APICalls() []APICall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]APICall, len(m.apiCalls))
	copy(out, m.apiCalls)
	return out
}

// Approvals returns every saved approval in insertion order.
func (m *MockRepository) Approvals() []Approval {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Approval, len(m.approvals))
	copy(out, m.approvals)
	return out
}

func copyWorkspace(w Workspace) *Workspace {
	out := w
	if w.Draft != nil {
		d := w.Draft.Clone()
		out.Draft = &d
	}
	return &out
}
