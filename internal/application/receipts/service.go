// Package receipts runs the upload, review and approval flow of a partner
// page.
//
// Each (session, partner) pair owns one workspace: an optional draft order
// and its editor mode. Uploading replaces the draft, editing mutates it, and
// a successful approval clears it.
package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/eshaffer321/receipt-desk/internal/adapters/events"
	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/application/busy"
	"github.com/eshaffer321/receipt-desk/internal/domain/editor"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/domain/receipt"
	"github.com/eshaffer321/receipt-desk/internal/domain/reconciler"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

var (
	// ErrNoDraft is returned by edit and approval operations before a receipt
	// was processed.
	ErrNoDraft = errors.New("no draft order; upload a receipt first")
	// ErrNotImage rejects uploads whose content type is not image/*.
	ErrNotImage = errors.New("only image files can be uploaded")
)

// Extractor uploads receipt photos and extracts their order data.
type Extractor interface {
	Upload(ctx context.Context, img receiptapi.Image) (string, error)
	Process(ctx context.Context, filePath string) (map[string]any, error)
}

// Approver submits approved orders.
type Approver interface {
	ApproveOrder(ctx context.Context, payload editor.ApprovalPayload) ([]byte, error)
}

// Workspace is what a partner page shows.
type Workspace struct {
	Partner   partners.Partner     `json:"partner"`
	Mode      editor.Mode          `json:"mode"`
	Draft     *receipt.OrderRecord `json:"draft"`
	Uploading bool                 `json:"uploading"`
	Approving bool                 `json:"approving"`
	UpdatedAt time.Time            `json:"updated_at,omitzero"`
}

// AwaitingUpload reports whether the page has no draft.
func (w *Workspace) AwaitingUpload() bool {
	return w.Draft == nil
}

// ApprovalResult is returned after the orders service accepted an order.
type ApprovalResult struct {
	ApprovalID int64           `json:"approval_id"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// Service runs the receipt workflow.
type Service struct {
	repo      storage.Repository
	extractor Extractor
	approver  Approver
	publisher events.Publisher
	guard     *busy.Guard
	logger    *slog.Logger
	now       func() time.Time

	// Per-workspace locks serialize draft read-modify-write.
	locks      map[string]*workspaceLock
	locksMutex sync.Mutex
}

// workspaceLock is dropped from the map once nobody holds or waits for it.
type workspaceLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a receipt service. A nil publisher disables events.
func NewService(
	repo storage.Repository,
	extractor Extractor,
	approver Approver,
	publisher events.Publisher,
	guard *busy.Guard,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if guard == nil {
		guard = busy.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		extractor: extractor,
		approver:  approver,
		publisher: publisher,
		guard:     guard,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*workspaceLock),
	}
}

// Workspace returns the page state of partner for the session.
func (s *Service) Workspace(ctx context.Context, sessionID, slug string) (*Workspace, error) {
	p, err := partners.Lookup(slug)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID, p.Slug)
	defer unlock()

	ws, err := s.load(ctx, sessionID, p.Slug)
	if err != nil {
		return nil, err
	}
	return s.view(p, ws), nil
}

// Upload sends the image for extraction and makes the result the new draft in
// viewing mode. The previous draft is dropped when the upload starts, so a
// failure leaves the page awaiting an upload.
func (s *Service) Upload(ctx context.Context, sessionID, slug string, img receiptapi.Image) (*Workspace, error) {
	p, err := partners.Lookup(slug)
	if err != nil {
		return nil, err
	}
	if !IsImage(img.ContentType) {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, img.ContentType)
	}

	release, err := s.guard.Acquire(busy.Key(sessionID, p.Slug, busy.ActionUpload))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.store(ctx, sessionID, p.Slug, editor.ModeViewing, nil); err != nil {
		return nil, err
	}

	logger := s.logger.With("partner", p.Slug, "filename", img.Filename)
	logger.Info("Uploading receipt image")

	filePath, err := s.extractor.Upload(ctx, img)
	if err != nil {
		logger.Error("Image upload failed", "error", err)
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}

	payload, err := s.extractor.Process(ctx, filePath)
	if err != nil {
		logger.Error("Image processing failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		logger.Debug("Raw extraction payload", "payload", spew.Sdump(payload))
	}

	draft := reconciler.Reconcile(payload)
	logger.Info("Processed receipt",
		"file_path", filePath,
		"order_id", draft.OrderID.String(),
		"items", len(draft.OrderItems))
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		logger.Debug("Normalized order", "order", spew.Sdump(draft))
	}

	unlock := s.lock(sessionID, p.Slug)
	err = s.store(ctx, sessionID, p.Slug, editor.ModeViewing, &draft)
	unlock()
	if err != nil {
		return nil, err
	}

	release()
	return s.Workspace(ctx, sessionID, p.Slug)
}

// BeginEdit switches the draft to editing.
func (s *Service) BeginEdit(ctx context.Context, sessionID, slug string) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		return e.BeginEdit()
	})
}

// SetField overwrites an order field while editing.
func (s *Service) SetField(ctx context.Context, sessionID, slug, name string, raw any) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		return e.SetField(name, raw)
	})
}

// SetFields applies several field edits in order. The first failure stops
// the batch and nothing is stored.
func (s *Service) SetFields(ctx context.Context, sessionID, slug string, fields map[string]any, order []string) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		for _, name := range order {
			if err := e.SetField(name, fields[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddItem appends a blank line item.
func (s *Service) AddItem(ctx context.Context, sessionID, slug string) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		return e.AddItem()
	})
}

// ChangeItem overwrites fields of the item at index, in order.
func (s *Service) ChangeItem(ctx context.Context, sessionID, slug string, index int, fields map[string]any, order []string) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		for _, name := range order {
			if err := e.ChangeItem(index, name, fields[name]); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveItem drops the item at index.
func (s *Service) RemoveItem(ctx context.Context, sessionID, slug string, index int) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		return e.RemoveItem(index)
	})
}

// Save ends editing. Nothing is sent to the orders service.
func (s *Service) Save(ctx context.Context, sessionID, slug string) (*Workspace, error) {
	return s.mutate(ctx, sessionID, slug, func(e *editor.Editor) error {
		_, err := e.Save()
		return err
	})
}

// Discard drops the draft so the page awaits a new upload.
func (s *Service) Discard(ctx context.Context, sessionID, slug string) (*Workspace, error) {
	p, err := partners.Lookup(slug)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID, p.Slug)
	defer unlock()

	if err := s.repo.DeleteWorkspace(ctx, sessionID, p.Slug); err != nil {
		return nil, fmt.Errorf("failed to discard draft: %w", err)
	}
	return s.view(p, &storage.Workspace{SessionID: sessionID, Partner: p.Slug, Mode: editor.ModeViewing}), nil
}

// Approve submits the draft to the orders service. On success the approval is
// recorded, an order.approved event is published and the draft is cleared.
// On failure the draft is kept.
func (s *Service) Approve(ctx context.Context, sessionID, username, slug string) (*ApprovalResult, error) {
	p, err := partners.Lookup(slug)
	if err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(busy.Key(sessionID, p.Slug, busy.ActionApprove))
	if err != nil {
		return nil, err
	}
	defer release()

	payload, draft, err := s.payload(ctx, sessionID, p)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("partner", p.Slug, "order_id", draft.OrderID.String())
	logger.Info("Submitting order for approval")

	body, err := s.approver.ApproveOrder(ctx, payload)
	if err != nil {
		logger.Error("Order approval failed", "error", err)
		return nil, fmt.Errorf("failed to approve order: %w", err)
	}

	approvedAt := s.now()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	approval := &storage.Approval{
		SessionID:   sessionID,
		Username:    username,
		Partner:     p.Slug,
		OrderID:     draft.OrderID.String(),
		Total:       amount(draft.Total),
		PayloadJSON: string(payloadJSON),
		ApprovedAt:  approvedAt,
	}
	if json.Valid(body) {
		approval.ResponseJSON = string(body)
	}

	// The orders service already accepted the order; local bookkeeping
	// failures are logged, not returned.
	approvalID, err := s.repo.SaveApproval(ctx, approval)
	if err != nil {
		logger.Error("Failed to record approval", "error", err)
	}

	if err := s.publisher.PublishOrderApproved(ctx, events.OrderApproved{
		ApprovalID: approvalID,
		SessionID:  sessionID,
		Partner:    p.Slug,
		OrderID:    approval.OrderID,
		Total:      approval.Total,
		Payload:    payloadJSON,
		ApprovedAt: approvedAt,
	}); err != nil {
		logger.Warn("Failed to publish approval event", "error", err)
	}

	unlock := s.lock(sessionID, p.Slug)
	err = s.store(ctx, sessionID, p.Slug, editor.ModeViewing, nil)
	unlock()
	if err != nil {
		logger.Error("Failed to clear approved draft", "error", err)
	}

	logger.Info("Order approved", "approval_id", approvalID)

	result := &ApprovalResult{ApprovalID: approvalID}
	if json.Valid(body) {
		result.Response = body
	}
	return result, nil
}

// Approvals lists recorded approvals, newest first.
func (s *Service) Approvals(ctx context.Context, filters storage.ApprovalFilters) (*storage.ApprovalListResult, error) {
	if filters.Partner != "" {
		p, err := partners.Lookup(filters.Partner)
		if err != nil {
			return nil, err
		}
		filters.Partner = p.Slug
	}
	result, err := s.repo.ListApprovals(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return result, nil
}

// IsImage reports whether a content type is an image/* type.
func IsImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

func (s *Service) payload(ctx context.Context, sessionID string, p partners.Partner) (editor.ApprovalPayload, receipt.OrderRecord, error) {
	unlock := s.lock(sessionID, p.Slug)
	defer unlock()

	ed, err := s.editor(ctx, sessionID, p.Slug)
	if err != nil {
		return editor.ApprovalPayload{}, receipt.OrderRecord{}, err
	}
	payload, err := ed.ApprovalPayload(p.Slug)
	if err != nil {
		return editor.ApprovalPayload{}, receipt.OrderRecord{}, err
	}
	return payload, ed.Draft(), nil
}

func (s *Service) mutate(ctx context.Context, sessionID, slug string, fn func(*editor.Editor) error) (*Workspace, error) {
	p, err := partners.Lookup(slug)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID, p.Slug)
	defer unlock()

	ed, err := s.editor(ctx, sessionID, p.Slug)
	if err != nil {
		return nil, err
	}
	if err := fn(ed); err != nil {
		return nil, err
	}

	draft := ed.Draft()
	if err := s.store(ctx, sessionID, p.Slug, ed.Mode(), &draft); err != nil {
		return nil, err
	}
	ws, err := s.load(ctx, sessionID, p.Slug)
	if err != nil {
		return nil, err
	}
	return s.view(p, ws), nil
}

func (s *Service) editor(ctx context.Context, sessionID, partner string) (*editor.Editor, error) {
	ws, err := s.load(ctx, sessionID, partner)
	if err != nil {
		return nil, err
	}
	if ws.Draft == nil {
		return nil, ErrNoDraft
	}
	return editor.Restore(ws.Mode, *ws.Draft)
}

// load returns the stored workspace, or an empty one awaiting upload.
func (s *Service) load(ctx context.Context, sessionID, partner string) (*storage.Workspace, error) {
	ws, err := s.repo.GetWorkspace(ctx, sessionID, partner)
	if errors.Is(err, storage.ErrNotFound) {
		return &storage.Workspace{SessionID: sessionID, Partner: partner, Mode: editor.ModeViewing}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	return ws, nil
}

func (s *Service) store(ctx context.Context, sessionID, partner string, mode editor.Mode, draft *receipt.OrderRecord) error {
	err := s.repo.SaveWorkspace(ctx, &storage.Workspace{
		SessionID: sessionID,
		Partner:   partner,
		Mode:      mode,
		Draft:     draft,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}
	return nil
}

func (s *Service) view(p partners.Partner, ws *storage.Workspace) *Workspace {
	mode := ws.Mode
	if mode == "" {
		mode = editor.ModeViewing
	}
	return &Workspace{
		Partner:   p,
		Mode:      mode,
		Draft:     ws.Draft,
		Uploading: s.guard.Busy(busy.Key(ws.SessionID, p.Slug, busy.ActionUpload)),
		Approving: s.guard.Busy(busy.Key(ws.SessionID, p.Slug, busy.ActionApprove)),
		UpdatedAt: ws.UpdatedAt,
	}
}

// lock takes the workspace mutex and returns its release.
func (s *Service) lock(sessionID, partner string) func() {
	key := busy.Key(sessionID, partner)

	s.locksMutex.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &workspaceLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMutex.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMutex.Unlock()
	}
}

func amount(v receipt.Value) *float64 {
	f := v.Number()
	if !v.Present || v.Raw == nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
