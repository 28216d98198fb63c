// Package audit writes every remote call to the api_calls log.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// maxStored caps request and response bodies kept per call.
const maxStored = 64 << 10

// Recorder is an upstream.Observer backed by storage.
type Recorder struct {
	repo   storage.APICallRepository
	logger *slog.Logger
}

// NewRecorder returns a recorder writing to repo.
func NewRecorder(repo storage.APICallRepository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

var _ upstream.Observer = (*Recorder)(nil)

// ObserveCall stores the call under the session found in ctx. Storage
// failures are logged and never reach the caller.
func (r *Recorder) ObserveCall(ctx context.Context, call upstream.Call) {
	rec := Record(ctx, call)

	// The request may already be cancelled; the log entry should still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.repo.LogAPICall(writeCtx, rec); err != nil {
		r.logger.Warn("Failed to log API call",
			"service", call.Service,
			"path", call.Path,
			"error", err)
	}
}

// Record maps a finished call onto its stored form.
func Record(ctx context.Context, call upstream.Call) *storage.APICall {
	rec := &storage.APICall{
		Service:      call.Service,
		Method:       call.Method,
		Path:         call.Path,
		RequestJSON:  truncate(call.Request),
		ResponseJSON: truncate(call.Response),
		StatusCode:   call.StatusCode,
		DurationMs:   call.Duration.Milliseconds(),
		Timestamp:    call.StartedAt,
	}
	if st, ok := session.FromContext(ctx); ok {
		rec.SessionID = st.ID
	}
	if call.Err != nil {
		rec.Error = call.Err.Error()
	}
	return rec
}

func truncate(body []byte) string {
	if len(body) > maxStored {
		return string(body[:maxStored])
	}
	return string(body)
}
