package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/logging"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

func TestRecorder_StoresCallUnderSession(t *testing.T) {
	repo := storage.NewMockRepository()
	rec := NewRecorder(repo, logging.Discard())

	started := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ctx := session.WithState(context.Background(), session.New("sid-9", started))

	rec.ObserveCall(ctx, upstream.Call{
		Service:    "receipt-api",
		Method:     "POST",
		Path:       "/process_image",
		Request:    []byte(`{"image_url":"uploads/a.jpg"}`),
		Response:   []byte(`{"order_id":"A1"}`),
		StatusCode: 200,
		Duration:   1500 * time.Millisecond,
		StartedAt:  started,
	})

	calls := repo.APICalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sid-9", calls[0].SessionID)
	assert.Equal(t, "/process_image", calls[0].Path)
	assert.Equal(t, `{"image_url":"uploads/a.jpg"}`, calls[0].RequestJSON)
	assert.Equal(t, int64(1500), calls[0].DurationMs)
	assert.Empty(t, calls[0].Error)
}

func TestRecorder_CancelledRequestStillLogged(t *testing.T) {
	repo := storage.NewMockRepository()
	rec := NewRecorder(repo, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.ObserveCall(ctx, upstream.Call{Service: "backend-api", Method: "GET", Path: "/customers", Err: context.Canceled})

	calls := repo.APICalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].SessionID)
	assert.Equal(t, context.Canceled.Error(), calls[0].Error)
}

func TestRecorder_StorageFailureIsSwallowed(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.LogAPICallErr = errors.New("disk full")

	assert.NotPanics(t, func() {
		NewRecorder(repo, logging.Discard()).ObserveCall(context.Background(), upstream.Call{Service: "x"})
	})
	assert.True(t, repo.LogAPICallCalled)
}

func TestRecord_TruncatesBodies(t *testing.T) {
	big := []byte(strings.Repeat("a", maxStored+10))

	rec := Record(context.Background(), upstream.Call{Response: big})
	assert.Len(t, rec.ResponseJSON, maxStored)
}
