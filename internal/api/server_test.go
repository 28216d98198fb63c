package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/api"
	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/application/audit"
	"github.com/eshaffer321/receipt-desk/internal/application/auth"
	"github.com/eshaffer321/receipt-desk/internal/application/busy"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/sessionstore"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

const testToken = "tok-123"

// fakeRemote plays both the upload/OCR service and the backend API.
type fakeRemote struct {
	*httptest.Server

	mu        sync.Mutex
	approvals []map[string]any
	deleted   []string
	// processPayload is what /process_image answers with.
	processPayload string
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{
		processPayload: `{"order_ID":"A1","customerName":"Jo","orderItemList":[{"itemName":"Rice","price":10,"quantity":2}],"totalAmount":10}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload_image", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("image"); err != nil {
			http.Error(w, "no image", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"file_path": "uploads/receipt.jpg"})
	})
	mux.HandleFunc("POST /process_image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, f.processPayload)
	})
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds backendapi.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": testToken})
	})
	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]string{"message": "created"})
	})
	mux.HandleFunc("POST /orders/approve_order", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.approvals = append(f.approvals, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"message": "Order approved"})
	})
	mux.HandleFunc("GET /customers", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"customers": []map[string]any{
			{"id": 1, "name": "Jo", "phone_number": "555-0101", "last_delivery_partner": "Talabat"},
			{"id": 2, "name": "Sam", "phone_number": "555-0102", "order_count": 4},
		}})
	}))
	mux.HandleFunc("GET /customers/search", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("minOrders") != "3" {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 2, "name": "Sam", "order_count": 4},
			{"id": 3, "name": "Noor", "order_count": 3},
		})
	}))
	mux.HandleFunc("GET /customers/download-csv", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "id,name\n2,Sam\n")
	}))
	mux.HandleFunc("GET /customers/{id}/orders", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{
			"id":               10,
			"order_id":         "A1",
			"order_date":       "2024-04-01T10:00:00Z",
			"total":            36,
			"delivery_partner": "Talabat",
			"OrderItems":       []map[string]any{{"id": 100, "item_name": "Rice", "quantity": 2, "price": 10}},
		}})
	}))
	mux.HandleFunc("DELETE /customers/{id}", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.PathValue("id"))
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	}))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeRemote) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (f *fakeRemote) Approvals() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.approvals...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newServer wires the real services against remote and repo.
func newServer(t *testing.T, remote *fakeRemote, repo storage.Repository) *api.Server {
	t.Helper()
	logger := testLogger()
	guard := busy.New()

	recorder := upstream.WithObserver(audit.NewRecorder(repo, logger))
	receiptClient := receiptapi.New(remote.URL, recorder)
	backendClient := backendapi.New(remote.URL, recorder)

	services := api.Services{
		Auth:      auth.NewService(backendClient, sessionstore.NewSQL(repo), time.Hour, logger),
		Receipts:  receipts.NewService(repo, receiptClient, backendClient, nil, guard, logger),
		Customers: customers.NewService(backendClient, guard, logger),
	}
	return api.NewServer(api.DefaultConfig(), services, logger)
}

// client replays the session cookie the way a browser would.
type client struct {
	t      *testing.T
	server *api.Server
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.server.Router().ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == api.DefaultConfig().Cookie.Name {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) json(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *client) login() {
	rec := c.json(http.MethodPost, "/login", `{"username":"aisha","password":"secret"}`)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
}

func imageRequest(t *testing.T, path, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="receipt.jpg"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte("fake-jpeg"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServer_HealthEndpoint(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var response dto.HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response.Status)
	assert.Empty(t, rec.Header().Get("Set-Cookie"), "health check must not start a session")
}

func TestServer_GatedRoutesRequireLogin(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())

	paths := []string{"/", "/upload/talabat", "/customers", "/approvals"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			c := &client{t: t, server: server}
			rec := c.json(http.MethodGet, path, "")

			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var gate dto.GateResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&gate))
			assert.Equal(t, "/login", gate.LoginPath)
			assert.Equal(t, path, gate.From)
		})
	}
}

func TestServer_LoginResumesRequestedPage(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}

	rec := c.json(http.MethodGet, "/customers", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.json(http.MethodGet, "/login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status dto.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "anonymous", string(status.Status))
	assert.Equal(t, "/customers", status.ReturnTo)

	rec = c.json(http.MethodPost, "/login", `{"username":"aisha","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var loggedIn dto.SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loggedIn))
	assert.Equal(t, "authenticated", string(loggedIn.Status))
	assert.Equal(t, "aisha", loggedIn.Username)
	assert.Equal(t, "/customers", loggedIn.ReturnTo)

	rec = c.json(http.MethodGet, "/customers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_LoginRejectsBadCredentials(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}

	rec := c.json(http.MethodPost, "/login", `{"username":"aisha","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.json(http.MethodPost, "/login", `{"username":"","password":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.json(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RegisterAndLogout(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}

	rec := c.json(http.MethodPost, "/register", `{"username":"new","password":"pw","email":"new@example.com"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	c.login()
	rec = c.json(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.json(http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.json(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_PartnerSelector(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}
	c.login()

	rec := c.json(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.PartnerListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	var slugs []string
	for _, p := range resp.Partners {
		slugs = append(slugs, p.Slug)
	}
	assert.Equal(t, []string{"talabat", "snoonu", "rafeeq"}, slugs)

	rec = c.json(http.MethodGet, "/upload/deliveroo", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_UploadRejectsNonImage(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}
	c.login()

	rec := c.do(imageRequest(t, "/upload/talabat/receipt", "application/pdf"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.json(http.MethodPost, "/upload/talabat/receipt", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UploadFailureLeavesNoDraft(t *testing.T) {
	remote := newFakeRemote(t)
	remote.processPayload = `["not","an","object"]`
	server := newServer(t, remote, storage.NewMockRepository())
	c := &client{t: t, server: server}
	c.login()

	rec := c.do(imageRequest(t, "/upload/talabat/receipt", "image/jpeg"))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var apiErr dto.APIError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, dto.ErrCodeUpstreamMalformed, apiErr.Code)
	assert.Equal(t, "Error processing image. Please try again.", apiErr.Message)

	rec = c.json(http.MethodGet, "/upload/talabat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `null`, string(field(t, rec, "draft")))
}

func TestServer_EditRequiresDraft(t *testing.T) {
	server := newServer(t, newFakeRemote(t), storage.NewMockRepository())
	c := &client{t: t, server: server}
	c.login()

	rec := c.json(http.MethodPost, "/upload/talabat/edit", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.json(http.MethodPost, "/upload/talabat/approve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// field returns one top-level member of a JSON response.
func field(t *testing.T, rec *httptest.ResponseRecorder, name string) json.RawMessage {
	t.Helper()
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	return obj[name]
}
