package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/api/middleware"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeSessions keeps sessions in a map.
type fakeSessions struct {
	states     map[string]session.State
	remembered []string
	resolveErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{states: make(map[string]session.State)}
}

func (f *fakeSessions) Resolve(_ context.Context, id string) (session.State, error) {
	if f.resolveErr != nil {
		return session.State{}, f.resolveErr
	}
	if st, ok := f.states[id]; ok {
		return st, nil
	}
	st := session.New("fresh-id", now)
	f.states[st.ID] = st
	return st, nil
}

func (f *fakeSessions) Remember(_ context.Context, st session.State, path string) (session.State, error) {
	f.remembered = append(f.remembered, path)
	st = st.Remember(path, now)
	f.states[st.ID] = st
	return st, nil
}

func (f *fakeSessions) Now() time.Time {
	return now
}

var cookie = middleware.CookieConfig{Name: "sid", MaxAge: time.Hour}

func TestLogging(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("logs request and passes through", func(t *testing.T) {
		router := gin.New()
		router.Use(middleware.Logging(logger))
		router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "OK") })

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("keeps an incoming request id", func(t *testing.T) {
		router := gin.New()
		router.Use(middleware.Logging(logger))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, c.GetString(middleware.RequestIDKey))
		})

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Body.String())
		assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("captures non-200 status codes", func(t *testing.T) {
		router := gin.New()
		router.Use(middleware.Logging(logger))
		router.GET("/notfound", func(c *gin.Context) { c.Status(http.StatusNotFound) })

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notfound", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	cfg := middleware.CORSConfig{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}

	router := gin.New()
	router.Use(middleware.CORS(cfg))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("sets CORS headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("rejects disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "http://evil.com")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("handles OPTIONS preflight request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := middleware.DefaultCORSConfig()

	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:3000")
	assert.Contains(t, cfg.AllowedMethods, "PATCH")
	assert.Contains(t, cfg.AllowedHeaders, "Content-Type")
}

func gatedRouter(sessions *fakeSessions) *gin.Engine {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	router := gin.New()
	app := router.Group("/", middleware.Session(sessions, cookie, logger))
	app.GET("/open", func(c *gin.Context) {
		st, _ := session.FromContext(c.Request.Context())
		c.String(http.StatusOK, st.ID)
	})
	gated := app.Group("/", middleware.Gate(sessions, logger))
	gated.GET("/customers", func(c *gin.Context) { c.String(http.StatusOK, "customers") })
	gated.POST("/upload/:partner/approve", func(c *gin.Context) { c.String(http.StatusOK, "approved") })
	return router
}

func TestSession(t *testing.T) {
	t.Run("new session gets a cookie", func(t *testing.T) {
		router := gatedRouter(newFakeSessions())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "fresh-id", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "sid=fresh-id")
		assert.Contains(t, rec.Header().Get("Set-Cookie"), "HttpOnly")
	})

	t.Run("known session is reused without a new cookie", func(t *testing.T) {
		sessions := newFakeSessions()
		sessions.states["known"] = session.New("known", now)
		router := gatedRouter(sessions)

		req := httptest.NewRequest(http.MethodGet, "/open", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "known"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "known", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Set-Cookie"))
	})

	t.Run("store failure is a 500", func(t *testing.T) {
		sessions := newFakeSessions()
		sessions.resolveErr = errors.New("db down")
		router := gatedRouter(sessions)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGate(t *testing.T) {
	t.Run("anonymous page request gets the login entry point", func(t *testing.T) {
		sessions := newFakeSessions()
		router := gatedRouter(sessions)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers?days=7", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{
			"code": "unauthenticated",
			"message": "Please log in to continue.",
			"login_path": "/login",
			"from": "/customers?days=7"
		}`, rec.Body.String())
		assert.Equal(t, []string{"/customers?days=7"}, sessions.remembered)
		assert.Equal(t, "/customers?days=7", sessions.states["fresh-id"].ReturnTo)
	})

	t.Run("anonymous action is refused but not remembered", func(t *testing.T) {
		sessions := newFakeSessions()
		router := gatedRouter(sessions)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload/talabat/approve", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, sessions.remembered)
	})

	t.Run("signed-in session passes", func(t *testing.T) {
		sessions := newFakeSessions()
		sessions.states["staff"] = session.New("staff", now).SignIn("aisha", "tok", now, time.Hour)
		router := gatedRouter(sessions)

		req := httptest.NewRequest(http.MethodGet, "/customers", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "staff"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "customers", rec.Body.String())
	})

	t.Run("expired session is turned away", func(t *testing.T) {
		sessions := newFakeSessions()
		sessions.states["staff"] = session.New("staff", now).SignIn("aisha", "tok", now.Add(-2*time.Hour), time.Hour)
		router := gatedRouter(sessions)

		req := httptest.NewRequest(http.MethodGet, "/customers", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: "staff"})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
