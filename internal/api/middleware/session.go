package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// Sessions resolves and updates sessions.
type Sessions interface {
	Resolve(ctx context.Context, id string) (session.State, error)
	Remember(ctx context.Context, st session.State, path string) (session.State, error)
	Now() time.Time
}

// CookieConfig names the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Session returns middleware that resolves the caller's session from its
// cookie and puts it on the request context. A new session gets a cookie.
func Session(sessions Sessions, cookie CookieConfig, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookie.Name)

		st, err := sessions.Resolve(c.Request.Context(), id)
		if err != nil {
			logger.Error("failed to resolve session", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.InternalError())
			return
		}

		if st.ID != id {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookie.Name, st.ID, int(cookie.MaxAge/time.Second), "/", "", cookie.Secure, true)
		}

		c.Request = c.Request.WithContext(session.WithState(c.Request.Context(), st))
		c.Next()
	}
}

// Gate returns middleware that turns away anonymous sessions. A requested
// page (GET) is remembered so a later sign-in can return to it.
func Gate(sessions Sessions, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, _ := session.FromContext(c.Request.Context())
		if st.Authenticated(sessions.Now()) {
			c.Next()
			return
		}

		from := c.Request.URL.RequestURI()
		if c.Request.Method == http.MethodGet {
			if _, err := sessions.Remember(c.Request.Context(), st, from); err != nil {
				logger.Warn("failed to remember return path", "path", from, "error", err)
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.GateResponse{
			APIError:  dto.NewAPIError(dto.ErrCodeUnauthenticated, "Please log in to continue."),
			LoginPath: session.LoginPath,
			From:      from,
		})
	}
}
