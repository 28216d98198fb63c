// Package session models the login state of a staff session.
//
// A State is resolved once per request and carried in the request context.
// Handlers ask it whether the caller is authenticated instead of looking for
// a token themselves.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginPath is the entry point anonymous callers are sent to.
const LoginPath = "/login"

// Status is the coarse login state.
type Status string

const (
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

// State is one browser session. The zero ExpiresAt means no expiry is known.
type State struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	ReturnTo  string    `json:"return_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New returns an anonymous session.
func New(id string, now time.Time) State {
	return State{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Authenticated reports whether the session holds a token that has not
// expired at now.
func (s State) Authenticated(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Status returns the login state at now.
func (s State) Status(now time.Time) Status {
	if s.Authenticated(now) {
		return StatusAuthenticated
	}
	return StatusAnonymous
}

// SignIn stores the token and its expiry. JWTs carry their own expiry; any
// other token expires after ttl. A zero ttl means no expiry.
func (s State) SignIn(username, token string, now time.Time, ttl time.Duration) State {
	s.Username = username
	s.Token = token
	s.ExpiresAt = TokenExpiry(token, now, ttl)
	s.UpdatedAt = now
	return s
}

// SignOut drops the credentials. The session id survives.
func (s State) SignOut(now time.Time) State {
	s.Username = ""
	s.Token = ""
	s.ExpiresAt = time.Time{}
	s.ReturnTo = ""
	s.UpdatedAt = now
	return s
}

// Remember records where a gated request wanted to go.
func (s State) Remember(path string, now time.Time) State {
	s.ReturnTo = SafeReturnTo(path)
	s.UpdatedAt = now
	return s
}

// Resume returns the recorded destination, or "/" when there is none, and
// clears it.
func (s State) Resume(now time.Time) (State, string) {
	target := s.ReturnTo
	if target == "" {
		target = "/"
	}
	s.ReturnTo = ""
	s.UpdatedAt = now
	return s, target
}

// TokenExpiry reads the exp claim of a JWT without verifying the signature.
// The backend verifies tokens; this only decides when to stop sending one.
// Tokens that are not JWTs, or JWTs without exp, fall back to now+ttl.
func TokenExpiry(token string, now time.Time, ttl time.Duration) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// SafeReturnTo keeps only local absolute paths.
func SafeReturnTo(path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.HasPrefix(path, "/\\") {
		return "/"
	}
	if path == LoginPath || strings.HasPrefix(path, LoginPath+"?") {
		return "/"
	}
	return path
}

type ctxKey struct{}

// WithState attaches s to ctx.
func WithState(ctx context.Context, s State) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session attached by WithState.
func FromContext(ctx context.Context) (State, bool) {
	s, ok := ctx.Value(ctxKey{}).(State)
	return s, ok
}
