// Package busy tracks in-flight actions so a second start of the same action
// is refused instead of run twice.
package busy

import (
	"errors"
	"strings"
	"sync"
)

// ErrInProgress is returned when the action is already running.
var ErrInProgress = errors.New("action already in progress")

// Actions guarded per session.
const (
	ActionUpload          = "upload"
	ActionApprove         = "approve"
	ActionCustomersLoad   = "customers-load"
	ActionCustomersToggle = "customers-toggle"
	ActionCustomersSearch = "customers-search"
	ActionCustomersDelete = "customers-delete"
	ActionCustomersExport = "customers-export"
)

// Guard is a set of busy flags. The zero value is not usable; call New.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// Key joins the parts of a flag name, e.g. session, partner and action.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}

// Acquire raises the flag for key. The returned release lowers it and is safe
// to call more than once.
func (g *Guard) Acquire(key string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.active[key]; ok {
		return nil, ErrInProgress
	}
	g.active[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.active, key)
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether the flag for key is raised.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[key]
	return ok
}
