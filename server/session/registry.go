package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLinger is how long an empty session survives before the reaper
// destroys it, so a code stays joinable across a brief full disconnect.
const DefaultLinger = 5 * time.Minute

// Registry is the process-wide session table, keyed by 8-char codes.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	linger   time.Duration

	// OnCreate/OnDestroy observe lifecycle transitions (metadata store,
	// logging). Set before Serve traffic; may be nil.
	OnCreate  func(s *Session)
	OnDestroy func(s *Session)
}

// NewRegistry creates an empty registry. linger <= 0 means DefaultLinger.
func NewRegistry(linger time.Duration) *Registry {
	if linger <= 0 {
		linger = DefaultLinger
	}
	return &Registry{
		sessions: make(map[string]*Session),
		linger:   linger,
	}
}

// NewCode returns a fresh session code.
func NewCode() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Create inserts a new session under a fresh code.
func (r *Registry) Create() *Session {
	s := New(NewCode())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	if r.OnCreate != nil {
		r.OnCreate(s)
	}
	slog.Info("session created", "session", s.ID)
	return s
}

// Get looks up a session by code (case-insensitive).
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[strings.ToUpper(id)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Counts returns the number of sessions and total connected participants.
func (r *Registry) Counts() (sessions, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		users += s.UserCount()
	}
	return len(r.sessions), users
}

// Reap destroys sessions that have been empty longer than the linger window.
// Returns the number destroyed.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	var dead []*Session
	for id, s := range r.sessions {
		if since, empty := s.EmptySince(); empty && now.Sub(since) >= r.linger {
			delete(r.sessions, id)
			dead = append(dead, s)
		}
	}
	r.mu.Unlock()
	for _, s := range dead {
		if r.OnDestroy != nil {
			r.OnDestroy(s)
		}
		slog.Info("session destroyed", "session", s.ID)
	}
	return len(dead)
}

// RunReaper reaps periodically until ctx is done.
func (r *Registry) RunReaper(ctx context.Context) {
	t := time.NewTicker(r.linger / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.Reap(now)
		}
	}
}
