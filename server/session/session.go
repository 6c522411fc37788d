// Package session owns the authoritative state of one shared document: its
// buffer, revision counter, participant roster, and the serialized apply
// path that keeps concurrent editors convergent.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bannushaxddd/SYNCOUT/server/ot"
)

const (
	// DefaultBuffer seeds newly created sessions.
	DefaultBuffer = "# Welcome to SYNCOUT!\n# Start typing to collaborate...\n\nprint('Hello, World!')\n"

	// DefaultLanguage is the language a session starts in.
	DefaultLanguage = "python"

	// historyCap bounds the retained operation history. An op based on a
	// revision older than the window cannot be transformed and is rejected.
	historyCap = 100
)

// userColors is the palette assigned to participants round-robin.
var userColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4",
	"#FFEAA7", "#DDA0DD", "#98FB98", "#FFA07A",
	"#87CEEB", "#F0E68C",
}

// Cursor is a participant's caret location.
type Cursor struct {
	Position int
	Line     int
	Column   int
}

// User is one participant in a session.
type User struct {
	ID     string
	Name   string
	Color  string
	Cursor Cursor
}

// Snapshot is a consistent read of a session, taken under the same lock that
// serializes Apply.
type Snapshot struct {
	Buffer   string
	Revision int
	Language string
	Users    []User
}

// Session is one shared document. All exported methods are safe for
// concurrent use; buffer, revision and history only ever change under mu.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	buffer    string
	revision  int
	language  string
	users     map[string]*User
	joined    int // total joins, drives color assignment
	history   []ot.Accepted
	emptiedAt time.Time // zero while the session has participants
}

// New creates a session with the given code and the default buffer.
func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		buffer:    DefaultBuffer,
		language:  DefaultLanguage,
		users:     make(map[string]*User),
		emptiedAt: now,
	}
}

// NewUserID returns a fresh 8-char participant id.
func NewUserID() string {
	return uuid.NewString()[:8]
}

// Join adds a participant. The only failure mode is a duplicate user id
// within this session.
func (s *Session) Join(userID, name string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return User{}, &ConflictError{UserID: userID}
	}
	u := &User{
		ID:    userID,
		Name:  name,
		Color: userColors[s.joined%len(userColors)],
	}
	s.joined++
	s.users[userID] = u
	s.emptiedAt = time.Time{}
	return *u, nil
}

// Leave removes a participant. Removing the last one transitions the session
// to Empty, which makes it eligible for reaping.
func (s *Session) Leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	if len(s.users) == 0 {
		s.emptiedAt = time.Now()
	}
}

// Apply validates, transforms and applies one operation, returning the
// canonical operation stamped with the revision it produced. The whole
// read-transform-mutate-increment sequence runs under the session lock, so
// concurrent submitters are linearized and every replica sees the same
// history.
func (s *Session) Apply(userID string, op ot.Op, baseRevision int) (ot.Accepted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rep, ok := op.(ot.Replace); ok {
		// Coarse path: set the buffer verbatim, no transform, never fails.
		// Still takes a revision so the logical clock stays monotonic.
		s.buffer = rep.Text
		return s.commit(userID, rep), nil
	}

	if baseRevision > s.revision {
		return ot.Accepted{}, &ValidationError{Reason: "base revision is ahead of the session"}
	}
	if stale := s.revision - baseRevision; stale > 0 {
		if stale > len(s.history) {
			return ot.Accepted{}, &ValidationError{Reason: "base revision too old to transform"}
		}
		op = ot.TransformAgainst(op, userID, s.history[len(s.history)-stale:])
	}

	next, err := op.Apply(s.buffer)
	if err != nil {
		return ot.Accepted{}, boundsError(op, s.buffer)
	}
	s.buffer = next
	return s.commit(userID, op), nil
}

// commit records an applied op in the history and bumps the revision.
// Caller holds mu.
func (s *Session) commit(userID string, op ot.Op) ot.Accepted {
	s.revision++
	acc := ot.Accepted{Op: op, UserID: userID, Revision: s.revision}
	s.history = append(s.history, acc)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	return acc
}

func boundsError(op ot.Op, buf string) error {
	e := &OutOfBoundsError{BufLen: ot.Len16(buf)}
	switch o := op.(type) {
	case ot.Insert:
		e.Pos = o.Pos
	case ot.Delete:
		e.Pos, e.Len = o.Pos, o.Len
	}
	return e
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Buffer:   s.buffer,
		Revision: s.revision,
		Language: s.language,
		Users:    make([]User, 0, len(s.users)),
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, *u)
	}
	// Stable roster order keeps repeated snapshots identical.
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	return snap
}

// Revision returns the current revision.
func (s *Session) Revision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// UserCount returns the number of current participants.
func (s *Session) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// User returns the participant with the given id.
func (s *Session) User(userID string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Language returns the session language.
func (s *Session) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// SetLanguage switches the session language.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// SetCursor updates a participant's caret.
func (s *Session) SetCursor(userID string, c Cursor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.Cursor = c
	}
}

// EmptySince returns the instant the session lost its last participant, or
// false if it currently has any.
func (s *Session) EmptySince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.users) > 0 || s.emptiedAt.IsZero() {
		return time.Time{}, false
	}
	return s.emptiedAt, true
}
