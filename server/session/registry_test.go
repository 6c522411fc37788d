package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry(0)
	s := r.Create()
	assert.Len(t, s.ID, 8)

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	// Codes are case-insensitive on lookup.
	got, err = r.Get(strings.ToLower(s.ID))
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = r.Get("NOPE1234")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryCounts(t *testing.T) {
	r := NewRegistry(0)
	a := r.Create()
	b := r.Create()
	_, err := a.Join("u1", "one")
	require.NoError(t, err)
	_, err = a.Join("u2", "two")
	require.NoError(t, err)
	_, err = b.Join("u3", "three")
	require.NoError(t, err)

	sessions, users := r.Counts()
	assert.Equal(t, 2, sessions)
	assert.Equal(t, 3, users)
}

func TestRegistryReapsLingeringEmptySessions(t *testing.T) {
	r := NewRegistry(time.Minute)
	var destroyed []string
	r.OnDestroy = func(s *Session) { destroyed = append(destroyed, s.ID) }

	occupied := r.Create()
	_, err := occupied.Join("u1", "one")
	require.NoError(t, err)

	abandoned := r.Create()
	_, err = abandoned.Join("u2", "two")
	require.NoError(t, err)
	abandoned.Leave("u2")

	// Not yet past the linger window.
	assert.Equal(t, 0, r.Reap(time.Now()))

	n := r.Reap(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{abandoned.ID}, destroyed)

	_, err = r.Get(abandoned.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = r.Get(occupied.ID)
	assert.NoError(t, err)
}

func TestRegistryReapSparesRejoinedSessions(t *testing.T) {
	r := NewRegistry(time.Minute)
	s := r.Create()
	_, err := s.Join("u1", "one")
	require.NoError(t, err)
	s.Leave("u1")
	_, err = s.Join("u1", "one")
	require.NoError(t, err)

	assert.Equal(t, 0, r.Reap(time.Now().Add(time.Hour)))
}
