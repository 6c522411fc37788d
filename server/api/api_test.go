package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannushaxddd/SYNCOUT/server/api"
	"github.com/bannushaxddd/SYNCOUT/server/session"
)

type fixedStats int64

func (f fixedStats) LifetimeSessions(context.Context) (int64, error) { return int64(f), nil }

func newServer(t *testing.T, registry *session.Registry, stats api.Stats) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	api.New(registry, stats).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv := newServer(t, session.NewRegistry(0), nil)
	var body map[string]string
	code := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateAndGetSession(t *testing.T) {
	registry := session.NewRegistry(0)
	srv := newServer(t, registry, nil)

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var created struct {
		SessionID string `json:"session_id"`
		JoinURL   string `json:"join_url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Len(t, created.SessionID, 8)
	assert.Equal(t, "/session/"+created.SessionID, created.JoinURL)

	var got struct {
		SessionID  string `json:"session_id"`
		Language   string `json:"language"`
		UsersCount int    `json:"users_count"`
		Revision   int    `json:"revision"`
		Exists     bool   `json:"exists"`
	}
	code := getJSON(t, srv.URL+"/api/sessions/"+created.SessionID, &got)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, got.Exists)
	assert.Equal(t, created.SessionID, got.SessionID)
	assert.Equal(t, session.DefaultLanguage, got.Language)
	assert.Zero(t, got.UsersCount)
}

func TestGetMissingSession(t *testing.T) {
	srv := newServer(t, session.NewRegistry(0), nil)
	var got struct {
		Exists bool `json:"exists"`
	}
	code := getJSON(t, srv.URL+"/api/sessions/NOPE1234", &got)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, got.Exists)
}

func TestStats(t *testing.T) {
	registry := session.NewRegistry(0)
	s := registry.Create()
	_, err := s.Join("u1", "one")
	require.NoError(t, err)

	srv := newServer(t, registry, fixedStats(42))
	var got struct {
		ActiveSessions   int   `json:"active_sessions"`
		TotalUsers       int   `json:"total_users"`
		LifetimeSessions int64 `json:"lifetime_sessions"`
	}
	code := getJSON(t, srv.URL+"/api/stats", &got)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, got.ActiveSessions)
	assert.Equal(t, 1, got.TotalUsers)
	assert.Equal(t, int64(42), got.LifetimeSessions)
}
