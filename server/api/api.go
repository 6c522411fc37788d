// Package api exposes the thin REST surface around the sync engine: session
// creation/lookup, stats, and a health probe. No synchronization logic lives
// here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/bannushaxddd/SYNCOUT/server/session"
)

// Stats augments live counts with lifetime numbers when a metadata store is
// configured.
type Stats interface {
	LifetimeSessions(ctx context.Context) (int64, error)
}

// Handler serves the REST endpoints.
type Handler struct {
	registry *session.Registry
	stats    Stats // may be nil
}

// New creates a REST handler. stats may be nil.
func New(registry *session.Registry, stats Stats) *Handler {
	return &Handler{registry: registry, stats: stats}
}

// Register attaches the REST routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", h.createSession).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{session_id}", h.getSession).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", h.getStats).Methods(http.MethodGet)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createSession(w http.ResponseWriter, _ *http.Request) {
	s := h.registry.Create()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.ID,
		"created_at": s.CreatedAt.Unix(),
		"join_url":   "/session/" + s.ID,
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["session_id"]
	s, err := h.registry.Get(code)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":  "Session not found",
				"exists": false,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	snap := s.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  s.ID,
		"language":    snap.Language,
		"users_count": len(snap.Users),
		"revision":    snap.Revision,
		"exists":      true,
	})
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	sessions, users := h.registry.Counts()
	body := map[string]any{
		"active_sessions": sessions,
		"total_users":     users,
		"uptime":          "running",
	}
	if h.stats != nil {
		if n, err := h.stats.LifetimeSessions(r.Context()); err == nil {
			body["lifetime_sessions"] = n
		} else {
			slog.Warn("stats query failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
