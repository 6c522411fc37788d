package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bannushaxddd/SYNCOUT/server/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sessions are capability-keyed by their code; any origin may join.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Manager maps sessions to their hubs and serves the websocket endpoint.
type Manager struct {
	registry *session.Registry
	bp       Backplane

	mu   sync.Mutex
	hubs map[string]*hubHandle
	ctx  context.Context
}

type hubHandle struct {
	hub    *Hub
	cancel context.CancelFunc
}

// NewManager creates a manager over the given registry. bp may be nil.
func NewManager(ctx context.Context, registry *session.Registry, bp Backplane) *Manager {
	return &Manager{
		registry: registry,
		bp:       bp,
		hubs:     make(map[string]*hubHandle),
		ctx:      ctx,
	}
}

// ServeWS upgrades /ws/{session_id}. Unknown codes are refused before the
// upgrade; session creation is the REST layer's job.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["session_id"]
	s, err := m.registry.Get(code)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "session", s.ID, "error", err)
		return
	}
	h := m.hubFor(s)
	c := newClient(h, conn)
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// hubFor returns the running hub for s, starting one if needed.
func (m *Manager) hubFor(s *session.Session) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hh, ok := m.hubs[s.ID]; ok {
		return hh.hub
	}
	ctx, cancel := context.WithCancel(m.ctx)
	h := New(s, m.bp)
	m.hubs[s.ID] = &hubHandle{hub: h, cancel: cancel}
	go h.Run(ctx)
	return h
}

// CloseHub stops the hub for a destroyed session. Wire this to the
// registry's OnDestroy hook.
func (m *Manager) CloseHub(sessionID string) {
	m.mu.Lock()
	hh, ok := m.hubs[sessionID]
	if ok {
		delete(m.hubs, sessionID)
	}
	m.mu.Unlock()
	if ok {
		hh.cancel()
	}
}
