// Package hub fans accepted operations and presence events out to every
// connection in a session. Each session has exactly one hub goroutine; it
// drains a single inbound queue, so the order clients observe is always the
// order revisions were assigned.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bannushaxddd/SYNCOUT/server/ot"
	"github.com/bannushaxddd/SYNCOUT/server/session"
	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

// Backplane mirrors broadcast frames across server instances. Subscribe must
// not deliver frames published through the same Backplane instance.
type Backplane interface {
	Publish(ctx context.Context, sessionID string, frame []byte) error
	Subscribe(ctx context.Context, sessionID string) <-chan []byte
}

// frame is one decoded inbound message paired with its origin.
type frame struct {
	client *Client
	msg    wire.Inbound
}

// Hub routes traffic for a single session, which it owns for its lifetime.
type Hub struct {
	session *session.Session
	bp      Backplane

	register   chan *Client
	unregister chan *Client
	inbound    chan frame

	// conns and all per-client join state are owned by the run goroutine.
	conns map[*Client]bool
	ctx   context.Context

	// done is closed when Run returns so pumps never block on a dead hub.
	done chan struct{}
}

// New creates a hub for s. bp may be nil for single-instance deployments.
func New(s *session.Session, bp Backplane) *Hub {
	return &Hub{
		session:    s,
		bp:         bp,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan frame, 64),
		conns:      make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run processes traffic until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.ctx = ctx
	var relay <-chan []byte
	if h.bp != nil {
		relay = h.bp.Subscribe(ctx, h.session.ID)
	}
	for {
		select {
		case <-ctx.Done():
			for c := range h.conns {
				delete(h.conns, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.conns[c] = true
		case c := <-h.unregister:
			h.drop(c)
		case f := <-h.inbound:
			h.handle(f)
		case buf, ok := <-relay:
			if !ok {
				relay = nil
				continue
			}
			h.fanout(buf, nil)
		}
	}
}

// drop disconnects a client, running the leave path if it had joined.
func (h *Hub) drop(c *Client) {
	if !h.conns[c] {
		return
	}
	delete(h.conns, c)
	close(c.send)
	if !c.joined {
		return
	}
	h.session.Leave(c.user.ID)
	slog.Info("user left", "session", h.session.ID, "user", c.user.ID)
	h.broadcast(wire.Marshal(wire.Presence{
		Type:  wire.TypeUserLeft,
		User:  userInfo(c.user),
		Users: h.roster(),
	}), nil)
}

func (h *Hub) handle(f frame) {
	c := f.client
	switch m := f.msg.(type) {
	case wire.Join:
		h.handleJoin(c, m)
	case wire.Operation:
		h.handleOperation(c, m)
	case wire.Cursor:
		h.handleCursor(c, m)
	case wire.Chat:
		h.handleChat(c, m)
	case wire.Language:
		h.handleLanguage(c, m)
	case wire.Ping:
		c.enqueue(wire.Marshal(wire.Pong{Type: wire.TypePong}))
	}
}

func (h *Hub) handleJoin(c *Client, m wire.Join) {
	if c.joined {
		h.sendError(c, "already joined")
		return
	}
	name := m.Name
	if name == "" {
		name = fmt.Sprintf("User%d", h.session.UserCount()+1)
	}
	u, err := h.session.Join(session.NewUserID(), name)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	c.user = u
	c.joined = true
	slog.Info("user joined", "session", h.session.ID, "user", u.ID, "name", u.Name)

	snap := h.session.Snapshot()
	c.enqueue(wire.Marshal(wire.Init{
		Type:      wire.TypeInit,
		UserID:    u.ID,
		UserName:  u.Name,
		UserColor: u.Color,
		Code:      snap.Buffer,
		Language:  snap.Language,
		Revision:  snap.Revision,
		Users:     rosterInfo(snap.Users),
	}))
	h.broadcast(wire.Marshal(wire.Presence{
		Type:  wire.TypeUserJoined,
		User:  userInfo(u),
		Users: rosterInfo(snap.Users),
	}), c)
}

func (h *Hub) handleOperation(c *Client, m wire.Operation) {
	if !c.joined {
		h.sendError(c, "join first")
		return
	}
	op, err := opFromWire(m)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	acc, err := h.session.Apply(c.user.ID, op, m.Revision)
	if err != nil {
		// Dropped operation: no broadcast, session untouched, only the
		// originator hears about it.
		h.sendError(c, err.Error())
		return
	}
	if ot.IsNoop(acc.Op) {
		// Still broadcast: clients track the revision it consumed.
		slog.Debug("operation degraded to no-op", "session", h.session.ID, "revision", acc.Revision)
	}
	out := wire.OperationOut{
		Type:     wire.TypeOperation,
		UserID:   c.user.ID,
		UserName: c.user.Name,
		Revision: acc.Revision,
	}
	switch o := acc.Op.(type) {
	case ot.Insert:
		out.OpType, out.Position, out.Content = ot.KindInsert, o.Pos, o.Text
	case ot.Delete:
		out.OpType, out.Position, out.Length = ot.KindDelete, o.Pos, o.Len
	case ot.Replace:
		out.OpType, out.Content = ot.KindReplace, o.Text
	}
	h.broadcast(wire.Marshal(out), c)
}

func (h *Hub) handleCursor(c *Client, m wire.Cursor) {
	if !c.joined {
		return
	}
	h.session.SetCursor(c.user.ID, session.Cursor{Position: m.Position, Line: m.Line, Column: m.Column})
	h.broadcast(wire.Marshal(wire.CursorOut{
		Type:      wire.TypeCursor,
		UserID:    c.user.ID,
		UserName:  c.user.Name,
		UserColor: c.user.Color,
		Position:  m.Position,
		Line:      m.Line,
		Column:    m.Column,
	}), c)
}

func (h *Hub) handleChat(c *Client, m wire.Chat) {
	if !c.joined {
		return
	}
	// Chat echoes back to the sender as well.
	h.broadcast(wire.Marshal(wire.ChatOut{
		Type:      wire.TypeChat,
		UserID:    c.user.ID,
		UserName:  c.user.Name,
		UserColor: c.user.Color,
		Message:   m.Message,
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}), nil)
}

func (h *Hub) handleLanguage(c *Client, m wire.Language) {
	if !c.joined {
		return
	}
	h.session.SetLanguage(m.Language)
	h.broadcast(wire.Marshal(wire.LanguageOut{
		Type:     wire.TypeLanguage,
		Language: m.Language,
		UserID:   c.user.ID,
		UserName: c.user.Name,
	}), c)
}

// broadcast fans a frame out to every joined client except one, and mirrors
// it to the backplane when one is configured.
func (h *Hub) broadcast(buf []byte, except *Client) {
	h.fanout(buf, except)
	if h.bp != nil {
		if err := h.bp.Publish(h.ctx, h.session.ID, buf); err != nil {
			slog.Warn("backplane publish failed", "session", h.session.ID, "error", err)
		}
	}
}

func (h *Hub) fanout(buf []byte, except *Client) {
	var dead []*Client
	for c := range h.conns {
		if c == except || !c.joined {
			continue
		}
		if !c.enqueue(buf) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		slog.Warn("dropping slow client", "session", h.session.ID, "user", c.user.ID)
		h.drop(c)
	}
}

func (h *Hub) sendError(c *Client, reason string) {
	c.enqueue(wire.Marshal(wire.Error{Type: wire.TypeError, Reason: reason}))
}

func (h *Hub) roster() []wire.UserInfo {
	return rosterInfo(h.session.Snapshot().Users)
}

func opFromWire(m wire.Operation) (ot.Op, error) {
	if m.Position < 0 || m.Length < 0 || m.Revision < 0 {
		return nil, &session.ValidationError{Reason: "negative field"}
	}
	switch m.OpType {
	case ot.KindInsert:
		return ot.Insert{Pos: m.Position, Text: m.Content}, nil
	case ot.KindDelete:
		return ot.Delete{Pos: m.Position, Len: m.Length}, nil
	case ot.KindReplace:
		return ot.Replace{Text: m.Content}, nil
	default:
		return nil, &session.ValidationError{Reason: fmt.Sprintf("unknown op_type %q", m.OpType)}
	}
}

func userInfo(u session.User) wire.UserInfo {
	return wire.UserInfo{
		ID:             u.ID,
		Name:           u.Name,
		Color:          u.Color,
		CursorPosition: u.Cursor.Position,
	}
}

func rosterInfo(users []session.User) []wire.UserInfo {
	out := make([]wire.UserInfo, len(users))
	for i, u := range users {
		out[i] = userInfo(u)
	}
	return out
}
