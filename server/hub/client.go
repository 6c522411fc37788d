package hub

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bannushaxddd/SYNCOUT/server/session"
	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

// Client is one websocket connection bound to a single (session, user) pair
// for its lifetime. The hub goroutine owns user and joined after handing the
// client its init frame.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	user   session.User
	joined bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue hands a frame to the client's writer without blocking the hub.
// A client that cannot keep up is cut loose rather than stalling the session.
func (c *Client) enqueue(buf []byte) bool {
	select {
	case c.send <- buf:
		return true
	default:
		return false
	}
}

// readPump decodes inbound frames and feeds them to the hub until the
// connection dies, then triggers the leave path. A frame that fails to
// decode costs the sender an error frame, nothing more.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read failed", "session", c.hub.session.ID, "error", err)
			}
			return
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			c.enqueue(wire.Marshal(wire.Error{Type: wire.TypeError, Reason: err.Error()}))
			continue
		}
		select {
		case c.hub.inbound <- frame{client: c, msg: msg}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump drains the send queue onto the wire. Closing send closes the
// connection with a normal close frame.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		buf, ok := <-c.send
		if !ok {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, buf); err != nil {
			return
		}
	}
}
