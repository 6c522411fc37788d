// Package wire defines the JSON frames exchanged over a session websocket.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Frame type names.
const (
	TypeJoin       = "join"
	TypeInit       = "init"
	TypeOperation  = "operation"
	TypeCursor     = "cursor"
	TypeChat       = "chat"
	TypeLanguage   = "language"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeError      = "error"
)

var ErrUnknownType = errors.New("unknown message type")

// Join is the first frame a client sends after the upgrade.
type Join struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Operation is an inbound edit frame. Revision is the revision of the buffer
// the client authored the edit against.
type Operation struct {
	Type     string `json:"type"`
	OpType   string `json:"op_type"`
	Position int    `json:"position"`
	Content  string `json:"content"`
	Length   int    `json:"length"`
	Revision int    `json:"revision"`
}

// Cursor is an inbound caret move.
type Cursor struct {
	Type     string `json:"type"`
	Position int    `json:"position"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// Chat is an inbound chat line.
type Chat struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Language is an inbound session language switch.
type Language struct {
	Type     string `json:"type"`
	Language string `json:"language"`
}

// Inbound is any frame a client may send.
type Inbound interface{ inbound() }

func (Join) inbound()      {}
func (Operation) inbound() {}
func (Cursor) inbound()    {}
func (Chat) inbound()      {}
func (Language) inbound()  {}

// Ping has no payload; it is represented by this sentinel.
type Ping struct{}

func (Ping) inbound() {}

// Decode sniffs the type field and unmarshals raw into the matching inbound
// frame. Malformed JSON or an unknown type is a validation failure.
func Decode(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("malformed JSON frame")
	}
	t := gjson.GetBytes(raw, "type").String()
	var (
		msg Inbound
		err error
	)
	switch t {
	case TypeJoin:
		var m Join
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeOperation:
		var m Operation
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeCursor:
		var m Cursor
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeChat:
		var m Chat
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypeLanguage:
		var m Language
		err = json.Unmarshal(raw, &m)
		msg = m
	case TypePing:
		return Ping{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UserInfo is the participant summary embedded in presence frames.
type UserInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	CursorPosition int    `json:"cursor_position"`
}

// Init is sent once to a freshly joined client.
type Init struct {
	Type      string     `json:"type"`
	UserID    string     `json:"user_id"`
	UserName  string     `json:"user_name"`
	UserColor string     `json:"user_color"`
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	Revision  int        `json:"revision"`
	Users     []UserInfo `json:"users"`
}

// OperationOut is the canonical, post-transform operation broadcast to the
// session. Content carries the whole buffer only for full_update frames.
type OperationOut struct {
	Type     string `json:"type"`
	OpType   string `json:"op_type"`
	Position int    `json:"position"`
	Content  string `json:"content"`
	Length   int    `json:"length"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Revision int    `json:"revision"`
}

// CursorOut is a broadcast caret move.
type CursorOut struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	UserColor string `json:"user_color"`
	Position  int    `json:"position"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
}

// ChatOut is a broadcast chat line, stamped server-side.
type ChatOut struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	UserName  string  `json:"user_name"`
	UserColor string  `json:"user_color"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// LanguageOut is a broadcast language switch.
type LanguageOut struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// Presence announces a join or leave along with the updated roster.
type Presence struct {
	Type  string     `json:"type"`
	User  UserInfo   `json:"user"`
	Users []UserInfo `json:"users"`
}

// Error is sent only to the client whose frame failed.
type Error struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Pong answers a ping.
type Pong struct {
	Type string `json:"type"`
}

// Marshal encodes an outbound frame. Frames are built by the hub from typed
// structs, so failure here is a programming error.
func Marshal(v any) []byte {
	buf, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return buf
}
