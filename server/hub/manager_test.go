package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/bannushaxddd/SYNCOUT/server/hub"
	"github.com/bannushaxddd/SYNCOUT/server/ot"
	"github.com/bannushaxddd/SYNCOUT/server/session"
	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

func startServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	registry := session.NewRegistry(0)
	manager := hub.NewManager(ctx, registry, nil)
	r := mux.NewRouter()
	r.HandleFunc("/ws/{session_id}", manager.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + code
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, wantType string) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, wantType, gjson.GetBytes(raw, "type").String(), "frame: %s", raw)
	return raw
}

func joinWS(t *testing.T, conn *websocket.Conn, name string) wire.Init {
	t.Helper()
	require.NoError(t, conn.WriteJSON(wire.Join{Type: wire.TypeJoin, Name: name}))
	var init wire.Init
	require.NoError(t, json.Unmarshal(readFrame(t, conn, wire.TypeInit), &init))
	return init
}

func TestUnknownSessionRefusedBeforeUpgrade(t *testing.T) {
	srv, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/NOPE1234"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndToEndEditPropagation(t *testing.T) {
	srv, registry := startServer(t)
	code := registry.Create().ID

	alice := dial(t, srv, code)
	initA := joinWS(t, alice, "Alice")
	assert.Equal(t, session.DefaultBuffer, initA.Code)

	bob := dial(t, srv, code)
	joinWS(t, bob, "Bob")
	readFrame(t, alice, wire.TypeUserJoined)

	require.NoError(t, alice.WriteJSON(wire.Operation{
		Type:     wire.TypeOperation,
		OpType:   ot.KindInsert,
		Position: 0,
		Content:  "// edited\n",
		Revision: initA.Revision,
	}))

	raw := readFrame(t, bob, wire.TypeOperation)
	assert.Equal(t, ot.KindInsert, gjson.GetBytes(raw, "op_type").String())
	assert.Equal(t, "// edited\n", gjson.GetBytes(raw, "content").String())
	assert.Equal(t, int64(initA.Revision+1), gjson.GetBytes(raw, "revision").Int())

	// The authoritative buffer moved too.
	s, err := registry.Get(code)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Snapshot().Buffer, "// edited\n"))
}

func TestEndToEndDisconnectBroadcastsLeave(t *testing.T) {
	srv, registry := startServer(t)
	code := registry.Create().ID

	alice := dial(t, srv, code)
	joinWS(t, alice, "Alice")
	bob := dial(t, srv, code)
	initB := joinWS(t, bob, "Bob")
	readFrame(t, alice, wire.TypeUserJoined)

	require.NoError(t, bob.Close())

	raw := readFrame(t, alice, wire.TypeUserLeft)
	assert.Equal(t, initB.UserID, gjson.GetBytes(raw, "user.id").String())

	s, err := registry.Get(code)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.UserCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEndToEndErrorFrameOnlyToSender(t *testing.T) {
	srv, registry := startServer(t)
	code := registry.Create().ID

	alice := dial(t, srv, code)
	initA := joinWS(t, alice, "Alice")

	require.NoError(t, alice.WriteJSON(wire.Operation{
		Type:     wire.TypeOperation,
		OpType:   ot.KindDelete,
		Position: 0,
		Length:   1 << 20,
		Revision: initA.Revision,
	}))
	raw := readFrame(t, alice, wire.TypeError)
	assert.Contains(t, gjson.GetBytes(raw, "reason").String(), "out of bounds")
}
