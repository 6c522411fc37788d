package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannushaxddd/SYNCOUT/server/wire"
)

func TestDecodeOperation(t *testing.T) {
	raw := []byte(`{"type":"operation","op_type":"insert","position":4,"content":"hi","revision":7}`)
	msg, err := wire.Decode(raw)
	require.NoError(t, err)
	op, ok := msg.(wire.Operation)
	require.True(t, ok)
	assert.Equal(t, "insert", op.OpType)
	assert.Equal(t, 4, op.Position)
	assert.Equal(t, "hi", op.Content)
	assert.Equal(t, 7, op.Revision)
}

func TestDecodeDispatch(t *testing.T) {
	tests := []struct {
		raw  string
		want wire.Inbound
	}{
		{`{"type":"join","name":"Alice"}`, wire.Join{Type: wire.TypeJoin, Name: "Alice"}},
		{`{"type":"cursor","position":9,"line":1,"column":2}`, wire.Cursor{Type: wire.TypeCursor, Position: 9, Line: 1, Column: 2}},
		{`{"type":"chat","message":"yo"}`, wire.Chat{Type: wire.TypeChat, Message: "yo"}},
		{`{"type":"language","language":"go"}`, wire.Language{Type: wire.TypeLanguage, Language: "go"}},
		{`{"type":"ping"}`, wire.Ping{}},
	}
	for _, tt := range tests {
		msg, err := wire.Decode([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, msg, tt.raw)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := wire.Decode([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = wire.Decode([]byte(`{"type":"teleport"}`))
	assert.ErrorIs(t, err, wire.ErrUnknownType)

	_, err = wire.Decode([]byte(`{}`))
	assert.ErrorIs(t, err, wire.ErrUnknownType)
}

func TestMarshalRoundTrip(t *testing.T) {
	buf := wire.Marshal(wire.Error{Type: wire.TypeError, Reason: "nope"})
	assert.JSONEq(t, `{"type":"error","reason":"nope"}`, string(buf))
}
