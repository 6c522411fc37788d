package ot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannushaxddd/SYNCOUT/server/ot"
)

func TestInsertApply(t *testing.T) {
	s, err := ot.Insert{Pos: 0, Text: "foo"}.Apply("")
	require.NoError(t, err)
	assert.Equal(t, "foo", s)

	s, err = ot.Insert{Pos: 2, Text: "ar b"}.Apply("baz")
	require.NoError(t, err)
	assert.Equal(t, "baar bz", s)

	_, err = ot.Insert{Pos: 4, Text: "x"}.Apply("abc")
	assert.Error(t, err)

	_, err = ot.Insert{Pos: -1, Text: "x"}.Apply("abc")
	assert.Error(t, err)
}

func TestDeleteApply(t *testing.T) {
	s, err := ot.Delete{Pos: 1, Len: 2}.Apply("abcd")
	require.NoError(t, err)
	assert.Equal(t, "ad", s)

	s, err = ot.Delete{Pos: 0, Len: 0}.Apply("abcd")
	require.NoError(t, err)
	assert.Equal(t, "abcd", s)

	_, err = ot.Delete{Pos: 2, Len: 3}.Apply("abcd")
	assert.Error(t, err)
}

func TestReplaceApply(t *testing.T) {
	s, err := ot.Replace{Text: "new"}.Apply("old and long")
	require.NoError(t, err)
	assert.Equal(t, "new", s)
}

// Offsets are UTF-16 code units: an astral rune counts as two.
func TestApplyUTF16(t *testing.T) {
	s, err := ot.Insert{Pos: 2, Text: "!"}.Apply("🙂")
	require.NoError(t, err)
	assert.Equal(t, "🙂!", s)

	_, err = ot.Insert{Pos: 3, Text: "!"}.Apply("🙂")
	assert.Error(t, err)

	s, err = ot.Delete{Pos: 1, Len: 2}.Apply("a🙂b")
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	assert.Equal(t, 2, ot.Len16("🙂"))
	assert.Equal(t, 4, ot.Len16("a🙂b"))
}

func TestIsNoop(t *testing.T) {
	assert.True(t, ot.IsNoop(ot.Insert{Pos: 3}))
	assert.True(t, ot.IsNoop(ot.Delete{Pos: 3}))
	assert.False(t, ot.IsNoop(ot.Insert{Pos: 0, Text: "x"}))
	assert.False(t, ot.IsNoop(ot.Delete{Pos: 0, Len: 1}))
	assert.False(t, ot.IsNoop(ot.Replace{}))
}
