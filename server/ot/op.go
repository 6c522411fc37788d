// Package ot implements the operation model and the transform engine that
// reconciles concurrent edits against a shared text buffer.
//
// Positions and lengths are UTF-16 code unit offsets, because that is what
// editor clients count in. Apply splices in UTF-16 space and converts back.
package ot

import (
	"fmt"
	"unicode/utf16"
)

// Wire names for the three operation kinds.
const (
	KindInsert  = "insert"
	KindDelete  = "delete"
	KindReplace = "full_update"
)

// Op is a single edit against a text buffer.
type Op interface {
	// Kind returns the wire name of the operation.
	Kind() string
	// Apply returns the buffer with the operation applied, or an error if
	// the operation's range falls outside the buffer.
	Apply(s string) (string, error)
}

// Insert inserts Text at code unit offset Pos.
type Insert struct {
	Pos  int
	Text string
}

func (op Insert) Kind() string { return KindInsert }

func (op Insert) Apply(s string) (string, error) {
	units := encodeUnits(s)
	if op.Pos < 0 || op.Pos > len(units) {
		return "", fmt.Errorf("insert at %d out of bounds (len %d)", op.Pos, len(units))
	}
	ins := encodeUnits(op.Text)
	out := make([]uint16, 0, len(units)+len(ins))
	out = append(out, units[:op.Pos]...)
	out = append(out, ins...)
	out = append(out, units[op.Pos:]...)
	return decodeUnits(out), nil
}

// Delete removes Len code units starting at Pos.
type Delete struct {
	Pos int
	Len int
}

func (op Delete) Kind() string { return KindDelete }

func (op Delete) Apply(s string) (string, error) {
	units := encodeUnits(s)
	if op.Pos < 0 || op.Len < 0 || op.Pos+op.Len > len(units) {
		return "", fmt.Errorf("delete [%d,%d) out of bounds (len %d)", op.Pos, op.Pos+op.Len, len(units))
	}
	out := make([]uint16, 0, len(units)-op.Len)
	out = append(out, units[:op.Pos]...)
	out = append(out, units[op.Pos+op.Len:]...)
	return decodeUnits(out), nil
}

// Replace swaps the entire buffer for Text. It never fails and ignores the
// base revision; it exists as the coarse-grained path for clients that do
// not speak granular operations.
type Replace struct {
	Text string
}

func (op Replace) Kind() string { return KindReplace }

func (op Replace) Apply(string) (string, error) { return op.Text, nil }

// IsNoop reports whether applying op cannot change any buffer.
func IsNoop(op Op) bool {
	switch o := op.(type) {
	case Insert:
		return o.Text == ""
	case Delete:
		return o.Len == 0
	}
	return false
}

// Len16 returns the length of s in UTF-16 code units.
func Len16(s string) int {
	n := 0
	for _, r := range s {
		n++
		if r >= 0x10000 {
			n++
		}
	}
	return n
}

func encodeUnits(s string) []uint16 { return utf16.Encode([]rune(s)) }

func decodeUnits(u []uint16) string { return string(utf16.Decode(u)) }
