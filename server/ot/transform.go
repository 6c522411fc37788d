package ot

// Accepted is an operation that already made it into a session's history,
// stamped with the revision it produced and the user that issued it.
type Accepted struct {
	Op       Op
	UserID   string
	Revision int
}

// TransformAgainst rewrites a pending operation issued by userID so that it
// applies after every operation in accepted (ordered by revision). The result
// preserves the pending op's intent; a fully consumed range degrades to a
// no-op rather than an error. Pure and deterministic: every replica that
// sees the same history computes the same result.
func TransformAgainst(op Op, userID string, accepted []Accepted) Op {
	for _, b := range accepted {
		op = transform(op, userID, b)
	}
	return op
}

// transform adjusts pending a (from userA) against a single accepted b.
func transform(a Op, userA string, b Accepted) Op {
	// A full replace wiped the text the pending op was addressing.
	if _, ok := b.Op.(Replace); ok {
		return degrade(a)
	}
	switch ai := a.(type) {
	case Insert:
		switch bi := b.Op.(type) {
		case Insert:
			if bi.Pos < ai.Pos {
				ai.Pos += Len16(bi.Text)
			} else if bi.Pos == ai.Pos && userA >= b.UserID {
				// Equal positions: the smaller user id lands first.
				ai.Pos += Len16(bi.Text)
			}
			return ai
		case Delete:
			switch {
			case bi.Pos+bi.Len <= ai.Pos:
				ai.Pos -= bi.Len
			case bi.Pos < ai.Pos:
				// Insertion point was deleted out from under us. Collapse
				// rather than resurrect text inside a range a concurrent
				// delete (which grows over inner inserts) already covers;
				// both orders then agree.
				ai = Insert{Pos: bi.Pos, Text: ""}
			}
			return ai
		}
	case Delete:
		switch bi := b.Op.(type) {
		case Insert:
			switch {
			case bi.Pos <= ai.Pos:
				ai.Pos += Len16(bi.Text)
			case bi.Pos < ai.Pos+ai.Len:
				// Insert landed inside the range; grow to keep it contiguous.
				ai.Len += Len16(bi.Text)
			}
			return ai
		case Delete:
			aEnd, bEnd := ai.Pos+ai.Len, bi.Pos+bi.Len
			switch {
			case bEnd <= ai.Pos:
				ai.Pos -= bi.Len
			case aEnd <= bi.Pos:
				// Disjoint, b after a.
			default:
				overlap := minInt(aEnd, bEnd) - maxInt(ai.Pos, bi.Pos)
				ai.Pos = minInt(ai.Pos, bi.Pos)
				ai.Len -= overlap
			}
			return ai
		}
	case Replace:
		// Replace does not transform; it bypasses history entirely.
		return ai
	}
	return a
}

// degrade collapses an operation to a same-kind no-op.
func degrade(a Op) Op {
	switch ai := a.(type) {
	case Insert:
		return Insert{Pos: 0, Text: ""}
	case Delete:
		return Delete{Pos: 0, Len: 0}
	default:
		return ai
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
