package domain

import "sort"

// SeqEntry is one (task id, order) pair of a column's ordered sequence.
type SeqEntry struct {
	ID    string
	Order int
}

// sortSeq returns a copy of seq sorted by order.
func sortSeq(seq []SeqEntry) []SeqEntry {
	out := append([]SeqEntry(nil), seq...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// AppendOrder returns the order value for a task appended to the column:
// max(order)+1, or 0 when the column is empty.
func AppendOrder(seq []SeqEntry) int {
	max := -1
	for _, e := range seq {
		if e.Order > max {
			max = e.Order
		}
	}
	return max + 1
}

// RemoveAndCompact closes the gap left at removedOrder: every entry with a
// greater order is decremented by one. Entries below removedOrder are
// unchanged. The removed task itself must not be part of seq.
func RemoveAndCompact(seq []SeqEntry, removedOrder int) []SeqEntry {
	out := sortSeq(seq)
	for i := range out {
		if out[i].Order > removedOrder {
			out[i].Order--
		}
	}
	return out
}

// InsertAndShift opens a slot at target: every entry with order >= target
// is incremented by one. Target is clamped to [0, len(seq)]. It returns the
// clamped target together with the shifted sequence.
func InsertAndShift(seq []SeqEntry, target int) (int, []SeqEntry) {
	if target < 0 {
		target = 0
	}
	if target > len(seq) {
		target = len(seq)
	}
	out := sortSeq(seq)
	for i := range out {
		if out[i].Order >= target {
			out[i].Order++
		}
	}
	return target, out
}

// MoveWithin repositions the entry with the given id inside its own
// column. Target indexes the final arrangement of the same n tasks and is
// clamped to [0, n-1]. Only entries strictly between the old and new
// position shift, one step toward the vacated slot.
func MoveWithin(seq []SeqEntry, id string, target int) (int, []SeqEntry, bool) {
	out := sortSeq(seq)
	old := -1
	for i, e := range out {
		if e.ID == id {
			old = i
			break
		}
	}
	if old == -1 {
		return 0, nil, false
	}
	if target < 0 {
		target = 0
	}
	if target > len(out)-1 {
		target = len(out) - 1
	}
	switch {
	case target > old:
		for i := range out {
			if out[i].Order > old && out[i].Order <= target {
				out[i].Order--
			}
		}
	case target < old:
		for i := range out {
			if out[i].Order >= target && out[i].Order < old {
				out[i].Order++
			}
		}
	}
	out[old].Order = target
	return target, out, true
}
