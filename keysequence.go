package keymapper

// KeySequence is an ordered, growable sequence of KeyEvent. Depending on
// where it appears it is an input template, an output template, or the
// Stage's live input buffer — the type itself carries no tag for which;
// callers (MatchKeySequence, Stage) know from their own calling
// convention which role a given KeySequence plays.
type KeySequence []KeyEvent

// ConstKeySequenceRange is a non-owning view over a slice of a KeySequence,
// mirroring the original's ConstKeySequenceRange: a cheap [begin, end)
// window over a sub-range, without copying. MatchKeySequence and Stage
// index KeySequence slices directly and do not use it.
type ConstKeySequenceRange struct {
	seq        KeySequence
	begin, end int
}

// NewConstKeySequenceRange returns the view over the whole sequence.
func NewConstKeySequenceRange(seq KeySequence) ConstKeySequenceRange {
	return ConstKeySequenceRange{seq: seq, begin: 0, end: len(seq)}
}

// Len reports the number of events in the view.
func (r ConstKeySequenceRange) Len() int { return r.end - r.begin }

// At returns the i'th event of the view (0-indexed relative to begin).
func (r ConstKeySequenceRange) At(i int) KeyEvent { return r.seq[r.begin+i] }

// Slice returns the sub-view [from, to).
func (r ConstKeySequenceRange) Slice(from, to int) ConstKeySequenceRange {
	return ConstKeySequenceRange{seq: r.seq, begin: r.begin + from, end: r.begin + to}
}

// hasNonOptional reports whether the sequence contains at least one event
// whose state requires resolution before the Stage can stop looping — a
// plain Down or Up.
func hasNonOptional(seq KeySequence) bool {
	for _, e := range seq {
		if e.State == Down || e.State == Up {
			return true
		}
	}
	return false
}

// findKey returns the index of the first event in seq matching key, or -1.
func findKey(seq KeySequence, key Key) int {
	for i, e := range seq {
		if e.Key == key {
			return i
		}
	}
	return -1
}

// findKeyState returns the index of the first event in seq with the given
// key and state, or -1.
func findKeyState(seq KeySequence, key Key, state KeyState) int {
	for i, e := range seq {
		if e.Key == key && e.State == state {
			return i
		}
	}
	return -1
}

// removeAt removes the event at index i, preserving order.
func removeAt(seq KeySequence, i int) KeySequence {
	return append(seq[:i], seq[i+1:]...)
}
