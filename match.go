package keymapper

// MatchResult is the three-valued outcome of matching a rule's input
// template against the Stage's current input buffer.
type MatchResult int

const (
	NoMatch MatchResult = iota
	MightMatch
	Match
)

func (r MatchResult) String() string {
	switch r {
	case NoMatch:
		return "no_match"
	case MightMatch:
		return "might_match"
	case Match:
		return "match"
	default:
		return "invalid"
	}
}

// MatchKeySequence compares an input template against an observed input
// buffer and reports whether the buffer is a no_match, a might_match
// (a consistent but incomplete prefix), or a full match.
//
// The two cursors ti (template) and bi (buffer) advance independently:
// Down and grouped DownAsync entries consume buffer positions
// synchronously; Not entries never do. An UpAsync entry consumes the
// matching Up if one sits at or after the cursor, and is satisfied either
// way. A stray Up in the buffer — the release of a key some earlier Down
// already satisfied — is transparent padding and is skipped before each
// Down and DownAsync requirement is evaluated; so is a virtual key (a
// latch toggled on by an earlier rule's output) that the current Down
// requirement does not name.
//
// The one genuinely ambiguous case is a required Down/DownAsync/Up entry
// for which the buffer has simply run out — that is exactly "we don't yet
// know if this rule is still coming together or has been contradicted",
// and is reported as MightMatch. UpAsync and Not never contribute to that
// ambiguity: they're satisfied whether or not the buffer has anything left
// to say about them, so a template that ends in one reports Match as soon
// as every entry before it is satisfied, letting Stage fire immediately
// instead of waiting on a release that might never come.
func MatchKeySequence(template, buffer KeySequence) MatchResult {
	ti, bi := 0, 0

	skipReleases := func() {
		for bi < len(buffer) && buffer[bi].State == Up {
			bi++
		}
	}

	for ti < len(template) {
		te := template[ti]

		switch te.State {
		case Not:
			if keyIsLive(buffer, te.Key) {
				return NoMatch
			}
			ti++
			continue

		case UpAsync:
			// Permissive: the release may already have happened, may
			// happen later, or may never happen while this rule still
			// holds the key down — none of that keeps the match waiting.
			// Consume a matching Up if one is sitting here so a later
			// template position doesn't trip over it as a stray, but
			// buffer exhaustion is never a reason to hold.
			if idx := findKeyState(buffer[bi:], te.Key, Up); idx >= 0 {
				bi += idx + 1
			}
			ti++
			continue

		case Up:
			// No skipReleases here: the Up we want might be the very
			// next event, and findKeyState already tolerates whatever
			// intervening events sit before it.
			idx := findKeyState(buffer[bi:], te.Key, Up)
			if idx < 0 {
				return MightMatch
			}
			bi += idx + 1
			ti++
			continue

		case DownAsync:
			group, next := collectAsyncGroup(template, ti)
			skipReleases()
			consumed, ok, complete := matchAsyncGroup(buffer, bi, group)
			if !ok {
				return NoMatch
			}
			if !complete {
				return MightMatch
			}
			bi += consumed
			ti = next
			continue

		case Down:
			skipReleases()
			for bi < len(buffer) && IsVirtualKey(buffer[bi].Key) && buffer[bi].Key != te.Key {
				bi++
				skipReleases()
			}
			if bi >= len(buffer) {
				return MightMatch
			}
			be := buffer[bi]
			if be.Key != te.Key || (be.State != Down && be.State != DownMatched) {
				return NoMatch
			}
			bi++
			ti++
			continue

		default:
			// DownMatched/OutputOnRelease never appear in an input
			// template; ignore defensively rather than panic on a
			// malformed caller-supplied template.
			ti++
			continue
		}
	}
	return Match
}

// keyIsLive reports whether key currently has an unreleased Down (or
// DownMatched) anywhere in buffer, i.e. whether a "!key" guard should
// block a match right now.
func keyIsLive(buffer KeySequence, key Key) bool {
	live := false
	for _, e := range buffer {
		switch {
		case e.Key != key:
			continue
		case e.State == Down || e.State == DownMatched:
			live = true
		case e.State == Up:
			live = false
		}
	}
	return live
}

// collectAsyncGroup gathers the maximal run of consecutive DownAsync
// template entries starting at ti, plus the run of plain Down entries for
// the same keys (in the same order) that ParseKeySequence always emits
// immediately afterward to lock the group's declared order ("(A B)" lowers
// to DownAsync,DownAsync,Down,Down). It returns the group's keys (in
// declared order) and the template index just past both runs.
func collectAsyncGroup(template KeySequence, ti int) ([]Key, int) {
	start := ti
	for ti < len(template) && template[ti].State == DownAsync {
		ti++
	}
	group := make([]Key, 0, ti-start)
	for i := start; i < ti; i++ {
		group = append(group, template[i].Key)
	}
	lockedEnd := ti
	for i := 0; i < len(group) && lockedEnd < len(template); i++ {
		e := template[lockedEnd]
		if e.State != Down || e.Key != group[i] {
			break
		}
		lockedEnd++
	}
	if lockedEnd-ti == len(group) {
		ti = lockedEnd
	}
	return group, ti
}

// matchAsyncGroup tries to consume len(group) Down/DownMatched buffer
// events, starting at bi and skipping over intervening releases, whose
// keys are exactly the group's keys (each used once, any order).
//
// ok is false on a contradiction (a consumed slot's key isn't in the
// group, or a group key appears twice). complete is false when the buffer
// ran out before every group member was found, with everything seen so far
// consistent — the might_match case.
func matchAsyncGroup(buffer KeySequence, bi int, group []Key) (consumed int, ok bool, complete bool) {
	remaining := make(map[Key]bool, len(group))
	for _, k := range group {
		remaining[k] = true
	}
	i := bi
	for len(remaining) > 0 {
		for i < len(buffer) && buffer[i].State == Up {
			i++
		}
		if i >= len(buffer) {
			return i - bi, true, false
		}
		e := buffer[i]
		if e.State != Down && e.State != DownMatched {
			return 0, false, false
		}
		if !remaining[e.Key] {
			return 0, false, false
		}
		delete(remaining, e.Key)
		i++
	}
	return i - bi, true, true
}
