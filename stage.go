package keymapper

import "sort"

// outputDownEntry tracks one synthesized key currently pressed on behalf of
// the user, tagged with the physical key that triggered it so its release
// can be targeted independently of whatever else is happening in the
// buffer.
type outputDownEntry struct {
	key                 Key
	trigger             Key
	suppressed          bool
	temporarilyReleased bool
	pressedTwice        bool
}

// Stage is the real-time mapping engine: it buffers recent input, finds
// the first matching rule among the active contexts, emits output, and
// tracks held outputs so they can be cleanly released no matter how input
// arrives.
type Stage struct {
	contexts       []Context
	activeContexts []int

	sequence           KeySequence
	sequenceMightMatch bool

	outputDown   []outputDownEntry
	outputBuffer KeySequence

	overrideSets      []OverrideSet
	activeOverrideSet *OverrideSet

	exitSequence KeySequence
	exitPos      int
}

// NewStage builds a Stage over the given contexts, assigning every Input a
// stable global index (flattened across all contexts in declaration
// order) so override sets can reference it, and sorting each override set
// by that index so Stage.getOutput can binary-search it.
func NewStage(contexts []Context, overrideSets []OverrideSet, exitSequence KeySequence) *Stage {
	next := 0
	for ci := range contexts {
		for ii := range contexts[ci].Inputs {
			contexts[ci].Inputs[ii].globalIndex = next
			next++
		}
	}

	sorted := make([]OverrideSet, len(overrideSets))
	for i, set := range overrideSets {
		cp := make(OverrideSet, len(set))
		copy(cp, set)
		sort.Slice(cp, func(a, b int) bool { return cp[a].MappingIndex < cp[b].MappingIndex })
		sorted[i] = cp
	}

	return &Stage{
		contexts:     contexts,
		overrideSets: sorted,
		exitSequence: exitSequence,
	}
}

// Contexts returns the compiled context list the Stage was built with.
func (s *Stage) Contexts() []Context { return s.contexts }

// Sequence returns the live input buffer, mostly for diagnostics and
// tests; callers must not mutate it.
func (s *Stage) Sequence() KeySequence { return s.sequence }

// IsOutputDown reports whether any synthesized key is currently held,
// which is the safety predicate a host must check before calling
// SetActiveContexts.
func (s *Stage) IsOutputDown() bool { return len(s.outputDown) > 0 }

// SetActiveContexts replaces the set of contexts consulted for matching,
// in priority order. The host must not call this while IsOutputDown is
// true.
func (s *Stage) SetActiveContexts(indices []int) {
	s.activeContexts = append(s.activeContexts[:0], indices...)
}

// SetActiveOverrideSet activates the override set at index, or clears the
// active override set for any out-of-range index.
func (s *Stage) SetActiveOverrideSet(index int) {
	if index < 0 || index >= len(s.overrideSets) {
		s.activeOverrideSet = nil
		return
	}
	s.activeOverrideSet = &s.overrideSets[index]
}

// ShouldExit reports whether the configured exit chord has just completed.
func (s *Stage) ShouldExit() bool {
	return len(s.exitSequence) > 0 && s.exitPos == len(s.exitSequence)
}

// ReuseBuffer donates a previously returned output buffer back to the
// Stage so steady-state operation can avoid allocating.
func (s *Stage) ReuseBuffer(buf KeySequence) {
	s.outputBuffer = buf[:0]
}

// Update is the Stage's entire public contract: feed one physical event,
// get back the exact sequence of events the host should synthesize.
func (s *Stage) Update(event KeyEvent) KeySequence {
	s.advanceExitSequence(event)
	s.applyInput(event)
	out := s.outputBuffer
	s.outputBuffer = nil
	return out
}

func (s *Stage) advanceExitSequence(event KeyEvent) {
	if len(s.exitSequence) == 0 || event.State != Down {
		return
	}
	want := s.exitSequence[s.exitPos]
	switch {
	case event.Key == want.Key:
		s.exitPos++
	case event.Key == s.exitSequence[0].Key:
		s.exitPos = 1
	default:
		s.exitPos = 0
	}
}

// ValidateState reconciles the buffer with reality after an external event
// the core had no visibility into (screen lock, session switch) stole some
// releases.
func (s *Stage) ValidateState(isDown func(Key) bool) {
	s.sequenceMightMatch = false

	kept := s.sequence[:0]
	for _, e := range s.sequence {
		if IsVirtualKey(e.Key) || isDown(e.Key) {
			kept = append(kept, e)
		}
	}
	s.sequence = kept

	downKept := s.outputDown[:0]
	for _, d := range s.outputDown {
		if isDown(d.trigger) {
			downKept = append(downKept, d)
		}
	}
	s.outputDown = downKept
}

// applyInput drains as many complete or forwarded matches as the current
// buffer allows, stopping as soon as the remainder is ambiguous.
func (s *Stage) applyInput(event KeyEvent) {
	if event.State == Down {
		if it := findKey(s.sequence, event.Key); it >= 0 {
			if findKeyState(s.sequence, event.Key, Up) < 0 {
				s.sequence = removeAt(s.sequence, it)
			}
		}
	}
	s.sequence = append(s.sequence, event)

	if event.State == Up {
		s.releaseTriggered(event.Key)

		if !s.sequenceMightMatch {
			if it := findKeyState(s.sequence, event.Key, DownMatched); it >= 0 {
				s.sequence = removeAt(s.sequence, it)
			}
		}
	}

	for i := range s.outputDown {
		s.outputDown[i].suppressed = false
	}

	s.sequenceMightMatch = false
	for hasNonOptional(s.sequence) {
		result, ctx, input := s.matchInput(true)

		if result == MightMatch {
			s.sequenceMightMatch = true
			break
		}

		if result == Match {
			s.applyOutput(s.getOutput(ctx, input))

			if event.State == Up {
				s.releaseTriggered(event.Key)
			}

			s.finishSequence()
			// A press the winning rule does not name (a key that arrived
			// after the rule's own keys) is forwarded after its output.
			if event.State == Down && findKey(input.Sequence, event.Key) < 0 {
				s.updateOutput(event, event.Key)
			}
			break
		}

		s.forwardFromSequence()
	}
}

// matchInput finds the first rule among the active contexts, in declared
// priority order, whose input template matches the current sequence.
//
// Rules are scanned strictly in order and the scan stops at the first one
// that yields anything but no_match: a might_match from an earlier rule
// holds the buffer and is returned immediately, even if a later rule in
// the same scan would have fully matched — a longer, earlier-declared
// chord must get the chance to complete before a shorter one steals it.
func (s *Stage) matchInput(acceptMightMatch bool) (MatchResult, *Context, *Input) {
	for _, ci := range s.activeContexts {
		if ci < 0 || ci >= len(s.contexts) {
			continue
		}
		ctx := &s.contexts[ci]
		for ii := range ctx.Inputs {
			input := &ctx.Inputs[ii]
			result := MatchKeySequence(input.Sequence, s.sequence)
			if acceptMightMatch && result == MightMatch {
				return MightMatch, ctx, input
			}
			if result == Match {
				return Match, ctx, input
			}
		}
	}
	return NoMatch, nil, nil
}

// releaseTriggered emits Up for every synthesized key whose trigger is the
// given physical key, in reverse insertion order, and drops those entries.
func (s *Stage) releaseTriggered(key Key) {
	var keep []outputDownEntry
	var toRelease []outputDownEntry
	for _, d := range s.outputDown {
		if d.trigger == key {
			toRelease = append(toRelease, d)
		} else {
			keep = append(keep, d)
		}
	}
	for i := len(toRelease) - 1; i >= 0; i-- {
		d := toRelease[i]
		if !d.temporarilyReleased {
			s.outputBuffer = append(s.outputBuffer, NewKeyEvent(d.key, Up))
		}
	}
	s.outputDown = keep
}

// getOutput resolves a matched rule's effective output, applying the
// active override set (if any) ahead of the rule's own default output or
// command binding.
func (s *Stage) getOutput(ctx *Context, input *Input) KeySequence {
	if s.activeOverrideSet != nil {
		set := *s.activeOverrideSet
		i := sort.Search(len(set), func(i int) bool { return set[i].MappingIndex >= input.globalIndex })
		if i < len(set) && set[i].MappingIndex == input.globalIndex {
			return set[i].Output
		}
	}
	if input.OutputIndex >= 0 {
		if input.OutputIndex < len(ctx.Outputs) {
			return ctx.Outputs[input.OutputIndex]
		}
		return nil
	}
	commandIndex := CommandIndexFromOutputIndex(input.OutputIndex)
	for _, co := range ctx.CommandOutputs {
		if co.CommandIndex == commandIndex {
			return co.Output
		}
	}
	return nil
}

// toggleVirtualKey flips a virtual key's latch: if it's present in the
// sequence (held "on"), remove it; otherwise insert a Down for it. The
// latch lives inside the sequence itself rather than as separate state.
func (s *Stage) toggleVirtualKey(key Key) {
	if it := findKey(s.sequence, key); it >= 0 {
		s.sequence = removeAt(s.sequence, it)
	} else {
		s.sequence = append(s.sequence, NewKeyEvent(key, Down))
	}
}

// outputCurrentSequence implements the Any wildcard in output templates:
// fan out one synthetic event per live (non-DownMatched) sequence key not
// excluded with "!" in the expression, all sharing the same trigger — the
// last key in the buffer, not the per-event key.
func (s *Stage) outputCurrentSequence(expression KeySequence, state KeyState, trigger Key) {
	for _, e := range s.sequence {
		if e.State == DownMatched {
			continue
		}
		if it := findKey(expression, e.Key); it >= 0 && expression[it].State == Not {
			continue
		}
		s.updateOutput(NewKeyEvent(e.Key, state), trigger)
	}
}

// applyOutput walks a matched rule's output template and emits the
// corresponding synthesized events.
func (s *Stage) applyOutput(expression KeySequence) {
	if len(s.sequence) == 0 {
		return
	}
	trigger := s.sequence[len(s.sequence)-1].Key
	for _, e := range expression {
		switch {
		case IsVirtualKey(e.Key):
			if e.State == Down {
				s.toggleVirtualKey(e.Key)
			}
		case e.Key == AnyKey:
			s.outputCurrentSequence(expression, e.State, trigger)
		default:
			s.updateOutput(e, trigger)
		}
	}
}

// forwardFromSequence lets an unmatched key pass through unchanged: the
// first unresolved Down becomes DownMatched (or, if its Up is already
// present, both are emitted and dropped), and any stray leading Up is
// simply released and dropped.
func (s *Stage) forwardFromSequence() {
	for i := 0; i < len(s.sequence); i++ {
		e := s.sequence[i]
		switch e.State {
		case Down, DownMatched:
			if up := findKeyState(s.sequence[i:], e.Key, Up); up >= 0 {
				upIdx := i + up
				s.updateOutput(e, e.Key)
				s.releaseTriggered(e.Key)
				// Remove the later index first so the earlier one
				// stays valid.
				s.sequence = removeAt(s.sequence, upIdx)
				s.sequence = removeAt(s.sequence, i)
				return
			}
			if e.State == Down {
				s.updateOutput(e, e.Key)
				s.sequence[i].State = DownMatched
				return
			}
		case Up:
			s.releaseTriggered(e.Key)
			s.sequence = removeAt(s.sequence, i)
			return
		}
	}
}

// updateOutput is the lowest-level emitter, handling each output-event
// state's synthesis and held-key bookkeeping.
func (s *Stage) updateOutput(event KeyEvent, trigger Key) {
	idx := -1
	for i, d := range s.outputDown {
		if d.key == event.Key {
			idx = i
			break
		}
	}

	switch event.State {
	case Up:
		if idx < 0 {
			return
		}
		if s.outputDown[idx].pressedTwice {
			if it := findKey(s.outputBuffer, event.Key); it >= 0 {
				s.outputBuffer = removeAt(s.outputBuffer, it)
			}
			s.outputDown[idx].pressedTwice = false
			return
		}
		s.outputDown = append(s.outputDown[:idx], s.outputDown[idx+1:]...)
		s.outputBuffer = append(s.outputBuffer, NewKeyEvent(event.Key, Up))

	case Not:
		if idx < 0 {
			return
		}
		if !s.outputDown[idx].temporarilyReleased {
			s.outputBuffer = append(s.outputBuffer, NewKeyEvent(event.Key, Up))
			s.outputDown[idx].temporarilyReleased = true
		}
		s.outputDown[idx].suppressed = true

	case Down:
		reapplied := false
		for i := range s.outputDown {
			d := &s.outputDown[i]
			if d.temporarilyReleased && !d.suppressed {
				d.temporarilyReleased = false
				s.outputBuffer = append(s.outputBuffer, NewKeyEvent(d.key, Down))
				reapplied = true
			}
		}

		if idx < 0 {
			s.outputDown = append(s.outputDown, outputDownEntry{key: event.Key, trigger: trigger})
		} else {
			if reapplied {
				s.outputBuffer = append(s.outputBuffer, NewKeyEvent(event.Key, Up))
			}
			s.outputDown[idx].temporarilyReleased = false
			s.outputDown[idx].pressedTwice = true
		}
		s.outputBuffer = append(s.outputBuffer, NewKeyEvent(event.Key, Down))

	case OutputOnRelease:
		s.outputBuffer = append(s.outputBuffer, NewKeyEvent(event.Key, OutputOnRelease))

	case DownMatched, UpAsync, DownAsync:
		// Unreachable: the parser never emits these states into an output
		// template.
	}
}

// finishSequence converts every remaining Down without a following Up to
// DownMatched (still physically held, already consumed) and drops
// everything else.
func (s *Stage) finishSequence() {
	kept := s.sequence[:0]
	for _, e := range s.sequence {
		if e.State == Down || e.State == DownMatched {
			if findKeyState(s.sequence, e.Key, Up) < 0 {
				e.State = DownMatched
				kept = append(kept, e)
			}
			continue
		}
	}
	s.sequence = kept
}
