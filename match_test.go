package keymapper

import "testing"

func seq(events ...KeyEvent) KeySequence { return KeySequence(events) }

func down(k Key) KeyEvent  { return NewKeyEvent(k, Down) }
func up(k Key) KeyEvent    { return NewKeyEvent(k, Up) }
func match(k Key) KeyEvent { return NewKeyEvent(k, DownMatched) }

func TestMatchKeySequenceSimple(t *testing.T) {
	tests := []struct {
		name     string
		template KeySequence
		buffer   KeySequence
		want     MatchResult
	}{
		{
			name:     "single key fully down",
			template: seq(down(KeyA), up(KeyA)),
			buffer:   seq(down(KeyA)),
			want:     MightMatch,
		},
		{
			name:     "single key complete",
			template: seq(down(KeyA), up(KeyA)),
			buffer:   seq(down(KeyA), up(KeyA)),
			want:     Match,
		},
		{
			name:     "wrong key",
			template: seq(down(KeyA), up(KeyA)),
			buffer:   seq(down(KeyB)),
			want:     NoMatch,
		},
		{
			name:     "already consumed down still matches",
			template: seq(down(KeyA), up(KeyA)),
			buffer:   seq(match(KeyA), up(KeyA)),
			want:     Match,
		},
		{
			name:     "stray release is transparent padding",
			template: seq(down(KeyA), up(KeyA)),
			buffer:   seq(up(KeyX), down(KeyA), up(KeyA)),
			want:     Match,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchKeySequence(tc.template, tc.buffer); got != tc.want {
				t.Errorf("MatchKeySequence() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMatchKeySequenceNotGuard(t *testing.T) {
	template := seq(NewKeyEvent(KeyLeftShift, Not), down(KeyA), up(KeyA))

	if got := MatchKeySequence(template, seq(down(KeyA), up(KeyA))); got != Match {
		t.Errorf("without shift held: got %v, want Match", got)
	}
	if got := MatchKeySequence(template, seq(down(KeyLeftShift), down(KeyA), up(KeyA))); got != NoMatch {
		t.Errorf("with shift held: got %v, want NoMatch", got)
	}
}

func TestMatchKeySequenceAsyncGroup(t *testing.T) {
	// "(A B)" lowers to DownAsync,DownAsync,Down,Down: either physical
	// order satisfies the group, but both must be down before it locks in.
	template := seq(
		NewKeyEvent(KeyA, DownAsync), NewKeyEvent(KeyB, DownAsync),
		down(KeyA), down(KeyB),
	)

	if got := MatchKeySequence(template, seq(down(KeyB), down(KeyA))); got != Match {
		t.Errorf("reverse order: got %v, want Match", got)
	}
	if got := MatchKeySequence(template, seq(down(KeyA))); got != MightMatch {
		t.Errorf("partial group: got %v, want MightMatch", got)
	}
	if got := MatchKeySequence(template, seq(down(KeyA), down(KeyC))); got != NoMatch {
		t.Errorf("wrong second key: got %v, want NoMatch", got)
	}
}

func TestMatchKeySequenceUpAsync(t *testing.T) {
	// "A{B}" lowers to Down(A), Down(B), UpAsync(B), UpAsync(A): A and B's
	// releases may happen in any order or not at all yet.
	template := seq(
		down(KeyA), down(KeyB),
		NewKeyEvent(KeyB, UpAsync), NewKeyEvent(KeyA, UpAsync),
	)

	// Both Down entries are satisfied; the remaining entries are permissive
	// UpAsync, which never holds a match waiting for a release.
	if got := MatchKeySequence(template, seq(down(KeyA), down(KeyB))); got != Match {
		t.Errorf("neither released yet: got %v, want Match", got)
	}
	if got := MatchKeySequence(template, seq(down(KeyA), down(KeyB), up(KeyA), up(KeyB))); got != Match {
		t.Errorf("released out of declared order: got %v, want Match", got)
	}
}
