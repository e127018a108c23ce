package keymapper

import (
	"reflect"
	"testing"
)

// compileRule lowers one "input -> output" pair (surface syntax) into an
// Input/Output pair appended to ctx.
func compileRule(t *testing.T, ctx *Context, input, output string) {
	t.Helper()
	in, err := ParseInputExpression(input, nil)
	if err != nil {
		t.Fatalf("ParseInputExpression(%q): %v", input, err)
	}
	out, err := ParseOutputExpression(output, nil)
	if err != nil {
		t.Fatalf("ParseOutputExpression(%q): %v", output, err)
	}
	ctx.Outputs = append(ctx.Outputs, out)
	ctx.Inputs = append(ctx.Inputs, Input{Sequence: in, OutputIndex: len(ctx.Outputs) - 1})
}

func newTestStage(t *testing.T, rules [][2]string) *Stage {
	t.Helper()
	var ctx Context
	for _, r := range rules {
		compileRule(t, &ctx, r[0], r[1])
	}
	s := NewStage([]Context{ctx}, nil, nil)
	s.SetActiveContexts([]int{0})
	return s
}

// TestStageE1SimpleRemap is spec §8 scenario E1.
func TestStageE1SimpleRemap(t *testing.T) {
	s := newTestStage(t, [][2]string{{"A", "B"}})

	if got := s.Update(down(KeyA)); !reflect.DeepEqual(got, seq(down(KeyB))) {
		t.Fatalf("Down(A) -> %v, want [Down(B)]", got)
	}
	if got := s.Update(up(KeyA)); !reflect.DeepEqual(got, seq(up(KeyB))) {
		t.Fatalf("Up(A) -> %v, want [Up(B)]", got)
	}
}

// TestStageE2ModifierHold is spec §8 scenario E2: neither Shift event
// reaches output, and the mapped key's press/release track A's.
func TestStageE2ModifierHold(t *testing.T) {
	s := newTestStage(t, [][2]string{{"Shift{A}", "B"}})

	if got := s.Update(down(KeyLeftShift)); len(got) != 0 {
		t.Fatalf("Down(Shift) -> %v, want no output", got)
	}
	if got := s.Update(down(KeyA)); !reflect.DeepEqual(got, seq(down(KeyB))) {
		t.Fatalf("Down(A) -> %v, want [Down(B)]", got)
	}
	if got := s.Update(up(KeyA)); !reflect.DeepEqual(got, seq(up(KeyB))) {
		t.Fatalf("Up(A) -> %v, want [Up(B)]", got)
	}
	if got := s.Update(up(KeyLeftShift)); len(got) != 0 {
		t.Fatalf("Up(Shift) -> %v, want no output", got)
	}
}

// TestStageE3AmbiguityHold is spec §8 scenario E3. The longer rule is
// declared first: Stage evaluates rules in declared order and a might_match
// from an earlier rule takes priority over a later rule's full match, so
// the more specific chord must come first in the rule list (same convention
// real keymapper configs use to avoid a short rule shadowing a longer one).
func TestStageE3AmbiguityHold(t *testing.T) {
	s := newTestStage(t, [][2]string{
		{"A B", "Y"},
		{"A", "X"},
	})

	if got := s.Update(down(KeyA)); len(got) != 0 {
		t.Fatalf("Down(A) -> %v, want no output (might_match held)", got)
	}
	if got := s.Update(up(KeyA)); len(got) != 0 {
		t.Fatalf("Up(A) -> %v, want no output (still held)", got)
	}
	if got := s.Update(down(KeyB)); !reflect.DeepEqual(got, seq(down(KeyY))) {
		t.Fatalf("Down(B) -> %v, want [Down(Y)]", got)
	}
	if got := s.Update(up(KeyB)); !reflect.DeepEqual(got, seq(up(KeyY))) {
		t.Fatalf("Up(B) -> %v, want [Up(Y)]", got)
	}
}

// TestStageE3AmbiguityHoldAlternative covers the scenario's second branch:
// once A is held and an unrelated key arrives, the held "A B" rule can
// never complete (B didn't follow), so the shorter "A" rule resolves
// instead and fires its output. C, which the winning rule does not name,
// is forwarded right after that output within the same Update call.
func TestStageE3AmbiguityHoldAlternative(t *testing.T) {
	s := newTestStage(t, [][2]string{
		{"A B", "Y"},
		{"A", "X"},
	})

	if got := s.Update(down(KeyA)); len(got) != 0 {
		t.Fatalf("Down(A) -> %v, want no output", got)
	}
	got := s.Update(down(KeyC))
	want := seq(down(KeyX), down(KeyC))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Down(C) -> %v, want %v", got, want)
	}
}

// TestStageE4NotGate is spec §8 scenario E4: the rule never matches while
// Shift is held, so A passes through unchanged.
func TestStageE4NotGate(t *testing.T) {
	s := newTestStage(t, [][2]string{{"!Shift A", "X"}})

	if got := s.Update(down(KeyLeftShift)); !reflect.DeepEqual(got, seq(down(KeyLeftShift))) {
		t.Fatalf("Down(Shift) -> %v, want forwarded [Down(Shift)]", got)
	}
	if got := s.Update(down(KeyA)); !reflect.DeepEqual(got, seq(down(KeyA))) {
		t.Fatalf("Down(A) -> %v, want forwarded [Down(A)]", got)
	}
	if got := s.Update(up(KeyA)); !reflect.DeepEqual(got, seq(up(KeyA))) {
		t.Fatalf("Up(A) -> %v, want forwarded [Up(A)]", got)
	}
	if got := s.Update(up(KeyLeftShift)); !reflect.DeepEqual(got, seq(up(KeyLeftShift))) {
		t.Fatalf("Up(Shift) -> %v, want forwarded [Up(Shift)]", got)
	}
}

// TestStageE5OutputOnRelease is spec §8 scenario E5. The Stage emits the
// whole output template on Down(A), OutputOnRelease marker included; the
// host holds back everything after the marker until A is released, so the
// Stage itself emits nothing on Up(A).
func TestStageE5OutputOnRelease(t *testing.T) {
	s := newTestStage(t, [][2]string{{"A", "X ^ Y"}})

	got := s.Update(down(KeyA))
	want := seq(down(KeyX), up(KeyX), NewKeyEvent(None, OutputOnRelease), down(KeyY), up(KeyY))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Down(A) -> %v, want %v", got, want)
	}
	if got = s.Update(up(KeyA)); len(got) != 0 {
		t.Fatalf("Up(A) -> %v, want no output", got)
	}
}

// TestStageE6VirtualToggle is spec §8 scenario E6.
func TestStageE6VirtualToggle(t *testing.T) {
	alloc := newVirtualKeyAllocator()
	virtualA := alloc.alloc()
	aliases := map[string]Key{"VirtualA": virtualA}

	var ctx Context
	mustCompile := func(input, output string) {
		in, err := ParseInputExpression(input, aliases)
		if err != nil {
			t.Fatalf("ParseInputExpression(%q): %v", input, err)
		}
		out, err := ParseOutputExpression(output, aliases)
		if err != nil {
			t.Fatalf("ParseOutputExpression(%q): %v", output, err)
		}
		ctx.Outputs = append(ctx.Outputs, out)
		ctx.Inputs = append(ctx.Inputs, Input{Sequence: in, OutputIndex: len(ctx.Outputs) - 1})
	}
	mustCompile("Caps", "VirtualA")
	mustCompile("VirtualA{H}", "Left")

	s := NewStage([]Context{ctx}, nil, nil)
	s.SetActiveContexts([]int{0})

	if got := s.Update(down(KeyCapsLock)); len(got) != 0 {
		t.Fatalf("Down(Caps) -> %v, want no output", got)
	}
	if got := s.Update(up(KeyCapsLock)); len(got) != 0 {
		t.Fatalf("Up(Caps) -> %v, want no output (latches VirtualA)", got)
	}

	if got := s.Update(down(KeyH)); !reflect.DeepEqual(got, seq(down(KeyLeft))) {
		t.Fatalf("Down(H) -> %v, want [Down(Left)]", got)
	}
	if got := s.Update(up(KeyH)); !reflect.DeepEqual(got, seq(up(KeyLeft))) {
		t.Fatalf("Up(H) -> %v, want [Up(Left)]", got)
	}

	if got := s.Update(down(KeyCapsLock)); len(got) != 0 {
		t.Fatalf("Down(Caps) again -> %v, want no output", got)
	}
	if got := s.Update(up(KeyCapsLock)); len(got) != 0 {
		t.Fatalf("Up(Caps) again -> %v, want no output (clears VirtualA)", got)
	}

	if got := s.Update(down(KeyH)); !reflect.DeepEqual(got, seq(down(KeyH))) {
		t.Fatalf("Down(H) after clearing latch -> %v, want forwarded [Down(H)]", got)
	}
	s.Update(up(KeyH))
}

func TestStageExitSequence(t *testing.T) {
	exit, err := ParseInputExpression("A B", nil)
	if err != nil {
		t.Fatal(err)
	}
	var chord KeySequence
	for _, e := range exit {
		if e.State == Down {
			chord = append(chord, NewKeyEvent(e.Key, Down))
		}
	}
	s := NewStage(nil, nil, chord)
	s.SetActiveContexts(nil)

	if s.ShouldExit() {
		t.Fatal("ShouldExit before any input")
	}
	s.Update(down(KeyA))
	if s.ShouldExit() {
		t.Fatal("ShouldExit after only the first chord key")
	}
	s.Update(down(KeyB))
	if !s.ShouldExit() {
		t.Fatal("ShouldExit should be true once the whole exit chord is down")
	}
}

func TestStageOverrideSet(t *testing.T) {
	s := newTestStage(t, [][2]string{{"A", "B"}})
	altOut, err := ParseOutputExpression("Z", nil)
	if err != nil {
		t.Fatal(err)
	}
	globalIndex := s.Contexts()[0].Inputs[0].globalIndex
	s.overrideSets = []OverrideSet{{{MappingIndex: globalIndex, Output: altOut}}}
	s.SetActiveOverrideSet(0)

	if got := s.Update(down(KeyA)); !reflect.DeepEqual(got, seq(down(KeyZ))) {
		t.Fatalf("Down(A) under override -> %v, want [Down(Z)]", got)
	}
	s.Update(up(KeyA))

	s.SetActiveOverrideSet(-1)
	if got := s.Update(down(KeyA)); !reflect.DeepEqual(got, seq(down(KeyB))) {
		t.Fatalf("Down(A) after clearing override -> %v, want [Down(B)]", got)
	}
	s.Update(up(KeyA))
}
