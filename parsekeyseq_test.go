package keymapper

import (
	"reflect"
	"testing"
)

func TestParseInputExpressionSimple(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want KeySequence
	}{
		{
			name: "single key",
			expr: "A",
			want: seq(down(KeyA), NewKeyEvent(KeyA, UpAsync)),
		},
		{
			name: "two keys in sequence",
			expr: "A B",
			want: seq(
				down(KeyA), NewKeyEvent(KeyA, UpAsync),
				down(KeyB), NewKeyEvent(KeyB, UpAsync),
			),
		},
		{
			name: "hold",
			expr: "A{B}",
			want: seq(
				down(KeyA), down(KeyB),
				NewKeyEvent(KeyB, UpAsync), NewKeyEvent(KeyA, UpAsync),
			),
		},
		{
			name: "not guard",
			expr: "!Shift A",
			want: seq(
				NewKeyEvent(KeyLeftShift, Not),
				down(KeyA), NewKeyEvent(KeyA, UpAsync),
			),
		},
		{
			name: "async group",
			expr: "(A B)",
			want: seq(
				NewKeyEvent(KeyA, DownAsync), NewKeyEvent(KeyB, DownAsync),
				down(KeyA), down(KeyB),
			),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseInputExpression(tc.expr, nil)
			if err != nil {
				t.Fatalf("ParseInputExpression(%q) error = %v", tc.expr, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseInputExpression(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestParseOutputExpressionSimple(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want KeySequence
	}{
		{
			// A lone key is the whole output: it stays down, relying on
			// Stage.releaseTriggered to emit its Up once the triggering
			// input releases (see TestStageE1SimpleRemap).
			name: "single key",
			expr: "A",
			want: seq(down(KeyA)),
		},
		{
			name: "sequence releases each tap",
			expr: "A B",
			want: seq(down(KeyA), up(KeyA), down(KeyB), up(KeyB)),
		},
		{
			name: "hold",
			expr: "A{B}",
			want: seq(down(KeyA), down(KeyB), up(KeyB), up(KeyA)),
		},
		{
			name: "output on release",
			expr: "A ^ B",
			want: seq(down(KeyA), up(KeyA), NewKeyEvent(None, OutputOnRelease), down(KeyB), up(KeyB)),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseOutputExpression(tc.expr, nil)
			if err != nil {
				t.Fatalf("ParseOutputExpression(%q) error = %v", tc.expr, err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ParseOutputExpression(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestParseKeyExpressionErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) error
		expr string
		want error
	}{
		{"unknown identifier", parseInput, "Nonexistent", ErrUnknownIdentifier},
		{"dangling not", parseInput, "!", ErrDanglingNot},
		{"not inside group", parseInput, "A{!B}", ErrNotInGroup},
		{"dangling hold", parseInput, "{A}", ErrDanglingHold},
		{"unmatched brace", parseInput, "A{B", ErrUnmatchedBracket},
		{"empty group", parseInput, "()", ErrDanglingHold},
		{"release repeated", parseOutput, "A ^ B ^ C", ErrOutputOnReleaseRepeated},
		{"release in input", parseInputRelease, "A ^", ErrOutputOnReleaseInGroup},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.fn(tc.expr)
			if err != tc.want {
				t.Errorf("%s: error = %v, want %v", tc.expr, err, tc.want)
			}
		})
	}
}

func parseInput(expr string) error {
	_, err := ParseInputExpression(expr, nil)
	return err
}

func parseInputRelease(expr string) error {
	_, err := ParseInputExpression(expr, nil)
	return err
}

func parseOutput(expr string) error {
	_, err := ParseOutputExpression(expr, nil)
	return err
}
