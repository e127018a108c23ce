package keymapper

import (
	"errors"
	"testing"
)

func parseErr(t *testing.T, text string) error {
	t.Helper()
	_, err := ParseConfig(text)
	if err == nil {
		t.Fatalf("ParseConfig(%q): want error, got nil", text)
	}
	return err
}

func TestParseConfigAcceptsMacrosAndNestedGroups(t *testing.T) {
	cfg, err := ParseConfig(`
Mod = LeftControl
Mod A >> LeftAlt{B}
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Contexts) != 1 {
		t.Fatalf("contexts = %d, want 1", len(cfg.Contexts))
	}
	def := cfg.Contexts[0]
	if len(def.Inputs) != 1 || len(def.Outputs) != 1 {
		t.Fatalf("def = %+v", def)
	}
	in := def.Inputs[0].Sequence
	if findKey(in, KeyLeftControl) < 0 {
		t.Errorf("expanded macro missing LeftControl: %v", in)
	}
	if findKey(in, KeyA) < 0 {
		t.Errorf("expanded macro missing A: %v", in)
	}
}

func TestParseConfigAcceptsContextWithClassTitleSystem(t *testing.T) {
	cfg, err := ParseConfig(`
[class="Firefox" title=/Example/i system=linux]
A >> B
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if runtimeIsLinux() {
		if len(cfg.Contexts) != 2 {
			t.Fatalf("contexts = %d, want 2", len(cfg.Contexts))
		}
		ctx := cfg.Contexts[1]
		if ctx.ClassFilter == nil || ctx.TitleFilter == nil {
			t.Errorf("expected class and title filters, got %+v", ctx)
		}
		if !ctx.Matches("Firefox", "an Example page", "") {
			t.Errorf("expected context to match Firefox/Example")
		}
	} else {
		// system=linux drops the context entirely on a non-Linux test
		// runner, folding nothing in since it isn't system-only.
		if len(cfg.Contexts) != 1 {
			t.Fatalf("contexts = %d, want 1 on non-linux", len(cfg.Contexts))
		}
	}
}

func TestParseConfigCommandDeclarationAndBinding(t *testing.T) {
	cfg, err := ParseConfig(`
A >> DoThing
DoThing >> B
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	def := cfg.Contexts[0]
	if len(def.Inputs) != 1 || def.Inputs[0].OutputIndex >= 0 {
		t.Fatalf("expected a command-indexed input, got %+v", def.Inputs)
	}
	if len(def.CommandOutputs) != 1 {
		t.Fatalf("CommandOutputs = %+v", def.CommandOutputs)
	}
}

func TestParseConfigActionRegistersCommand(t *testing.T) {
	cfg, err := ParseConfig(`A >> $(notify-send hi)`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Actions) != 1 || cfg.Actions[0].Command != "notify-send hi" {
		t.Fatalf("Actions = %+v", cfg.Actions)
	}
}

func TestParseConfigRejectsUnmappedCommand(t *testing.T) {
	err := parseErr(t, `A >> DoThing`)
	if !errors.Is(err, ErrUnmappedCommand) {
		t.Errorf("got %v, want ErrUnmappedCommand", err)
	}
}

func TestParseConfigRejectsDuplicateCommandBinding(t *testing.T) {
	err := parseErr(t, `
A >> DoThing
DoThing >> B
DoThing >> C
`)
	if !errors.Is(err, ErrDuplicateBinding) {
		t.Errorf("got %v, want ErrDuplicateBinding", err)
	}
}

func TestParseConfigRejectsDuplicateCommandDeclaration(t *testing.T) {
	err := parseErr(t, `
A >> DoThing
B >> DoThing
DoThing >> C
`)
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Errorf("got %v, want ErrDuplicateCommand", err)
	}
}

func TestParseConfigRejectsCommandToCommand(t *testing.T) {
	err := parseErr(t, `
A >> DoThing
B >> DoOther
DoThing >> DoOther
`)
	if !errors.Is(err, ErrCommandToCommand) {
		t.Errorf("got %v, want ErrCommandToCommand", err)
	}
}

func TestParseConfigRejectsEmptyContext(t *testing.T) {
	err := parseErr(t, `
[]
A >> B
`)
	if !errors.Is(err, ErrEmptyContext) {
		t.Errorf("got %v, want ErrEmptyContext", err)
	}
}

func TestParseConfigRejectsRegexForSystem(t *testing.T) {
	err := parseErr(t, `
[system=/linux/]
A >> B
`)
	if !errors.Is(err, ErrRegexNotAllowed) {
		t.Errorf("got %v, want ErrRegexNotAllowed", err)
	}
}

func TestParseConfigRejectsBadRegex(t *testing.T) {
	err := parseErr(t, `
[title=/(unterminated/]
A >> B
`)
	if !errors.Is(err, ErrBadRegex) {
		t.Errorf("got %v, want ErrBadRegex", err)
	}
}

func TestParseConfigRejectsNotInsideGroup(t *testing.T) {
	err := parseErr(t, `A{!B} >> C`)
	if !errors.Is(err, ErrNotInGroup) {
		t.Errorf("got %v, want ErrNotInGroup", err)
	}
}

func TestParseConfigRejectsRepeatedOutputOnRelease(t *testing.T) {
	err := parseErr(t, `A >> B^ C^`)
	if !errors.Is(err, ErrOutputOnReleaseRepeated) {
		t.Errorf("got %v, want ErrOutputOnReleaseRepeated", err)
	}
}

func TestParseConfigRejectsCommandDeclarationInsideContext(t *testing.T) {
	err := parseErr(t, `
[class=Foo]
A >> DoThing
`)
	if !errors.Is(err, ErrCommandDeclInContext) {
		t.Errorf("got %v, want ErrCommandDeclInContext", err)
	}
}

func TestParseConfigRejectsUnrecognizedLine(t *testing.T) {
	err := parseErr(t, `this is not a valid line at all`)
	if !errors.Is(err, ErrUnrecognizedLine) {
		t.Errorf("got %v, want ErrUnrecognizedLine", err)
	}
}

func TestParseConfigRejectsReservedMacroName(t *testing.T) {
	err := parseErr(t, `
A = B
A >> C
`)
	if !errors.Is(err, ErrReservedMacroName) {
		t.Errorf("got %v, want ErrReservedMacroName", err)
	}
}

func TestParseConfigExitSequenceDirective(t *testing.T) {
	cfg, err := ParseConfig(`
exit_sequence = LeftControl LeftAlt Escape
A >> B
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.ExitSequence) != 3 {
		t.Fatalf("ExitSequence = %v", cfg.ExitSequence)
	}
	for _, e := range cfg.ExitSequence {
		if e.State != Down {
			t.Errorf("exit sequence event %v is not Down-only", e)
		}
	}
}

func TestParseConfigVirtualKeyDirective(t *testing.T) {
	cfg, err := ParseConfig(`
Layer = virtual
A >> Layer
CapsLock >> Layer
`)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if _, ok := cfg.VirtualKeys["Layer"]; !ok {
		t.Fatalf("VirtualKeys = %+v, want Layer", cfg.VirtualKeys)
	}
}

func TestParseConfigLineNumberAttribution(t *testing.T) {
	err := parseErr(t, "A >> B\nC >> DoThing\nDoThing >> E\nDoThing >> F\n")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *ParseError", err)
	}
	if pe.Line != 4 {
		t.Errorf("Line = %d, want 4", pe.Line)
	}
}

func runtimeIsLinux() bool {
	return currentSystemMatches("linux")
}
