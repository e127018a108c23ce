package keymapper

import "github.com/dlclark/regexp2"

// Action is a single terminal-command action: Config.Actions[i] is run when
// an event carrying ActionKey(i) is emitted.
type Action struct {
	Command string
}

// FilterKind distinguishes a literal comparison from a compiled regular
// expression.
type FilterKind int

const (
	// FilterLiteralExact requires byte-for-byte equality (used for class
	// and path).
	FilterLiteralExact FilterKind = iota
	// FilterLiteralSubstring requires the filter text to appear anywhere
	// in the candidate (used for title).
	FilterLiteralSubstring
	// FilterRegex matches via a compiled ECMAScript-mode expression.
	FilterRegex
)

// Filter is a single context-matching predicate: a literal (exact or
// substring, depending on which field it came from) or a "/…/i" regular
// expression. A nil *Filter always matches.
type Filter struct {
	Kind    FilterKind
	Literal string
	Regex   *regexp2.Regexp
}

// Match reports whether the filter accepts the candidate string. A nil
// receiver always matches.
func (f *Filter) Match(s string) bool {
	if f == nil {
		return true
	}
	switch f.Kind {
	case FilterLiteralExact:
		return f.Literal == s
	case FilterLiteralSubstring:
		return stringsContains(s, f.Literal)
	case FilterRegex:
		ok, err := f.Regex.MatchString(s)
		return err == nil && ok
	default:
		return false
	}
}

func stringsContains(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

// Input is a compiled rule: an input template plus a reference to its
// output. OutputIndex >= 0 indexes Context.Outputs directly; OutputIndex <
// 0 is a command reference, resolved via CommandIndexFromOutputIndex.
type Input struct {
	Sequence    KeySequence
	OutputIndex int

	// globalIndex is assigned by NewStage across the flattened list of
	// every context's inputs, in declaration order. It is the index an
	// override set's MappingOverride.MappingIndex refers to.
	globalIndex int
}

// CommandOutput binds a declared command's output template for one
// context.
type CommandOutput struct {
	Output       KeySequence
	CommandIndex int
}

// CommandIndexFromOutputIndex converts an Input.OutputIndex < 0 to the
// command index it names: -1 => command 0, -2 => command 1, and so on.
func CommandIndexFromOutputIndex(outputIndex int) int {
	return -outputIndex - 1
}

// OutputIndexFromCommandIndex is the inverse of CommandIndexFromOutputIndex,
// used by ParseConfig when it emits a command-referencing Input.
func OutputIndexFromCommandIndex(commandIndex int) int {
	return -commandIndex - 1
}

// Context is a filter plus its bindings: the rules that are active only
// while the filter matches the focused window (or always, if every field
// is nil).
type Context struct {
	Inputs         []Input
	Outputs        []KeySequence
	CommandOutputs []CommandOutput

	ClassFilter  *Filter
	TitleFilter  *Filter
	PathFilter   *Filter
	DeviceFilter *Filter

	// System is evaluated at parse time only; by the time a Config
	// reaches a Stage, every Context.System is either empty (matched, or
	// was never specified) or the context has already been dropped or
	// folded into the default context.
	System string
}

// Matches reports whether this context's window filters accept the given
// focused-window description. System filtering happens earlier, at parse
// time. DeviceFilter is parsed but not consulted here or by the hosts: the
// core has no notion of "which device produced this event".
func (c *Context) Matches(class, title, path string) bool {
	return c.ClassFilter.Match(class) &&
		c.TitleFilter.Match(title) &&
		c.PathFilter.Match(path)
}

// MappingOverride is one entry of an override set: the output to use for
// Input.globalIndex instead of its default, implementing a modal layer.
type MappingOverride struct {
	MappingIndex int
	Output       KeySequence
}

// OverrideSet is a list of MappingOverride sorted by MappingIndex, enabling
// the binary-search lookup Stage.getOutput performs.
type OverrideSet []MappingOverride

// Config is the top-level artifact ParseConfig produces: the action list,
// the virtual-key alias table, and the compiled contexts.
type Config struct {
	Actions      []Action
	VirtualKeys  map[string]Key
	Contexts     []Context
	OverrideSets []OverrideSet

	// ExitSequence is the configured literal chord that makes the daemon
	// exit; empty if unconfigured.
	ExitSequence KeySequence
}
