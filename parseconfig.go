package keymapper

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/dlclark/regexp2"
)

// pendingContext accumulates one "[...]"-scoped (or the implicit default)
// context's bindings while ParseConfig reads the file, plus the parse-time
// bookkeeping (system-filter literal, whether it is the "system-only"
// shape that gets folded into the default context) that finalize needs
// once the whole file has been read.
type pendingContext struct {
	ctx Context

	sawSystem      bool
	systemLiteral  string
	otherFilterSet bool
}

func (pc *pendingContext) systemOnly() bool {
	return pc.sawSystem && !pc.otherFilterSet
}

// applyFilter records one "key=value" pair from a context header onto pc,
// compiling a regex filter when isRegex is set. key has already been
// lower-cased by the caller.
func (pc *pendingContext) applyFilter(key, value string, isRegex bool, flags string) error {
	if key == "system" {
		if isRegex {
			return ErrRegexNotAllowed
		}
		pc.sawSystem = true
		pc.systemLiteral = value
		return nil
	}

	var substring bool
	var target **Filter
	switch key {
	case "class":
		target = &pc.ctx.ClassFilter
	case "title":
		target = &pc.ctx.TitleFilter
		substring = true
	case "path":
		target = &pc.ctx.PathFilter
	case "device":
		target = &pc.ctx.DeviceFilter
	default:
		return ErrUnknownContextKey
	}

	f := &Filter{}
	if isRegex {
		opts := regexp2.None
		if strings.Contains(flags, "i") {
			opts = regexp2.IgnoreCase
		}
		re, err := regexp2.Compile(value, opts)
		if err != nil {
			return ErrBadRegex
		}
		f.Kind = FilterRegex
		f.Regex = re
	} else if substring {
		f.Kind = FilterLiteralSubstring
		f.Literal = value
	} else {
		f.Kind = FilterLiteralExact
		f.Literal = value
	}
	*target = f
	pc.otherFilterSet = true
	return nil
}

type commandDecl struct {
	name     string
	index    int
	declLine int
}

// configParser holds all state accumulated across a single ParseConfig
// call: declared macros (expanded textually at use, not at definition),
// the shared key/virtual-key/action-placeholder alias table, the declared
// commands, and the list of contexts (index 0 is always the implicit
// default).
type configParser struct {
	line int

	macros map[string]string
	alloc  *virtualKeyAllocator
	alias  map[string]Key

	commands     map[string]*commandDecl
	commandOrder []string

	contexts []*pendingContext
	current  *pendingContext

	actions []Action

	exitSequence KeySequence
}

func newConfigParser() *configParser {
	def := &pendingContext{}
	p := &configParser{
		macros:   make(map[string]string),
		alloc:    newVirtualKeyAllocator(),
		alias:    make(map[string]Key),
		commands: make(map[string]*commandDecl),
		contexts: []*pendingContext{def},
	}
	p.current = def
	return p
}

// ParseConfig compiles the declarative configuration language (§4.6) into
// a Config: macros are expanded textually at every point of use, "[...]"
// context headers are evaluated against the running OS at parse time
// (dropping contexts for other systems and folding system-only contexts
// into the default context's bindings), and every mapping/command line is
// lowered through ParseKeySequence. Errors are *ParseError, attributed to
// the 1-indexed line that caused them.
func ParseConfig(text string) (Config, error) {
	p := newConfigParser()
	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		if err := p.parseLine(line, lineNo); err != nil {
			return Config{}, err
		}
	}
	return p.finalize()
}

// stripComment truncates a line at the first "#" or ";" that is not
// inside a quoted string or a "/…/" regex body — both of which appear
// only within "[...]" context headers in this grammar.
func stripComment(line string) string {
	var inSingle, inDouble, inRegex bool
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			}
		case inRegex:
			if c == '/' {
				inRegex = false
			}
		case c == '\'':
			inSingle = true
		case c == '"':
			inDouble = true
		case c == '/':
			inRegex = true
		case c == '#' || c == ';':
			return line[:i]
		}
	}
	return line
}

func (p *configParser) parseLine(line string, lineNo int) error {
	p.line = lineNo
	if err := p.parseLineInner(line); err != nil {
		if pe, ok := err.(*ParseError); ok {
			return pe
		}
		return parseErrorf(lineNo, err)
	}
	return nil
}

func (p *configParser) parseLineInner(line string) error {
	if strings.HasPrefix(line, "[") {
		return p.parseContextLine(line)
	}
	if idx := strings.Index(line, ">>"); idx >= 0 {
		return p.parseMappingLine(line[:idx], line[idx+2:])
	}
	if idx := strings.Index(line, "="); idx >= 0 {
		return p.parseMacroLine(line[:idx], line[idx+1:])
	}
	return ErrUnrecognizedLine
}

// parseContextLine handles a whole "[...]" header line: the closing
// bracket must be the line's last character (anything dangling after it,
// or a header with no closing bracket at all, is rejected) so that a
// malformed header can never silently swallow the following line.
func (p *configParser) parseContextLine(line string) error {
	if !strings.HasSuffix(line, "]") {
		return ErrUnmatchedBracket
	}
	pc, err := parseContextHeader(line[1 : len(line)-1])
	if err != nil {
		return err
	}
	p.contexts = append(p.contexts, pc)
	p.current = pc
	return nil
}

func parseContextHeader(body string) (*pendingContext, error) {
	pc := &pendingContext{}
	i, n := 0, len(body)
	hasAny := false

	isSpace := func(c byte) bool { return c == ' ' || c == '\t' }
	isIdentChar := func(c byte) bool { return c != '=' && !isSpace(c) }

	for {
		for i < n && isSpace(body[i]) {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n && isIdentChar(body[i]) {
			i++
		}
		key := body[start:i]

		j := i
		for j < n && isSpace(body[j]) {
			j++
		}
		if j < n && body[j] == '=' {
			i = j + 1
			for i < n && isSpace(body[i]) {
				i++
			}
			value, isRegex, flags, next, err := readContextValue(body, i)
			if err != nil {
				return nil, err
			}
			i = next
			if err := pc.applyFilter(strings.ToLower(key), value, isRegex, flags); err != nil {
				return nil, err
			}
			hasAny = true
			continue
		}

		if !strings.EqualFold(key, "window") {
			return nil, ErrUnknownContextKey
		}
		i = j
	}

	if !hasAny {
		return nil, ErrEmptyContext
	}
	return pc, nil
}

// readContextValue reads a single filter value starting at body[i]: a
// '...'/"..." quoted literal, a "/…/i" regular expression, or an unquoted
// bareword running to the next whitespace (or the header's end).
func readContextValue(body string, i int) (value string, isRegex bool, flags string, next int, err error) {
	n := len(body)
	if i < n && (body[i] == '\'' || body[i] == '"') {
		quote := body[i]
		i++
		start := i
		for i < n && body[i] != quote {
			i++
		}
		if i >= n {
			return "", false, "", 0, ErrUnterminatedQuote
		}
		return body[start:i], false, "", i + 1, nil
	}
	if i < n && body[i] == '/' {
		i++
		start := i
		for i < n && body[i] != '/' {
			i++
		}
		if i >= n {
			return "", false, "", 0, ErrUnterminatedRegex
		}
		pattern := body[start:i]
		i++
		flagStart := i
		for i < n && body[i] != ' ' && body[i] != '\t' {
			i++
		}
		return pattern, true, body[flagStart:i], i, nil
	}
	start := i
	for i < n && body[i] != ' ' && body[i] != '\t' {
		i++
	}
	return body[start:i], false, "", i, nil
}

// parseMacroLine handles "Name = <sequence>", plus two directive shapes
// that reuse the same "Name = ..." surface: the supplemented
// "exit_sequence = <sequence>" directive (§SPEC_FULL D.4, a literal key
// chord that makes the daemon exit once matched in full) and
// "Name = virtual", which declares Name as a brand new virtual-key latch
// rather than a textual macro — the configuration language's one
// grammar hook for introducing the user-named toggles §GLOSSARY
// describes, since nothing else in §4.6 names unresolved identifiers as
// virtual keys implicitly.
func (p *configParser) parseMacroLine(nameRaw, bodyRaw string) error {
	name := strings.TrimSpace(nameRaw)
	if name == "" || strings.ContainsAny(name, " \t") {
		return ErrUnrecognizedLine
	}
	body := strings.TrimSpace(bodyRaw)

	if strings.EqualFold(name, "exit_sequence") {
		expanded := p.expandMacros(body)
		seq, err := ParseInputExpression(expanded, p.alias)
		if err != nil {
			return err
		}
		var chord KeySequence
		for _, e := range seq {
			if e.State == Down {
				chord = append(chord, NewKeyEvent(e.Key, Down))
			}
		}
		p.exitSequence = chord
		return nil
	}

	if _, ok := LookupKey(name, p.alias); ok {
		return ErrReservedMacroName
	}

	if strings.EqualFold(body, "virtual") {
		p.alias[name] = p.alloc.alloc()
		return nil
	}

	p.macros[name] = body
	return nil
}

// expandMacros textually substitutes every declared macro name appearing
// as a whole identifier token in s with its stored body, repeating until
// a fixed point (so a macro whose body references another macro is fully
// expanded) or a generous iteration cap guards against a cyclic
// definition looping forever.
func (p *configParser) expandMacros(s string) string {
	for iter := 0; iter < 32; iter++ {
		out, changed := expandMacrosOnce(s, p.macros)
		s = out
		if !changed {
			break
		}
	}
	return s
}

func expandMacrosOnce(s string, macros map[string]string) (string, bool) {
	var sb strings.Builder
	changed := false
	i := 0
	for i < len(s) {
		c := s[i]
		if isKeyExprDelim(c) {
			sb.WriteByte(c)
			i++
			continue
		}
		start := i
		for i < len(s) && !isKeyExprDelim(s[i]) {
			i++
		}
		ident := s[start:i]
		if body, ok := macros[ident]; ok {
			sb.WriteString(" ")
			sb.WriteString(body)
			sb.WriteString(" ")
			changed = true
		} else {
			sb.WriteString(ident)
		}
	}
	return sb.String(), changed
}

func isKeyExprDelim(c byte) bool {
	switch c {
	case ' ', '\t', '!', '^', '(', ')', '{', '}':
		return true
	default:
		return false
	}
}

// parseMappingLine handles every "LHS >> RHS" shape: a command
// declaration ("<input> >> CommandName"), a command binding
// ("CommandName >> <output>"), or a plain mapping ("<input> >> <output>").
//
// LHS is checked first: once a name has been declared as a command, every
// later line whose LHS is exactly that name is a binding, even if the
// RHS also happens to look like a fresh command-declaration candidate
// (that shape, "CommandA >> CommandB", is exactly the disallowed
// command-to-command reference). Only once LHS is ruled out as a known
// command do we consider whether RHS introduces a new one.
func (p *configParser) parseMappingLine(lhsRaw, rhsRaw string) error {
	lhs := strings.TrimSpace(p.expandMacros(lhsRaw))
	rhs := strings.TrimSpace(p.expandMacros(rhsRaw))

	if isBareIdent(lhs) {
		if decl, ok := p.commands[lhs]; ok {
			return p.bindCommand(decl, rhs)
		}
	}

	if isBareIdent(rhs) {
		if _, ok := LookupKey(rhs, p.alias); !ok {
			return p.declareCommand(lhs, rhs)
		}
	}

	if isBareIdent(lhs) {
		if _, ok := LookupKey(lhs, p.alias); !ok {
			return ErrUnknownCommand
		}
	}

	return p.addMapping(lhs, rhs)
}

func isBareIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if isKeyExprDelim(s[i]) {
			return false
		}
	}
	return true
}

func (p *configParser) declareCommand(inputExpr, name string) error {
	if p.current != p.contexts[0] {
		return ErrCommandDeclInContext
	}
	if _, ok := p.commands[name]; ok {
		return ErrDuplicateCommand
	}
	seq, err := ParseInputExpression(inputExpr, p.alias)
	if err != nil {
		return err
	}
	index := len(p.commandOrder)
	p.commands[name] = &commandDecl{name: name, index: index, declLine: p.line}
	p.commandOrder = append(p.commandOrder, name)

	p.current.ctx.Inputs = append(p.current.ctx.Inputs, Input{
		Sequence:    seq,
		OutputIndex: OutputIndexFromCommandIndex(index),
	})
	return nil
}

func (p *configParser) bindCommand(decl *commandDecl, outputExpr string) error {
	if isBareIdent(outputExpr) {
		if _, ok := LookupKey(outputExpr, p.alias); !ok {
			return ErrCommandToCommand
		}
	}

	out, err := p.parseOutput(outputExpr)
	if err != nil {
		return err
	}
	for _, co := range p.current.ctx.CommandOutputs {
		if co.CommandIndex == decl.index {
			return ErrDuplicateBinding
		}
	}
	p.current.ctx.CommandOutputs = append(p.current.ctx.CommandOutputs, CommandOutput{
		CommandIndex: decl.index,
		Output:       out,
	})
	return nil
}

func (p *configParser) addMapping(inputExpr, outputExpr string) error {
	in, err := ParseInputExpression(inputExpr, p.alias)
	if err != nil {
		return err
	}
	out, err := p.parseOutput(outputExpr)
	if err != nil {
		return err
	}
	outputIndex := len(p.current.ctx.Outputs)
	p.current.ctx.Outputs = append(p.current.ctx.Outputs, out)
	p.current.ctx.Inputs = append(p.current.ctx.Inputs, Input{Sequence: in, OutputIndex: outputIndex})
	return nil
}

// parseOutput extracts any "$(...)" terminal-command actions from expr,
// registering each with the config's action list and replacing it with a
// unique placeholder identifier already present in p.alias, then lowers
// the result through ParseOutputExpression.
func (p *configParser) parseOutput(expr string) (KeySequence, error) {
	replaced, err := p.extractActions(expr)
	if err != nil {
		return nil, err
	}
	return ParseOutputExpression(replaced, p.alias)
}

const actionPlaceholderPrefix = "\x00action"

// extractActions scans expr for "$(...)" terminal-command actions,
// rejecting one nested inside another or inside a "(...)"/"{...}" group,
// registers each command's text as a new Config.Actions entry, and
// replaces the whole "$(...)" span with a unique placeholder token already
// present in p.alias (resolving to the new action's Key) so the ordinary
// key-expression parser can treat it like any other identifier.
func (p *configParser) extractActions(expr string) (string, error) {
	var sb strings.Builder
	depth := 0
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch c {
		case '(', '{':
			depth++
			sb.WriteByte(c)
			i++
		case ')', '}':
			if depth > 0 {
				depth--
			}
			sb.WriteByte(c)
			i++
		case '$':
			if i+1 >= len(expr) || expr[i+1] != '(' {
				return "", ErrDanglingAction
			}
			if depth > 0 {
				return "", ErrNestedAction
			}
			j := i + 2
			pdepth := 1
			for j < len(expr) && pdepth > 0 {
				switch expr[j] {
				case '(':
					pdepth++
				case ')':
					pdepth--
				}
				if pdepth == 0 {
					break
				}
				j++
			}
			if pdepth != 0 {
				return "", ErrUnterminatedAction
			}
			cmd := strings.TrimSpace(expr[i+2 : j])
			index := len(p.actions)
			p.actions = append(p.actions, Action{Command: cmd})
			placeholder := fmt.Sprintf("%s%d\x00", actionPlaceholderPrefix, index)
			p.alias[placeholder] = ActionKey(index)
			sb.WriteString(" ")
			sb.WriteString(placeholder)
			sb.WriteString(" ")
			i = j + 1
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

// finalize evaluates every context's system filter against the running
// OS, drops non-matching contexts, folds "system-only" contexts' bindings
// into the default context, checks that every declared command is bound
// in at least one surviving context, and assembles the Config.
func (p *configParser) finalize() (Config, error) {
	def := p.contexts[0].ctx

	var kept []Context
	for _, pc := range p.contexts[1:] {
		if pc.sawSystem && !currentSystemMatches(pc.systemLiteral) {
			continue
		}
		if pc.systemOnly() {
			for _, co := range pc.ctx.CommandOutputs {
				for _, existing := range def.CommandOutputs {
					if existing.CommandIndex == co.CommandIndex {
						return Config{}, parseErrorf(p.line, ErrDuplicateBinding)
					}
				}
				def.CommandOutputs = append(def.CommandOutputs, co)
			}
			// pc.ctx.Inputs' non-negative OutputIndex values are positions
			// into pc.ctx.Outputs; shift them by what's already in def's
			// Outputs before the two lists are merged, or they'd address
			// the wrong (or a nonexistent) entry once folded in.
			offset := len(def.Outputs)
			for _, in := range pc.ctx.Inputs {
				if in.OutputIndex >= 0 {
					in.OutputIndex += offset
				}
				def.Inputs = append(def.Inputs, in)
			}
			def.Outputs = append(def.Outputs, pc.ctx.Outputs...)
			continue
		}
		kept = append(kept, pc.ctx)
	}

	contexts := append([]Context{def}, kept...)

	bound := make(map[int]bool)
	for _, ctx := range contexts {
		for _, co := range ctx.CommandOutputs {
			bound[co.CommandIndex] = true
		}
	}
	for _, name := range p.commandOrder {
		decl := p.commands[name]
		if !bound[decl.index] {
			return Config{}, parseErrorf(decl.declLine, ErrUnmappedCommand)
		}
	}

	virtualKeys := make(map[string]Key)
	for name, k := range p.alias {
		if IsVirtualKey(k) {
			virtualKeys[name] = k
		}
	}

	return Config{
		Actions:      p.actions,
		VirtualKeys:  virtualKeys,
		Contexts:     contexts,
		ExitSequence: p.exitSequence,
	}, nil
}

// currentSystemMatches reports whether literal names the OS this process
// is running on, matched case-insensitively against a small set of
// accepted spellings per platform.
func currentSystemMatches(literal string) bool {
	lit := strings.ToLower(strings.TrimSpace(literal))
	for _, name := range currentSystemNames() {
		if name == lit {
			return true
		}
	}
	return false
}

func currentSystemNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"windows"}
	case "darwin":
		return []string{"darwin", "macos", "mac"}
	default:
		return []string{"linux"}
	}
}
