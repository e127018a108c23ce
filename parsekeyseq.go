package keymapper

import "strings"

// templateMode selects which of the two surface-syntax lowerings a parse
// run performs: the same grammar produces different event states
// depending on whether it is destined for an input template or an output
// template.
type templateMode int

const (
	modeInput templateMode = iota
	modeOutput
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNot     // !
	tokRelease // ^
	tokLParen  // (
	tokRParen  // )
	tokLBrace  // {
	tokRBrace  // }
)

type token struct {
	kind tokenKind
	text string
}

func tokenizeKeyExpression(expr string) []token {
	var toks []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '!':
			toks = append(toks, token{tokNot, "!"})
			i++
		case c == '^':
			toks = append(toks, token{tokRelease, "^"})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '{':
			toks = append(toks, token{tokLBrace, "{"})
			i++
		case c == '}':
			toks = append(toks, token{tokRBrace, "}"})
			i++
		default:
			start := i
			for i < len(expr) {
				switch expr[i] {
				case ' ', '\t', '!', '^', '(', ')', '{', '}':
					goto identDone
				}
				i++
			}
		identDone:
			toks = append(toks, token{tokIdent, expr[start:i]})
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks
}

type keySeqParser struct {
	toks    []token
	pos     int
	mode    templateMode
	aliases map[string]Key
	depth   int
	sawNot  bool
	sawRel  bool
}

func (p *keySeqParser) peek() token { return p.toks[p.pos] }

func (p *keySeqParser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *keySeqParser) resolve(name string) (Key, error) {
	if k, ok := LookupKey(name, p.aliases); ok {
		return k, nil
	}
	return None, ErrUnknownIdentifier
}

// closeState is the state used to close a term this mode opened: UpAsync
// for input templates, Up for output templates.
func (p *keySeqParser) closeState() KeyState {
	if p.mode == modeInput {
		return UpAsync
	}
	return Up
}

// parseSequence parses a run of terms up to a tokRBrace, tokRParen, or
// EOF, returning the lowered events plus the keys this level left open
// (pressed but not yet closed) in the order they were opened.
func (p *keySeqParser) parseSequence() (KeySequence, []Key, error) {
	var out KeySequence
	var open []Key

	for {
		switch p.peek().kind {
		case tokEOF, tokRBrace, tokRParen:
			return out, open, nil

		case tokNot:
			p.advance()
			if p.depth > 0 {
				return nil, nil, ErrNotInGroup
			}
			if p.peek().kind != tokIdent {
				return nil, nil, ErrDanglingNot
			}
			name := p.advance().text
			if p.peek().kind == tokLBrace {
				return nil, nil, ErrNotInGroup
			}
			key, err := p.resolve(name)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, NewKeyEvent(key, Not))

		case tokRelease:
			p.advance()
			if p.mode != modeOutput {
				return nil, nil, ErrOutputOnReleaseInGroup
			}
			if p.depth > 0 {
				return nil, nil, ErrOutputOnReleaseInGroup
			}
			if p.sawRel {
				return nil, nil, ErrOutputOnReleaseRepeated
			}
			p.sawRel = true
			out = append(out, NewKeyEvent(None, OutputOnRelease))

		case tokIdent:
			name := p.advance().text
			key, err := p.resolve(name)
			if err != nil {
				return nil, nil, err
			}
			if p.peek().kind == tokLBrace {
				p.advance()
				p.depth++
				innerEvents, innerOpen, err := p.parseSequence()
				p.depth--
				if err != nil {
					return nil, nil, err
				}
				if p.peek().kind != tokRBrace {
					return nil, nil, ErrUnmatchedBracket
				}
				p.advance()
				out = append(out, NewKeyEvent(key, Down))
				out = append(out, innerEvents...)
				for i := len(innerOpen) - 1; i >= 0; i-- {
					out = append(out, NewKeyEvent(innerOpen[i], p.closeState()))
				}
				out = append(out, NewKeyEvent(key, p.closeState()))
			} else {
				out = append(out, NewKeyEvent(key, Down))
				// A lone key that is the entire top-level output ("K" with
				// nothing else, e.g. a plain "A >> B" remap) stays down:
				// Stage.releaseTriggered emits its Up once the triggering
				// input releases. Anything else in a sequence ("A B")
				// releases immediately so each tap is self-contained.
				sole := p.mode == modeOutput && p.depth == 0 && len(out) == 1 && p.peek().kind == tokEOF
				if !sole {
					out = append(out, NewKeyEvent(key, p.closeState()))
				}
			}

		case tokLParen:
			p.advance()
			var members []Key
			for p.peek().kind == tokIdent {
				name := p.advance().text
				key, err := p.resolve(name)
				if err != nil {
					return nil, nil, err
				}
				members = append(members, key)
			}
			switch p.peek().kind {
			case tokNot:
				return nil, nil, ErrNotInGroup
			case tokRelease:
				return nil, nil, ErrOutputOnReleaseInGroup
			}
			if p.peek().kind != tokRParen {
				return nil, nil, ErrUnmatchedBracket
			}
			p.advance()
			if len(members) == 0 {
				return nil, nil, ErrDanglingHold
			}

			isFirst := len(out) == 0

			if p.mode == modeInput {
				for _, k := range members {
					out = append(out, NewKeyEvent(k, DownAsync))
				}
			}
			for _, k := range members {
				out = append(out, NewKeyEvent(k, Down))
			}

			if p.peek().kind == tokLBrace {
				p.advance()
				p.depth++
				innerEvents, innerOpen, err := p.parseSequence()
				p.depth--
				if err != nil {
					return nil, nil, err
				}
				if p.peek().kind != tokRBrace {
					return nil, nil, ErrUnmatchedBracket
				}
				p.advance()
				out = append(out, innerEvents...)
				for i := len(innerOpen) - 1; i >= 0; i-- {
					out = append(out, NewKeyEvent(innerOpen[i], p.closeState()))
				}
				for i := len(members) - 1; i >= 0; i-- {
					out = append(out, NewKeyEvent(members[i], p.closeState()))
				}
			} else if p.mode == modeInput {
				open = append(open, members...)
			} else if isFirst {
				open = append(open, members...)
			} else {
				for i := len(members) - 1; i >= 0; i-- {
					out = append(out, NewKeyEvent(members[i], Up))
				}
			}

		case tokLBrace:
			return nil, nil, ErrDanglingHold
		}
	}
}

// ParseInputExpression lowers the surface syntax of an input template
// ("A", "A B", "A{B}", "(A B)", "!K") to the KeySequence MatchKeySequence
// consumes.
func ParseInputExpression(expr string, aliases map[string]Key) (KeySequence, error) {
	return parseKeyExpression(expr, modeInput, aliases)
}

// ParseOutputExpression lowers the surface syntax of an output template,
// including "^" (output-on-release split), to the KeySequence Stage
// applies on a match.
func ParseOutputExpression(expr string, aliases map[string]Key) (KeySequence, error) {
	return parseKeyExpression(expr, modeOutput, aliases)
}

func parseKeyExpression(expr string, mode templateMode, aliases map[string]Key) (KeySequence, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	p := &keySeqParser{toks: tokenizeKeyExpression(expr), mode: mode, aliases: aliases}
	seq, _, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, ErrUnmatchedBracket
	}
	return seq, nil
}
