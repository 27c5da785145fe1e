package grammar

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Compile parses gbnf (a GBNF subset: `name ::= alt1 | alt2 ...` rules,
// quoted literals, [char classes], rule references, grouping with parens,
// and ?/*/+ quantifiers) and returns a Grammar rooted at root.
//
// Supported grammar text, one rule per line:
//
//	root   ::= "{" ws "\"tool\"" ws ":" ws string "}"
//	string ::= "\"" char* "\""
//	char   ::= [^"\\] | "\\" .
//	ws     ::= [ \t\n]*
//
// This covers the tool-call JSON framing spec §4.3 describes; it is not a
// full GBNF implementation (no numeric repetition counts {m,n}).
func Compile(gbnf, root string) (*Grammar, error) {
	p := &parser{src: gbnf, rules: make(map[string]Alternation)}
	if err := p.parseRules(); err != nil {
		return nil, err
	}
	if root == "" {
		root = "root"
	}
	if _, ok := p.rules[root]; !ok {
		return nil, fmt.Errorf("grammar: root rule %q not defined", root)
	}
	return &Grammar{Rules: p.rules, Root: root}, nil
}

type parser struct {
	src     string
	pos     int
	rules   map[string]Alternation
	synthID int
}

func (p *parser) parseRules() error {
	for {
		p.skipLineWhitespaceAndComments()
		if p.atEnd() {
			return nil
		}
		name, err := p.parseIdent()
		if err != nil {
			return err
		}
		p.skipInlineSpace()
		if !p.consumeLiteralPrefix("::=") {
			return fmt.Errorf("grammar: expected '::=' after rule name %q", name)
		}
		alt, err := p.parseAlternation()
		if err != nil {
			return err
		}
		p.rules[name] = alt
	}
}

func (p *parser) parseAlternation() (Alternation, error) {
	var alt Alternation
	seq, err := p.parseSequence()
	if err != nil {
		return nil, err
	}
	alt = append(alt, seq)
	for {
		p.skipInlineSpace()
		if p.peekByte() == '|' {
			p.pos++
			seq, err := p.parseSequence()
			if err != nil {
				return nil, err
			}
			alt = append(alt, seq)
			continue
		}
		break
	}
	return alt, nil
}

// parseSequence consumes elements until '|', ')', newline, or end of input.
func (p *parser) parseSequence() (Sequence, error) {
	var seq Sequence
	for {
		p.skipInlineSpaceNoNewline()
		if p.atEnd() {
			break
		}
		c := p.peekByte()
		if c == '|' || c == ')' || c == '\n' || c == '\r' {
			break
		}
		elem, err := p.parseQuantified()
		if err != nil {
			return nil, err
		}
		seq = append(seq, elem...)
	}
	return seq, nil
}

// parseQuantified parses one atom and applies a trailing ?, *, or + by
// desugaring into synthetic rules, returning the (possibly single-element)
// expansion to splice into the caller's sequence.
func (p *parser) parseQuantified() (Sequence, error) {
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	p.skipInlineSpaceNoNewline()
	switch p.peekByte() {
	case '?':
		p.pos++
		name := p.synthName()
		p.rules[name] = Alternation{Sequence{atom}, Sequence{}}
		return Sequence{RuleRef(name)}, nil
	case '*':
		p.pos++
		name := p.synthName()
		p.rules[name] = Alternation{
			Sequence{atom, RuleRef(name)},
			Sequence{},
		}
		return Sequence{RuleRef(name)}, nil
	case '+':
		p.pos++
		name := p.synthName()
		p.rules[name] = Alternation{
			Sequence{atom, RuleRef(name)},
			Sequence{atom},
		}
		return Sequence{RuleRef(name)}, nil
	}
	return Sequence{atom}, nil
}

func (p *parser) parseAtom() (Elem, error) {
	p.skipInlineSpace()
	if p.atEnd() {
		return nil, fmt.Errorf("grammar: unexpected end of input")
	}
	switch c := p.peekByte(); {
	case c == '"':
		return p.parseLiteral()
	case c == '[':
		return p.parseCharClass()
	case c == '(':
		p.pos++
		alt, err := p.parseAlternation()
		if err != nil {
			return nil, err
		}
		p.skipInlineSpace()
		if p.peekByte() != ')' {
			return nil, fmt.Errorf("grammar: expected ')'")
		}
		p.pos++
		name := p.synthName()
		p.rules[name] = alt
		return RuleRef(name), nil
	case c == '.':
		p.pos++
		return CharClass{Ranges: []CharRange{{0, utf8.MaxRune}}}, nil
	default:
		id, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return RuleRef(id), nil
	}
}

func (p *parser) parseLiteral() (Elem, error) {
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.atEnd() {
			return nil, fmt.Errorf("grammar: unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return Literal(b.String()), nil
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			b.WriteByte(unescape(p.src[p.pos]))
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseCharClass() (Elem, error) {
	p.pos++ // consume '['
	cc := CharClass{}
	if p.peekByte() == '^' {
		cc.Negate = true
		p.pos++
	}
	for {
		if p.atEnd() {
			return nil, fmt.Errorf("grammar: unterminated char class")
		}
		if p.peekByte() == ']' {
			p.pos++
			return cc, nil
		}
		lo, err := p.parseClassRune()
		if err != nil {
			return nil, err
		}
		hi := lo
		if p.peekByte() == '-' && p.pos+1 < len(p.src) && p.src[p.pos+1] != ']' {
			p.pos++
			hi, err = p.parseClassRune()
			if err != nil {
				return nil, err
			}
		}
		cc.Ranges = append(cc.Ranges, CharRange{Lo: lo, Hi: hi})
	}
}

func (p *parser) parseClassRune() (rune, error) {
	if p.atEnd() {
		return 0, fmt.Errorf("grammar: unterminated char class")
	}
	if p.src[p.pos] == '\\' && p.pos+1 < len(p.src) {
		p.pos++
		r := rune(unescape(p.src[p.pos]))
		p.pos++
		return r, nil
	}
	r, size := utf8.DecodeRuneInString(p.src[p.pos:])
	p.pos += size
	return r, nil
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func (p *parser) parseIdent() (string, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("grammar: expected identifier at offset %d", start)
	}
	return p.src[start:p.pos], nil
}

func (p *parser) synthName() string {
	p.synthID++
	return fmt.Sprintf("__anon%d", p.synthID)
}

func (p *parser) consumeLiteralPrefix(s string) bool {
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) atEnd() bool { return p.pos >= len(p.src) }

func (p *parser) peekByte() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipInlineSpace() {
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		break
	}
}

// skipInlineSpaceNoNewline is used right before checking for a quantifier
// suffix, so a newline ending the sequence isn't swallowed.
func (p *parser) skipInlineSpaceNoNewline() {
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' {
			p.pos++
			continue
		}
		break
	}
}

func (p *parser) skipLineWhitespaceAndComments() {
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		if c == '#' {
			for !p.atEnd() && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}
