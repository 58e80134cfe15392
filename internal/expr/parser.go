package expr

import (
	"strconv"
	"strings"
	"unicode"
)

// Parser turns expression text into a Value tree. A Parser is single-use:
// Parse consumes it and later calls return an internal error.
type Parser struct {
	src  []rune
	pos  int
	used bool
}

// NewParser returns a parser over src.
func NewParser(src string) *Parser {
	return &Parser{src: []rune(strings.TrimSpace(src))}
}

// Compile parses src with a fresh parser.
func Compile(src string) Value {
	return NewParser(src).Parse()
}

// Parse returns the expression tree, or an error value of kind ErrorParser
// when the text is malformed. Symbols are not resolved.
func (p *Parser) Parse() Value {
	if p.used {
		return Errorf(ErrorInternal, "parser already used")
	}
	p.used = true

	n := len(p.src)
	if n == 0 {
		return Errorf(ErrorParser, "empty expression")
	}
	if p.src[0] != '(' || p.src[n-1] != ')' {
		return Errorf(ErrorParser, "expression must start with '(' and end with ')'")
	}

	v := p.parseExpression()
	if v.IsError() {
		return v
	}
	p.skipSpace()
	if p.pos != n {
		return Errorf(ErrorParser, "unexpected trailing input at offset %d", p.pos)
	}
	return v
}

func (p *Parser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *Parser) parseExpression() Value {
	// caller guarantees src[pos] == '('
	p.pos++
	var items []Value
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Errorf(ErrorParser, "unterminated expression")
		}
		switch p.src[p.pos] {
		case ')':
			p.pos++
			return Expression(items...)
		case '(':
			sub := p.parseExpression()
			if sub.IsError() {
				return sub
			}
			items = append(items, sub)
		default:
			atom := p.parseAtom()
			if atom.IsError() {
				return atom
			}
			items = append(items, atom)
		}
	}
}

func (p *Parser) parseAtom() Value {
	c := p.src[p.pos]
	switch {
	case c == '"' || c == '\'':
		s, errv := p.parseString()
		if errv != nil {
			return *errv
		}
		return String(s)
	case c == '[':
		return p.parseSet()
	case c == ']':
		return Errorf(ErrorParser, "unexpected ']' at offset %d", p.pos)
	}

	start := p.pos
	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	tok := string(p.src[start:p.pos])

	switch tok {
	case "nil":
		return Nil()
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if looksNumeric(tok) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return Errorf(ErrorParser, "invalid number %q", tok)
		}
		return Double(f)
	}
	return Variable(tok)
}

func (p *Parser) parseSet() Value {
	p.pos++ // '['
	var members []string
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Errorf(ErrorParser, "unterminated set")
		}
		c := p.src[p.pos]
		if c == ']' {
			p.pos++
			return StringSet(members...)
		}
		if c != '"' && c != '\'' {
			return Errorf(ErrorParser, "sets may only contain strings (offset %d)", p.pos)
		}
		s, errv := p.parseString()
		if errv != nil {
			return *errv
		}
		members = append(members, s)
	}
}

func (p *Parser) parseString() (string, *Value) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.src) {
				e := Errorf(ErrorParser, "unterminated escape sequence")
				return "", &e
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case '\\', '"', '\'':
				b.WriteRune(esc)
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				e := Errorf(ErrorParser, "invalid escape sequence \\%c", esc)
				return "", &e
			}
		default:
			b.WriteRune(c)
		}
	}
	e := Errorf(ErrorParser, "unterminated string")
	return "", &e
}

func isDelimiter(c rune) bool {
	return unicode.IsSpace(c) || c == '(' || c == ')' || c == '[' || c == ']' || c == '"' || c == '\''
}

func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c >= '0' && c <= '9' {
		return true
	}
	if (c == '-' || c == '+' || c == '.') && len(tok) > 1 {
		n := tok[1]
		return (n >= '0' && n <= '9') || (n == '.' && len(tok) > 2)
	}
	return false
}
