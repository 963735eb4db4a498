// Package tcllist converts between strings and Tcl-style lists.
//
// Lists are whitespace separated words. A word may be grouped with braces
// (nested braces balance, no substitution) or with double quotes (backslash
// escapes are processed). Join produces a canonical string that Split reads
// back to the same elements.
package tcllist

import (
	"fmt"
	"strings"
)

// Split parses s as a list.
func Split(s string) ([]string, error) {
	p := &parser{input: s}
	var out []string
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return out, nil
		}
		elem, err := p.word()
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
}

// MustSplit is Split for inputs known to be well formed.
func MustSplit(s string) []string {
	out, err := Split(s)
	if err != nil {
		panic(err)
	}
	return out
}

type parser struct {
	input string
	pos   int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *parser) word() (string, error) {
	switch p.input[p.pos] {
	case '{':
		return p.braced()
	case '"':
		return p.quoted()
	default:
		return p.bare(), nil
	}
}

func (p *parser) braced() (string, error) {
	start := p.pos
	depth := 0
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '\\':
			p.pos++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				body := p.input[start+1 : p.pos]
				p.pos++
				if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
					return "", fmt.Errorf("list element in braces followed by %q instead of space", p.input[p.pos:p.pos+1])
				}
				return body, nil
			}
		}
		p.pos++
	}
	return "", fmt.Errorf("unmatched open brace in list")
}

func (p *parser) quoted() (string, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
				return "", fmt.Errorf("list element in quotes followed by %q instead of space", p.input[p.pos:p.pos+1])
			}
			return sb.String(), nil
		case '\\':
			p.escape(&sb)
			continue
		}
		sb.WriteByte(c)
		p.pos++
	}
	return "", fmt.Errorf("unmatched open quote in list")
}

func (p *parser) bare() string {
	var sb strings.Builder
	for p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		if p.input[p.pos] == '\\' {
			p.escape(&sb)
			continue
		}
		sb.WriteByte(p.input[p.pos])
		p.pos++
	}
	return sb.String()
}

// escape consumes a backslash sequence starting at p.pos.
func (p *parser) escape(sb *strings.Builder) {
	p.pos++
	if p.pos >= len(p.input) {
		sb.WriteByte('\\')
		return
	}
	c := p.input[p.pos]
	p.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'v':
		sb.WriteByte('\v')
	case 'f':
		sb.WriteByte('\f')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	default:
		sb.WriteByte(c)
	}
}

// Join formats elems as a canonical list.
func Join(elems []string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = Quote(e)
	}
	return strings.Join(parts, " ")
}

// Quote formats a single element so that Split returns it unchanged.
func Quote(s string) string {
	if s == "" {
		return "{}"
	}
	if !needsQuoting(s) {
		return s
	}
	if canBrace(s) {
		return "{" + s + "}"
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\v':
			sb.WriteString(`\v`)
		case '\f':
			sb.WriteString(`\f`)
		case ' ', '{', '}', '"', '\\', '[', ']', '$', ';':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func needsQuoting(s string) bool {
	if s[0] == '#' {
		return true
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f', '{', '}', '"', '\\', '[', ']', '$', ';':
			return true
		}
	}
	return false
}

// canBrace reports whether s can be wrapped in braces verbatim: braces must
// balance, never go negative, and s must not end in an odd backslash.
func canBrace(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 == len(s) {
				return false
			}
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
