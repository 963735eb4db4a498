package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/hostbridge/internal/object"
)

var errIncomplete = errors.New("missing close-brace, close-bracket or quote")

// splitCommands cuts a script into command texts at newlines and semicolons
// outside braces, brackets and quotes. Comment lines are dropped.
func splitCommands(script string) ([]string, error) {
	var out []string
	start := 0
	braces, brackets := 0, 0
	quoted := false
	atStart := true

	for i := 0; i < len(script); i++ {
		c := script[i]
		if atStart {
			if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ';' {
				start = i + 1
				continue
			}
			if c == '#' {
				for i < len(script) && script[i] != '\n' {
					if script[i] == '\\' {
						i++
					}
					i++
				}
				start = i + 1
				continue
			}
			atStart = false
		}
		switch c {
		case '\\':
			i++
		case '{':
			if !quoted {
				braces++
			}
		case '}':
			if !quoted && braces > 0 {
				braces--
			}
		case '[':
			if braces == 0 {
				brackets++
			}
		case ']':
			if braces == 0 && brackets > 0 {
				brackets--
			}
		case '"':
			if braces == 0 && brackets == 0 {
				quoted = !quoted
			}
		case '\n', ';':
			if braces == 0 && brackets == 0 && !quoted {
				if cmd := strings.TrimSpace(script[start:i]); cmd != "" {
					out = append(out, cmd)
				}
				start = i + 1
				atStart = true
			}
		}
	}
	if braces > 0 || brackets > 0 || quoted {
		return nil, errIncomplete
	}
	if start < len(script) {
		if cmd := strings.TrimSpace(script[start:]); cmd != "" {
			out = append(out, cmd)
		}
	}
	return out, nil
}

// Complete reports whether script has balanced braces, brackets and quotes,
// so an interactive reader knows when to stop collecting lines.
func Complete(script string) bool {
	_, err := splitCommands(script)
	return err == nil
}

// wordParser splits one command into words, performing variable, command
// and backslash substitution outside braces.
type wordParser struct {
	sh    *Shell
	ctx   context.Context
	input string
	pos   int
}

func (p *wordParser) words() ([]string, error) {
	var out []string
	for {
		for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
			p.pos++
		}
		if p.pos >= len(p.input) {
			return out, nil
		}
		var (
			w   string
			err error
		)
		switch p.input[p.pos] {
		case '{':
			w, err = p.braced()
		case '"':
			w, err = p.quoted()
		default:
			w, err = p.bare()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (p *wordParser) braced() (string, error) {
	depth := 0
	start := p.pos + 1
	for i := p.pos; i < len(p.input); i++ {
		switch p.input[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				p.pos = i + 1
				if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
					return "", fmt.Errorf("extra characters after close-brace")
				}
				return p.input[start:i], nil
			}
		}
	}
	return "", errIncomplete
}

func (p *wordParser) quoted() (string, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '"' {
			p.pos++
			if p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
				return "", fmt.Errorf("extra characters after close-quote")
			}
			return sb.String(), nil
		}
		if err := p.substitute(&sb); err != nil {
			return "", err
		}
	}
	return "", errIncomplete
}

func (p *wordParser) bare() (string, error) {
	var sb strings.Builder
	for p.pos < len(p.input) && !isSpace(p.input[p.pos]) {
		if err := p.substitute(&sb); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// substitute consumes one character or substitution at p.pos.
func (p *wordParser) substitute(sb *strings.Builder) error {
	c := p.input[p.pos]
	switch c {
	case '\\':
		p.escape(sb)
	case '$':
		return p.variable(sb)
	case '[':
		return p.command(sb)
	default:
		sb.WriteByte(c)
		p.pos++
	}
	return nil
}

func (p *wordParser) escape(sb *strings.Builder) {
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
	case '\n':
		sb.WriteByte(' ')
	default:
		sb.WriteByte(c)
	}
}

func (p *wordParser) variable(sb *strings.Builder) error {
	p.pos++
	var name string
	if p.pos < len(p.input) && p.input[p.pos] == '{' {
		end := strings.IndexByte(p.input[p.pos:], '}')
		if end < 0 {
			return errIncomplete
		}
		name = p.input[p.pos+1 : p.pos+end]
		p.pos += end + 1
	} else {
		start := p.pos
		for p.pos < len(p.input) && isNameChar(p.input[p.pos]) {
			p.pos++
		}
		name = p.input[start:p.pos]
	}
	if name == "" {
		sb.WriteByte('$')
		return nil
	}
	v, err := p.sh.GetVar(name)
	if err != nil {
		return err
	}
	sb.WriteString(v)
	return nil
}

func isNameChar(c byte) bool {
	return c == '_' || c == ':' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (p *wordParser) command(sb *strings.Builder) error {
	depth := 0
	braces := 0
	for i := p.pos; i < len(p.input); i++ {
		switch p.input[i] {
		case '\\':
			i++
		case '{':
			braces++
		case '}':
			if braces > 0 {
				braces--
			}
		case '[':
			if braces == 0 {
				depth++
			}
		case ']':
			if braces > 0 {
				continue
			}
			depth--
			if depth == 0 {
				body := p.input[p.pos+1 : i]
				p.pos = i + 1
				code, res, err := p.sh.eval(p.ctx, body)
				if err != nil {
					return err
				}
				if code != object.Ok {
					return fmt.Errorf("unexpected %s inside command substitution", code)
				}
				sb.WriteString(res)
				return nil
			}
		}
	}
	return errIncomplete
}
