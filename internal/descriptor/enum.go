package descriptor

import (
	"fmt"
	"strconv"
	"strings"
)

// Enum is the value table of an enumeration type. Flags enums accept
// OR-combined names.
type Enum struct {
	Name   string
	Flags  bool
	Values []EnumValue
}

// EnumValue is one named constant.
type EnumValue struct {
	Name  string
	Value int64
}

// Parse converts text to an enum value. Names are matched exactly first and
// case-insensitively second; integers are accepted verbatim. Flags enums
// accept several tokens separated by "|", ",", "+" or spaces.
func (e *Enum) Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value for enum %s", e.Name)
	}
	if !e.Flags {
		return e.parseOne(s)
	}
	var v int64
	for _, tok := range splitFlags(s) {
		n, err := e.parseOne(tok)
		if err != nil {
			return 0, err
		}
		v |= n
	}
	return v, nil
}

func (e *Enum) parseOne(tok string) (int64, error) {
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return n, nil
	}
	for _, ev := range e.Values {
		if ev.Name == tok {
			return ev.Value, nil
		}
	}
	found := -1
	for i, ev := range e.Values {
		if strings.EqualFold(ev.Name, tok) {
			if found >= 0 {
				return 0, fmt.Errorf("ambiguous value %q for enum %s", tok, e.Name)
			}
			found = i
		}
	}
	if found < 0 {
		return 0, fmt.Errorf("bad value %q for enum %s, must be %s", tok, e.Name, e.names())
	}
	return e.Values[found].Value, nil
}

func (e *Enum) names() string {
	names := make([]string, len(e.Values))
	for i, ev := range e.Values {
		names[i] = ev.Name
	}
	return strings.Join(names, ", ")
}

// Format renders v by name. Flags are decomposed in declaration order; bits
// not covered by any name are appended numerically.
func (e *Enum) Format(v int64) string {
	for _, ev := range e.Values {
		if ev.Value == v {
			return ev.Name
		}
	}
	if !e.Flags || v == 0 {
		return strconv.FormatInt(v, 10)
	}
	var parts []string
	rest := v
	for _, ev := range e.Values {
		if ev.Value != 0 && ev.Value&rest == ev.Value {
			parts = append(parts, ev.Name)
			rest &^= ev.Value
		}
	}
	if rest != 0 {
		parts = append(parts, strconv.FormatInt(rest, 10))
	}
	return strings.Join(parts, "|")
}
