// Package option parses leading "-name ?value?" options off an argument
// list. Options end at the first word not starting with "-", or at "--".
package option

import (
	"sort"
	"strconv"
	"strings"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
)

// Kind says whether an option takes a value.
type Kind uint8

const (
	// Flag options take no value.
	Flag Kind = iota
	// Value options take the next word.
	Value
	// Int options take the next word, which must be an integer.
	Int
)

// Spec declares one option.
type Spec struct {
	Name string
	Kind Kind
}

// Set is a table of accepted options.
type Set struct {
	specs map[string]Spec
	names []string
}

// NewSet builds a table; names include the leading "-".
func NewSet(specs ...Spec) *Set {
	s := &Set{specs: make(map[string]Spec, len(specs))}
	for _, sp := range specs {
		s.specs[sp.Name] = sp
		s.names = append(s.names, sp.Name)
	}
	sort.Strings(s.names)
	return s
}

// Flags is a shorthand for a list of flag specs.
func Flags(names ...string) []Spec {
	out := make([]Spec, len(names))
	for i, n := range names {
		out[i] = Spec{Name: n, Kind: Flag}
	}
	return out
}

// Values is a shorthand for a list of value specs.
func Values(names ...string) []Spec {
	out := make([]Spec, len(names))
	for i, n := range names {
		out[i] = Spec{Name: n, Kind: Value}
	}
	return out
}

// Merge returns a set accepting the options of all sets and extra specs.
func Merge(sets []*Set, extra ...Spec) *Set {
	var all []Spec
	for _, s := range sets {
		for _, n := range s.names {
			all = append(all, s.specs[n])
		}
	}
	return NewSet(append(all, extra...)...)
}

// Names lists the accepted option names in sorted order.
func (s *Set) Names() []string { return s.names }

// Bag holds parsed options.
type Bag struct {
	values map[string]string
}

// Has reports whether the option was given.
func (b Bag) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// String returns the value of a value option.
func (b Bag) String(name string) (string, bool) {
	v, ok := b.values[name]
	return v, ok
}

// StringOr returns the option value or def.
func (b Bag) StringOr(name, def string) string {
	if v, ok := b.values[name]; ok {
		return v
	}
	return def
}

// Int returns the value of an Int option; Parse has already validated it.
func (b Bag) Int(name string) (int, bool) {
	v, ok := b.values[name]
	if !ok {
		return 0, false
	}
	n, _ := strconv.Atoi(v)
	return n, true
}

// Without returns a copy of the bag lacking the named options.
func (b Bag) Without(names ...string) Bag {
	out := Bag{values: make(map[string]string, len(b.values))}
	for k, v := range b.values {
		out.values[k] = v
	}
	for _, n := range names {
		delete(out.values, n)
	}
	return out
}

// Set records an option, as if it had been given.
func (b *Bag) Set(name, value string) {
	if b.values == nil {
		b.values = make(map[string]string)
	}
	b.values[name] = value
}

// Parse consumes leading options and returns them with the remaining words.
func (s *Set) Parse(args []string) (Bag, []string, error) {
	bag := Bag{values: make(map[string]string)}
	i := 0
	for i < len(args) {
		arg := args[i]
		if arg == "--" {
			i++
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			break
		}
		sp, ok := s.specs[arg]
		if !ok {
			return Bag{}, nil, bridgeerr.Argument("bad option %q: must be %s", arg, s.must())
		}
		i++
		if sp.Kind == Flag {
			bag.values[arg] = ""
			continue
		}
		if i >= len(args) {
			return Bag{}, nil, bridgeerr.Argument("value for %q not specified", arg)
		}
		val := args[i]
		if sp.Kind == Int {
			if _, err := strconv.Atoi(val); err != nil {
				return Bag{}, nil, bridgeerr.Argument("expected integer value for %q but got %q", arg, val)
			}
		}
		bag.values[arg] = val
		i++
	}
	return bag, args[i:], nil
}

func (s *Set) must() string {
	switch len(s.names) {
	case 0:
		return "no options"
	case 1:
		return s.names[0]
	}
	return strings.Join(s.names[:len(s.names)-1], ", ") + " or " + s.names[len(s.names)-1]
}
