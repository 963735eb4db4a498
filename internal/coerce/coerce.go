// Package coerce converts script argument text into values of the abstract
// kinds declared by member parameters.
//
// Every conversion also yields a cost; lower means a more exact fit. The
// overload resolver sums the costs of a candidate's arguments to rank
// candidates when reordering is requested.
package coerce

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

// Conversion costs.
const (
	CostExact   = 0
	CostWiden   = 1
	CostGeneric = 2
)

// Vars gives access to host variables for array-as-link arguments.
type Vars interface {
	GetVar(name string) (string, error)
	SetVar(name, value string) error
}

// Options select how list parameters are read.
type Options struct {
	// ArrayAsValue parses list arguments as Tcl lists.
	ArrayAsValue bool
	// ArrayAsLink treats list arguments as the name of a host variable that
	// holds a Tcl list; the variable is written back after the call.
	ArrayAsLink bool
	// NullSentinel is the text standing for nil; empty means "null".
	NullSentinel string
}

// Coercer converts argument text. It borrows live values from Handles.
type Coercer struct {
	Handles *handle.Registry
	Vars    Vars
	Options Options
}

// Link is a list argument bound to a host variable.
type Link struct {
	// Index is the parameter position.
	Index int
	Var   string
	// Ref receives the provider's post-call list value.
	Ref *descriptor.Ref
}

// Value is one coerced argument.
type Value struct {
	V    any
	Cost int
	Link *Link
}

func (c *Coercer) null() string {
	if c.Options.NullSentinel != "" {
		return c.Options.NullSentinel
	}
	return config.NullSentinel
}

// Coerce converts text for parameter p at position index.
func (c *Coercer) Coerce(index int, text string, p descriptor.Param) (Value, error) {
	t := p.Type
	if text == c.null() {
		switch t.Kind {
		case descriptor.ValueAny, descriptor.ValueObject, descriptor.ValueList, descriptor.ValueBytes:
			return Value{V: nil, Cost: CostExact}, nil
		}
	}

	switch t.Kind {
	case descriptor.ValueAny:
		if v, ok := c.deref(text); ok {
			return Value{V: v, Cost: CostGeneric}, nil
		}
		return Value{V: text, Cost: CostGeneric}, nil

	case descriptor.ValueString:
		if looksNumeric(text) {
			return Value{V: text, Cost: CostWiden}, nil
		}
		return Value{V: text}, nil

	case descriptor.ValueBool:
		b, err := ParseBool(text)
		if err != nil {
			return Value{}, err
		}
		return Value{V: b}, nil

	case descriptor.ValueInt:
		n, err := strconv.ParseInt(strings.TrimSpace(text), 0, bits(t))
		if err != nil {
			return Value{}, fmt.Errorf("expected integer but got %q", text)
		}
		return Value{V: n}, nil

	case descriptor.ValueUint:
		n, err := strconv.ParseUint(strings.TrimSpace(text), 0, bits(t))
		if err != nil {
			return Value{}, fmt.Errorf("expected unsigned integer but got %q", text)
		}
		return Value{V: n}, nil

	case descriptor.ValueFloat:
		fb := 64
		if t.Bits == 32 {
			fb = 32
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), fb)
		if err != nil {
			return Value{}, fmt.Errorf("expected floating-point number but got %q", text)
		}
		cost := CostExact
		if _, err := strconv.ParseInt(strings.TrimSpace(text), 0, 64); err == nil {
			cost = CostWiden
		}
		return Value{V: f, Cost: cost}, nil

	case descriptor.ValueEnum:
		if t.Enum == nil {
			return Value{}, fmt.Errorf("enum type %s has no values", t)
		}
		n, err := t.Enum.Parse(text)
		if err != nil {
			return Value{}, err
		}
		return Value{V: n}, nil

	case descriptor.ValueBytes:
		if v, ok := c.deref(text); ok {
			if b, ok := v.([]byte); ok {
				return Value{V: b}, nil
			}
		}
		return Value{V: []byte(text), Cost: CostWiden}, nil

	case descriptor.ValueList:
		return c.list(index, text, t)

	case descriptor.ValueObject:
		v, ok := c.deref(text)
		if !ok {
			return Value{}, fmt.Errorf("object %q not found", text)
		}
		if !accepts(t, v) {
			return Value{}, fmt.Errorf("object %q is %T, not compatible with %s", text, v, t)
		}
		return Value{V: v}, nil
	}
	return Value{}, fmt.Errorf("unsupported parameter kind %s", t.Kind)
}

func (c *Coercer) list(index int, text string, t descriptor.TypeRef) (Value, error) {
	elem := descriptor.Param{Type: descriptor.TypeRef{Kind: descriptor.ValueAny}}
	if t.Elem != nil {
		elem.Type = *t.Elem
	}

	switch {
	case c.Options.ArrayAsValue:
		items, cost, err := c.items(index, text, elem)
		if err != nil {
			return Value{}, err
		}
		return Value{V: items, Cost: cost}, nil

	case c.Options.ArrayAsLink:
		if c.Vars == nil {
			return Value{}, fmt.Errorf("no variables available to link %q", text)
		}
		content, err := c.Vars.GetVar(text)
		if err != nil {
			return Value{}, fmt.Errorf("reading linked variable: %w", err)
		}
		items, cost, err := c.items(index, content, elem)
		if err != nil {
			return Value{}, err
		}
		ref := &descriptor.Ref{Value: items}
		return Value{V: ref, Cost: cost, Link: &Link{Index: index, Var: text, Ref: ref}}, nil
	}

	v, ok := c.deref(text)
	if !ok {
		return Value{}, fmt.Errorf("list argument %q must be an object handle; use -arrayasvalue or -arrayaslink", text)
	}
	if !accepts(t, v) {
		return Value{}, fmt.Errorf("object %q is %T, not compatible with %s", text, v, t)
	}
	return Value{V: v}, nil
}

func (c *Coercer) items(index int, text string, elem descriptor.Param) ([]any, int, error) {
	words, err := tcllist.Split(text)
	if err != nil {
		return nil, 0, err
	}
	items := make([]any, len(words))
	total := 0
	for i, w := range words {
		v, err := c.Coerce(index, w, elem)
		if err != nil {
			return nil, 0, fmt.Errorf("element %d: %w", i, err)
		}
		items[i] = v.V
		total = max(total, v.Cost)
	}
	return items, total, nil
}

func (c *Coercer) deref(text string) (any, bool) {
	if c.Handles == nil {
		return nil, false
	}
	e, ok := c.Handles.Lookup(text)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

func accepts(t descriptor.TypeRef, v any) bool {
	if v == nil {
		return true
	}
	if t.Accepts != nil {
		return t.Accepts(v)
	}
	if t.Kind == descriptor.ValueList {
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	}
	return false
}

func bits(t descriptor.TypeRef) int {
	if t.Bits == 0 {
		return 64
	}
	return t.Bits
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, err := strconv.ParseInt(s, 0, 64); err == nil {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// ParseBool accepts the Tcl boolean spellings (case-insensitive): 1/0,
// true/false, yes/no, on/off, and any integer.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "t", "y":
		return true, nil
	case "0", "false", "no", "off", "f", "n":
		return false, nil
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("expected boolean value but got %q", s)
}
