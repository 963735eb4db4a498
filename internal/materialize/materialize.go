// Package materialize decides how a foreign value is handed back to a
// script: as inline text, or as the name of a handle that owns it.
package materialize

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

// AliasMode is the verb an alias command re-enters.
type AliasMode uint8

const (
	AliasInvoke AliasMode = iota
	AliasInvokeAll
	AliasInvokeRaw
)

func (m AliasMode) String() string {
	switch m {
	case AliasInvokeAll:
		return "invokeall"
	case AliasInvokeRaw:
		return "invokeraw"
	}
	return "invoke"
}

// AliasFunc registers a forwarding command for a handle and returns the
// command name.
type AliasFunc func(e handle.Entry, mode AliasMode) (string, error)

// Options is the materialization policy of one request.
type Options struct {
	// ToString renders any value inline.
	ToString bool
	// NoInline stores primitive values in handles too.
	NoInline bool
	// NoCreate requires the value to already have a handle.
	NoCreate bool

	Alias    bool
	AliasAll bool
	AliasRaw bool

	// Dispose marks new handles for removal once their reference count drops
	// back to zero; NoDispose keeps the value alive when the handle goes.
	Dispose   bool
	NoDispose bool
	Temporary bool

	// ObjectName is an explicit name for a new handle.
	ObjectName string
}

func (o Options) aliasMode() AliasMode {
	switch {
	case o.AliasRaw:
		return AliasInvokeRaw
	case o.AliasAll:
		return AliasInvokeAll
	}
	return AliasInvoke
}

func (o Options) wantsAlias() bool { return o.Alias || o.AliasAll || o.AliasRaw }

func (o Options) flags() handle.Flags {
	var f handle.Flags
	if o.Dispose {
		f |= handle.FlagAutoDispose
	}
	if o.NoDispose {
		f |= handle.FlagNoDispose
	}
	if o.Temporary {
		f |= handle.FlagTemporary
	}
	return f
}

// Value is a materialized result.
type Value struct {
	Text string
	// Handle is set when Text names a handle.
	Handle  string
	Created bool
}

// Materializer turns values into script text.
type Materializer struct {
	Handles   *handle.Registry
	Providers provider.Set
	// Null is the text for nil; empty means "null".
	Null  string
	Alias AliasFunc
}

func (m *Materializer) null() string {
	if m.Null != "" {
		return m.Null
	}
	return config.NullSentinel
}

// Materialize renders v. The declared result type, when known, supplies an
// enum table for integer results.
func (m *Materializer) Materialize(v any, declared *descriptor.TypeRef, opts Options) (Value, error) {
	if isNil(v) {
		return Value{Text: m.null()}, nil
	}
	if opts.ToString {
		return Value{Text: m.String(v, declared)}, nil
	}
	if !opts.NoInline {
		if s, ok := m.Inline(v, declared); ok {
			return Value{Text: s}, nil
		}
	}

	if e, ok := m.Handles.FindValue(v); ok {
		if f := opts.flags() &^ handle.CreationFlags; f != 0 {
			if err := m.Handles.SetFlags(e.Name, f); err != nil {
				return Value{}, err
			}
		}
		if err := m.alias(e, opts); err != nil {
			return Value{}, err
		}
		return Value{Text: e.Name, Handle: e.Name}, nil
	}
	if opts.NoCreate {
		return Value{}, &bridgeerr.NotFoundError{What: "object", Name: fmt.Sprintf("%T", v), Detail: "no handle exists and creation is disabled"}
	}

	e, err := m.Handles.Create(v, m.Providers.TypeOf(v), handle.CreateOptions{Name: opts.ObjectName, Flags: opts.flags()})
	if err != nil {
		return Value{}, err
	}
	if err := m.alias(e, opts); err != nil {
		return Value{}, err
	}
	return Value{Text: e.Name, Handle: e.Name, Created: true}, nil
}

func (m *Materializer) alias(e handle.Entry, opts Options) error {
	if !opts.wantsAlias() || e.AliasName != "" {
		return nil
	}
	if m.Alias == nil {
		return bridgeerr.Argument("aliases are not supported by this host")
	}
	cmd, err := m.Alias(e, opts.aliasMode())
	if err != nil {
		return fmt.Errorf("alias for %s: %w", e.Name, err)
	}
	return m.Handles.SetAlias(e.Name, cmd)
}

// Inline renders primitive values (including named types over primitive
// kinds) and reports false for anything else.
func (m *Materializer) Inline(v any, declared *descriptor.TypeRef) (string, bool) {
	if isNil(v) {
		return m.null(), true
	}
	rv := reflect.ValueOf(v)
	if enum := m.enumFor(v, declared); enum != nil {
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return enum.Format(rv.Int()), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return enum.Format(int64(rv.Uint())), true
		}
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	}
	return "", false
}

// String renders any value as text: primitives inline, lists as Tcl lists,
// everything else through fmt.Stringer, error or %v.
func (m *Materializer) String(v any, declared *descriptor.TypeRef) string {
	if s, ok := m.Inline(v, declared); ok {
		return s
	}
	switch x := v.(type) {
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case []byte:
		return string(x)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		var elem *descriptor.TypeRef
		if declared != nil {
			elem = declared.Elem
		}
		words := make([]string, rv.Len())
		for i := range words {
			words[i] = m.String(rv.Index(i).Interface(), elem)
		}
		return tcllist.Join(words)
	}
	return fmt.Sprintf("%v", v)
}

func (m *Materializer) enumFor(v any, declared *descriptor.TypeRef) *descriptor.Enum {
	if declared != nil && declared.Kind == descriptor.ValueEnum && declared.Enum != nil {
		return declared.Enum
	}
	if t := m.Providers.TypeOf(v); t != nil && t.Enum != nil {
		return t.Enum
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
