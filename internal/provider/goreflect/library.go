// Package goreflect publishes Go types as foreign types through reflection.
//
// A Library is populated with Define: the exported fields and methods of
// the sample value's type become members, and explicit constructors,
// static functions, extra methods and properties can be attached. Pointer
// parameters to basic kinds (*int, *string, ...) are by-ref outputs.
package goreflect

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
)

// Func is an extra method or static function.
type Func struct {
	Name string
	// Fn is func(recv T, args...) for instance methods and func(args...)
	// for static ones.
	Fn     any
	Static bool
}

// Property is a getter/setter pair exposed as one property.
type Property struct {
	Name string
	// Get is func(T) V; Set is func(T, V). Either may be nil.
	Get any
	Set any
}

// TypeDef describes one Go type to publish.
type TypeDef struct {
	Namespace string
	// Name defaults to the Go type name.
	Name string
	// Sample is any value of the type, typically a typed nil pointer.
	Sample any
	// Constructors are funcs returning T or (T, error).
	Constructors []any
	Funcs        []Func
	Properties   []Property
	// Enum makes the type an enumeration; its values must be integers.
	Enum *descriptor.Enum
	// NoFields hides the struct fields.
	NoFields bool
}

// Library is a goreflect provider.
type Library struct {
	name string
	auto bool

	mu      sync.RWMutex
	types   []*descriptor.Type
	byType  map[reflect.Type]*descriptor.Type
	objects map[string]any
}

// Option configures a Library.
type Option func(*Library)

// WithAutoDefine publishes unknown Go types on first sight under their
// package name.
func WithAutoDefine() Option {
	return func(l *Library) { l.auto = true }
}

// New creates an empty library.
func New(name string, opts ...Option) *Library {
	l := &Library{
		name:    name,
		byType:  make(map[reflect.Type]*descriptor.Type),
		objects: make(map[string]any),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) Name() string { return l.name }

func (l *Library) Types() []*descriptor.Type {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.types)
}

// TypeOf returns the descriptor of v's dynamic type.
func (l *Library) TypeOf(v any) *descriptor.Type {
	if v == nil {
		return nil
	}
	rt := reflect.TypeOf(v)
	l.mu.RLock()
	t, ok := l.byType[rt]
	l.mu.RUnlock()
	if ok {
		return t
	}
	if !l.auto || !autoDefinable(rt) {
		return nil
	}
	t, err := l.Define(TypeDef{Namespace: packageName(rt), Sample: v})
	if err != nil {
		return nil
	}
	return t
}

// Define publishes a type. Enumerations used as parameter types must be
// defined before the types that use them.
func (l *Library) Define(def TypeDef) (*descriptor.Type, error) {
	if def.Sample == nil {
		return nil, fmt.Errorf("define %s: sample value is required", def.Name)
	}
	rt := reflect.TypeOf(def.Sample)

	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.byType[rt]; ok {
		return t, nil
	}

	name := def.Name
	if name == "" {
		name = typeName(rt)
	}
	t := &descriptor.Type{
		Namespace: def.Namespace,
		Name:      name,
		Enum:      def.Enum,
		Accepts:   func(v any) bool { return v != nil && reflect.TypeOf(v) == rt },
	}
	// Registered before members are built so self-references resolve.
	l.byType[rt] = t
	l.types = append(l.types, t)

	b := builder{lib: l, full: t.FullName()}
	for _, c := range def.Constructors {
		m, err := b.function(name, c, descriptor.KindConstructor, true, false)
		if err != nil {
			l.undefine(rt)
			return nil, fmt.Errorf("define %s: constructor: %w", name, err)
		}
		t.Members = append(t.Members, m)
	}
	if !def.NoFields {
		t.Members = append(t.Members, b.fields(rt)...)
	}
	t.Members = append(t.Members, b.methods(rt)...)
	for _, f := range def.Funcs {
		m, err := b.function(f.Name, f.Fn, descriptor.KindMethod, f.Static, !f.Static)
		if err != nil {
			l.undefine(rt)
			return nil, fmt.Errorf("define %s: %s: %w", name, f.Name, err)
		}
		t.Members = append(t.Members, m)
	}
	for _, p := range def.Properties {
		m, err := b.property(p)
		if err != nil {
			l.undefine(rt)
			return nil, fmt.Errorf("define %s: property %s: %w", name, p.Name, err)
		}
		t.Members = append(t.Members, m)
	}
	t.Finalize()
	return t, nil
}

// MustDefine is Define for static tables.
func (l *Library) MustDefine(def TypeDef) *descriptor.Type {
	t, err := l.Define(def)
	if err != nil {
		panic(err)
	}
	return t
}

func (l *Library) undefine(rt reflect.Type) {
	t := l.byType[rt]
	delete(l.byType, rt)
	l.types = slices.DeleteFunc(l.types, func(x *descriptor.Type) bool { return x == t })
}

// Provide registers a named object for "object get".
func (l *Library) Provide(name string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[name] = v
}

// Activate returns an object registered with Provide.
func (l *Library) Activate(_ context.Context, name string) (any, *descriptor.Type, error) {
	l.mu.RLock()
	v, ok := l.objects[name]
	l.mu.RUnlock()
	if !ok {
		return nil, nil, bridgeerr.NotFound("object", name)
	}
	return v, l.TypeOf(v), nil
}

// Enumerate iterates slices, arrays, maps (keys, sorted when ordered),
// channels and range-over-func iterators.
func (l *Library) Enumerate(v any) (iter.Seq[any], bool) {
	if v == nil {
		return nil, false
	}
	if seq, ok := v.(iter.Seq[any]); ok {
		return seq, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return nil, false
	case reflect.Pointer:
		if rv.Elem().Kind() == reflect.Array {
			rv = rv.Elem()
		}
	}
	if !rv.Type().CanSeq() {
		return nil, false
	}
	if rv.Kind() == reflect.Map {
		keys := rv.MapKeys()
		slices.SortFunc(keys, compareValues)
		return func(yield func(any) bool) {
			for _, k := range keys {
				if !yield(k.Interface()) {
					return
				}
			}
		}, true
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return func(yield func(any) bool) {
			for i := range rv.Len() {
				if !yield(rv.Index(i).Interface()) {
					return
				}
			}
		}, true
	}
	return func(yield func(any) bool) {
		for x := range rv.Seq() {
			if !yield(x.Interface()) {
				return
			}
		}
	}, true
}

func compareValues(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.String:
		return cmp.Compare(a.String(), b.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	}
	return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
}

func typeName(rt reflect.Type) string {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() != "" {
		return rt.Name()
	}
	return rt.String()
}

func packageName(rt reflect.Type) string {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	p := rt.PkgPath()
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// autoDefinable accepts named types and pointers to them, skipping the
// primitive kinds that are always rendered inline.
func autoDefinable(rt reflect.Type) bool {
	base := rt
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Name() == "" || base.PkgPath() == "" {
		return false
	}
	switch base.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return true
	}
	return rt.Kind() == reflect.Pointer
}
