// Package table publishes types described by descriptor tables.
//
// A table (see File) lists each type's members with their parameter names,
// types, defaults and by-ref flags. Tables are usually generated from Go
// source by the bindgen package and paired at run time with the Go values
// that implement them through Implement. Calls go through reflection by
// symbol name unless an explicit function is registered for the symbol.
package table

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/provider/goreflect"
)

var _ provider.Provider = (*Provider)(nil)

// Impl binds a table type to Go.
type Impl struct {
	// Sample is a value of the implementing Go type, typically a typed nil
	// pointer. A pointer to an interface type binds the interface: any value
	// implementing it is an instance.
	Sample any

	// Funcs implements members by symbol. Constructors and static members
	// must be listed here. An instance entry takes the receiver as its first
	// parameter and replaces the method of the same name.
	Funcs map[string]any
}

type binding struct {
	full  string
	rt    reflect.Type
	iface bool
	funcs map[string]any
}

// Provider is a table-driven provider.
type Provider struct {
	name   string
	logger *log.Logger

	mu     sync.RWMutex
	types  []*descriptor.Type
	byName map[string]*descriptor.Type
	impls  map[string]*binding
	byGo   map[reflect.Type]*binding
	ifaces []*binding
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates an empty provider.
func New(name string, opts ...Option) *Provider {
	p := &Provider{
		name:   name,
		byName: make(map[string]*descriptor.Type),
		impls:  make(map[string]*binding),
		byGo:   make(map[reflect.Type]*binding),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	p.logger = logging.Component(p.logger, "table")
	return p
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Types() []*descriptor.Type {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.types)
}

// TypeOf matches v's dynamic type against the implemented types, exact
// types first and bound interfaces second.
func (p *Provider) TypeOf(v any) *descriptor.Type {
	if v == nil {
		return nil
	}
	rt := reflect.TypeOf(v)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if b, ok := p.byGo[rt]; ok {
		return p.byName[b.full]
	}
	for _, b := range p.ifaces {
		if rt.Implements(b.rt) {
			return p.byName[b.full]
		}
	}
	return nil
}

// Implement binds the type named full (namespace-qualified) to Go. The
// table may be loaded before or after.
func (p *Provider) Implement(full string, impl Impl) error {
	b := &binding{full: full, funcs: impl.Funcs}
	if impl.Sample != nil {
		b.rt = reflect.TypeOf(impl.Sample)
		if b.rt.Kind() == reflect.Pointer && b.rt.Elem().Kind() == reflect.Interface {
			b.rt = b.rt.Elem()
			b.iface = true
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.impls[full]; ok {
		return fmt.Errorf("type %s is already implemented", full)
	}
	p.impls[full] = b
	switch {
	case b.iface:
		p.ifaces = append(p.ifaces, b)
	case b.rt != nil:
		p.byGo[b.rt] = b
	}
	return nil
}

// Load publishes the types of the given tables. Type names must not be
// loaded already.
func (p *Provider) Load(files ...*File) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range files {
		for _, ts := range f.Types {
			full := f.Namespace + "." + ts.Name
			if _, ok := p.byName[full]; ok {
				return fmt.Errorf("type %s is already loaded", full)
			}
		}
	}

	// Shells first so member types can refer to any loaded type.
	var pending []*descriptor.Type
	for _, f := range files {
		for i := range f.Types {
			ts := &f.Types[i]
			t := &descriptor.Type{Namespace: f.Namespace, Name: ts.Name}
			t.Accepts = p.accepts(t.FullName())
			if len(ts.Enum) > 0 {
				t.Enum = &descriptor.Enum{Name: ts.Name, Flags: ts.Flags}
				for _, ev := range ts.Enum {
					t.Enum.Values = append(t.Enum.Values, descriptor.EnumValue{Name: ev.Name, Value: ev.Value})
				}
			}
			p.byName[t.FullName()] = t
			pending = append(pending, t)
		}
	}

	n := 0
	for _, f := range files {
		for i := range f.Types {
			t := pending[n]
			n++
			for _, ms := range f.Types[i].Members {
				m, err := p.member(t, f.Namespace, ms)
				if err != nil {
					for _, pt := range pending {
						delete(p.byName, pt.FullName())
					}
					return fmt.Errorf("%s.%s: %w", t.FullName(), ms.Name, err)
				}
				t.Members = append(t.Members, m)
			}
			t.Finalize()
		}
		p.logger.Debug("table loaded", "namespace", f.Namespace, "package", f.Package, "types", len(f.Types))
	}
	p.types = append(p.types, pending...)
	return nil
}

// LoadFile decodes and loads the tables stored at path.
func (p *Provider) LoadFile(path string) error {
	files, err := ReadFile(path)
	if err != nil {
		return err
	}
	return p.Load(files...)
}

func (p *Provider) accepts(full string) func(any) bool {
	return func(v any) bool {
		if v == nil {
			return false
		}
		p.mu.RLock()
		b := p.impls[full]
		p.mu.RUnlock()
		if b == nil || b.rt == nil {
			return false
		}
		rt := reflect.TypeOf(v)
		if b.iface {
			return rt.Implements(b.rt)
		}
		return rt == b.rt
	}
}

func (p *Provider) binding(full string) (*binding, error) {
	p.mu.RLock()
	b := p.impls[full]
	p.mu.RUnlock()
	if b == nil {
		return nil, fmt.Errorf("type %s has no implementation", full)
	}
	return b, nil
}

func (p *Provider) member(t *descriptor.Type, ns string, ms MemberSpec) (*descriptor.Member, error) {
	kind, err := descriptor.ParseMemberKind(ms.Kind)
	if err != nil {
		return nil, err
	}
	full := t.FullName()
	sym := ms.symbol()
	m := &descriptor.Member{Kind: kind, Name: ms.Name, Static: ms.Static || kind == descriptor.KindConstructor}

	for _, ps := range ms.Params {
		param := descriptor.Param{
			Name:     ps.Name,
			Type:     p.typeRef(ns, ps.Type),
			ByRef:    ps.ByRef,
			Variadic: ps.Variadic,
			Optional: ps.Optional || ps.Default != nil,
		}
		if ps.Default != nil {
			param.Default = *ps.Default
			param.HasDefault = true
		}
		m.Params = append(m.Params, param)
	}
	if ms.Result != "" {
		r := p.typeRef(ns, ms.Result)
		m.Result = &r
	}

	switch kind {
	case descriptor.KindConstructor:
		if m.Result == nil {
			m.Result = &descriptor.TypeRef{Kind: descriptor.ValueObject, Name: full, Accepts: t.Accepts}
		}
		m.Call = func(_ any, args []any) (any, error) {
			b, err := p.binding(full)
			if err != nil {
				return nil, err
			}
			if sym == "new" {
				return b.zero()
			}
			return b.static(sym, args)
		}
	case descriptor.KindMethod:
		if m.Static {
			m.Call = func(_ any, args []any) (any, error) {
				b, err := p.binding(full)
				if err != nil {
					return nil, err
				}
				return b.static(sym, args)
			}
			break
		}
		m.Call = func(target any, args []any) (any, error) {
			b, err := p.binding(full)
			if err != nil {
				return nil, err
			}
			return b.method(target, sym, args)
		}
	case descriptor.KindField:
		m.Type = p.typeRef(ns, ms.Type)
		m.Get = func(target any) (any, error) { return goreflect.Field(target, sym) }
		if !ms.ReadOnly {
			m.Set = func(target any, v any) error { return goreflect.SetField(target, sym, v) }
		}
	case descriptor.KindProperty:
		m.Type = p.typeRef(ns, ms.Type)
		getter, setter := ms.Getter, ms.Setter
		if getter == "" {
			getter = sym
		}
		if setter == "" {
			setter = "Set" + sym
		}
		m.Get = func(target any) (any, error) {
			b, err := p.binding(full)
			if err != nil {
				return nil, err
			}
			return b.method(target, getter, nil)
		}
		if !ms.ReadOnly {
			m.Set = func(target any, v any) error {
				b, err := p.binding(full)
				if err != nil {
					return err
				}
				_, err = b.method(target, setter, []any{v})
				return err
			}
		}
	default:
		return nil, fmt.Errorf("member must have exactly one kind, got %s", kind)
	}
	return m, nil
}

func (b *binding) zero() (any, error) {
	if b.rt == nil || b.iface {
		return nil, fmt.Errorf("type %s cannot be allocated", b.full)
	}
	if b.rt.Kind() == reflect.Pointer {
		return reflect.New(b.rt.Elem()).Interface(), nil
	}
	return reflect.Zero(b.rt).Interface(), nil
}

func (b *binding) static(sym string, args []any) (any, error) {
	fn, ok := b.funcs[sym]
	if !ok {
		return nil, fmt.Errorf("type %s has no function %s", b.full, sym)
	}
	return goreflect.Call(fn, args)
}

func (b *binding) method(target any, sym string, args []any) (any, error) {
	if fn, ok := b.funcs[sym]; ok {
		return goreflect.CallWith(fn, target, args)
	}
	return goreflect.CallMethod(target, sym, args)
}
