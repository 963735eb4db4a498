// Package provider defines the Type Introspection Provider contract. A
// provider publishes a table of foreign type descriptors and can tell which
// of its types a live value belongs to. Optional capabilities (enumeration,
// activation by name, late-bound invocation) are discovered with type
// assertions.
package provider

import (
	"context"
	"iter"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

// Provider is the minimal introspection contract.
type Provider interface {
	// Name identifies the provider in diagnostics.
	Name() string
	// Types returns the provider's type table. The slice may change between
	// calls when the provider loads more types.
	Types() []*descriptor.Type
	// TypeOf returns the descriptor for a live value, or nil when the value
	// is not one of the provider's types.
	TypeOf(v any) *descriptor.Type
}

// Enumerator is implemented by providers that can iterate collection values.
type Enumerator interface {
	// Enumerate returns a sequence over v's elements and true, or false when
	// v is not enumerable.
	Enumerate(v any) (iter.Seq[any], bool)
}

// Activator is implemented by providers that can hand out existing objects
// by name, like a service locator.
type Activator interface {
	Activate(ctx context.Context, name string) (any, *descriptor.Type, error)
}

// LateBinder is implemented by providers with their own member resolution.
// InvokeLate receives raw argument text and resolves, converts and calls in
// one step.
type LateBinder interface {
	InvokeLate(ctx context.Context, target any, typ *descriptor.Type, member string, kinds descriptor.MemberKind, args []string) (any, []descriptor.Output, error)
}

// Set is an ordered list of providers queried in turn.
type Set []Provider

// TypeOf asks each provider in order and returns the first answer.
func (s Set) TypeOf(v any) *descriptor.Type {
	if v == nil {
		return nil
	}
	for _, p := range s {
		if t := p.TypeOf(v); t != nil {
			return t
		}
	}
	return nil
}

// Enumerate asks each Enumerator in order.
func (s Set) Enumerate(v any) (iter.Seq[any], bool) {
	for _, p := range s {
		if e, ok := p.(Enumerator); ok {
			if seq, ok := e.Enumerate(v); ok {
				return seq, true
			}
		}
	}
	return nil, false
}

// Owner returns the provider whose table contains typ.
func (s Set) Owner(typ *descriptor.Type) Provider {
	for _, p := range s {
		for _, t := range p.Types() {
			if t == typ {
				return p
			}
		}
	}
	return nil
}

// All returns every type of every provider, in provider order.
func (s Set) All() []*descriptor.Type {
	var out []*descriptor.Type
	for _, p := range s {
		out = append(out, p.Types()...)
	}
	return out
}
