// Package descriptor holds the language-neutral description of foreign types
// and their members. Providers build these tables; the resolvers, the
// coercer and the invoker only ever look at descriptors, never at the
// provider's native introspection API.
package descriptor

import (
	"fmt"
	"strings"
)

// MemberKind is a bit set of member categories.
type MemberKind uint8

const (
	KindField MemberKind = 1 << iota
	KindProperty
	KindMethod
	KindConstructor

	KindNone    MemberKind = 0
	KindInvoke             = KindField | KindProperty | KindMethod
	KindAll                = KindInvoke | KindConstructor
)

var kindNames = []struct {
	kind MemberKind
	name string
}{
	{KindField, "Field"},
	{KindProperty, "Property"},
	{KindMethod, "Method"},
	{KindConstructor, "Constructor"},
}

func (k MemberKind) String() string {
	if k == KindNone {
		return "None"
	}
	var parts []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseMemberKind parses a list of kind names separated by "|", "," or
// spaces. "All" and "Invoke" are accepted as shorthands.
func ParseMemberKind(s string) (MemberKind, error) {
	var k MemberKind
	for _, tok := range splitFlags(s) {
		switch strings.ToLower(tok) {
		case "field", "fields":
			k |= KindField
		case "property", "properties":
			k |= KindProperty
		case "method", "methods":
			k |= KindMethod
		case "constructor", "constructors":
			k |= KindConstructor
		case "invoke":
			k |= KindInvoke
		case "all":
			k |= KindAll
		case "none":
		default:
			return 0, fmt.Errorf("unknown member kind %q, must be Field, Property, Method, Constructor, Invoke or All", tok)
		}
	}
	return k, nil
}

// Binding is a bit set describing the scope a member is reachable in.
type Binding uint8

const (
	BindStatic Binding = 1 << iota
	BindInstance
	BindPublic
	BindNonPublic

	BindDefault = BindStatic | BindInstance | BindPublic
	BindAll     = BindStatic | BindInstance | BindPublic | BindNonPublic
)

func (b Binding) String() string {
	var parts []string
	if b&BindStatic != 0 {
		parts = append(parts, "Static")
	}
	if b&BindInstance != 0 {
		parts = append(parts, "Instance")
	}
	if b&BindPublic != 0 {
		parts = append(parts, "Public")
	}
	if b&BindNonPublic != 0 {
		parts = append(parts, "NonPublic")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// ParseBinding parses binding names the same way ParseMemberKind does.
func ParseBinding(s string) (Binding, error) {
	var b Binding
	for _, tok := range splitFlags(s) {
		switch strings.ToLower(tok) {
		case "static":
			b |= BindStatic
		case "instance":
			b |= BindInstance
		case "public":
			b |= BindPublic
		case "nonpublic":
			b |= BindNonPublic
		case "default":
			b |= BindDefault
		case "all":
			b |= BindAll
		case "none":
		default:
			return 0, fmt.Errorf("unknown binding flag %q, must be Static, Instance, Public, NonPublic, Default or All", tok)
		}
	}
	return b, nil
}

// Matches reports whether a member with the given staticness and
// visibility is reachable under b.
func (b Binding) Matches(static, public bool) bool {
	if static && b&BindStatic == 0 {
		return false
	}
	if !static && b&BindInstance == 0 {
		return false
	}
	if public && b&BindPublic == 0 {
		return false
	}
	if !public && b&BindNonPublic == 0 {
		return false
	}
	return true
}

func splitFlags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ',' || r == '+' || r == ' ' || r == '\t'
	})
}
