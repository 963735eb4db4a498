package descriptor

import (
	"fmt"
	"strings"
)

// ValueKind is the abstract kind a parameter or result is coerced to.
type ValueKind uint8

const (
	ValueAny ValueKind = iota
	ValueString
	ValueBool
	ValueInt
	ValueUint
	ValueFloat
	ValueEnum
	ValueList
	ValueBytes
	ValueObject
)

var valueKindNames = [...]string{
	ValueAny:    "any",
	ValueString: "string",
	ValueBool:   "bool",
	ValueInt:    "int",
	ValueUint:   "uint",
	ValueFloat:  "float",
	ValueEnum:   "enum",
	ValueList:   "list",
	ValueBytes:  "bytes",
	ValueObject: "object",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// TypeRef describes the declared type of a parameter, field, property or
// result.
type TypeRef struct {
	Kind ValueKind
	// Name is the provider's display name ("int32", "*demo.Box", ...).
	Name string
	// Bits is the width of numeric kinds; 0 means the platform default.
	Bits int
	// Elem is the element type of ValueList.
	Elem *TypeRef
	// Enum is the value table of ValueEnum.
	Enum *Enum
	// Accepts decides whether an existing object may be passed where this
	// type is declared. Nil accepts nothing.
	Accepts func(v any) bool
}

func (t TypeRef) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Kind == ValueList && t.Elem != nil {
		return "[]" + t.Elem.String()
	}
	return t.Kind.String()
}

// Param is one declared parameter of a member.
type Param struct {
	Name string
	Type TypeRef
	// ByRef parameters consume no argument text; their post-call value is
	// reported back through an Output.
	ByRef bool
	// Optional parameters may be omitted from the end of the argument list.
	Optional bool
	// Default is the argument text used for an omitted optional parameter
	// when HasDefault is set.
	Default    string
	HasDefault bool
	// Variadic marks the trailing parameter that absorbs remaining arguments.
	// Its Type is the element type.
	Variadic bool
}

// CallFunc invokes a method or constructor. Target is nil for static members
// and constructors. Elements of args are coerced values, *Ref boxes for
// by-ref parameters, or Missing for omitted optional parameters.
type CallFunc func(target any, args []any) (any, error)

// GetFunc reads a field or property.
type GetFunc func(target any) (any, error)

// SetFunc writes a field or property.
type SetFunc func(target any, value any) error

// Member is one candidate of an overload group.
type Member struct {
	Kind      MemberKind
	Name      string
	Static    bool
	NonPublic bool
	Params    []Param
	// Result is the declared result type; nil means no result.
	Result *TypeRef
	// Type is the value type of fields and properties.
	Type TypeRef
	// DeclaringType is the full name of the type that declares the member,
	// which differs from the owning type for promoted members.
	DeclaringType string
	// Group is the position of the member within its (kind, name) group.
	Group int

	Call CallFunc
	Get  GetFunc
	Set  SetFunc
}

// Signature formats the member for diagnostics and member listings.
func (m *Member) Signature() string {
	var sb strings.Builder
	sb.WriteString(m.Name)
	if m.Kind == KindField || m.Kind == KindProperty {
		sb.WriteString(" ")
		sb.WriteString(m.Type.String())
		return sb.String()
	}
	sb.WriteString("(")
	for i, p := range m.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.ByRef {
			sb.WriteString("out ")
		}
		if p.Name != "" {
			sb.WriteString(p.Name)
			sb.WriteString(" ")
		}
		if p.Variadic {
			sb.WriteString("...")
		}
		sb.WriteString(p.Type.String())
		if p.Optional {
			sb.WriteString("?")
		}
	}
	sb.WriteString(")")
	if m.Result != nil {
		sb.WriteString(" ")
		sb.WriteString(m.Result.String())
	}
	return sb.String()
}

// Accessors expands a property into a getter candidate taking no arguments
// and, if the property is writable, a setter candidate taking the new value.
// Other members are returned unchanged.
func (m *Member) Accessors() []*Member {
	if m.Kind != KindProperty {
		return []*Member{m}
	}
	var out []*Member
	if m.Get != nil {
		get := m.Get
		typ := m.Type
		out = append(out, &Member{
			Kind: KindProperty, Name: m.Name, Static: m.Static, NonPublic: m.NonPublic,
			Result: &typ, Type: m.Type, DeclaringType: m.DeclaringType, Group: len(out),
			Call: func(target any, _ []any) (any, error) { return get(target) },
		})
	}
	if m.Set != nil {
		set := m.Set
		out = append(out, &Member{
			Kind: KindProperty, Name: m.Name, Static: m.Static, NonPublic: m.NonPublic,
			Params: []Param{{Name: "value", Type: m.Type}}, Type: m.Type,
			DeclaringType: m.DeclaringType, Group: len(out),
			Call: func(target any, args []any) (any, error) { return nil, set(target, args[0]) },
		})
	}
	return out
}

// Type describes a foreign type.
type Type struct {
	Namespace string
	Name      string
	// Members lists declared and inherited members in declaration order.
	Members []*Member
	// Accepts reports whether v is an instance of the type.
	Accepts func(v any) bool
	// Enum is set for enumeration types.
	Enum *Enum
}

// FullName is the namespace-qualified name.
func (t *Type) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsInstance reports whether v belongs to the type.
func (t *Type) IsInstance(v any) bool {
	return t.Accepts != nil && t.Accepts(v)
}

// Finalize numbers overload groups and fills in DeclaringType. Providers
// call it once after building the member table.
func (t *Type) Finalize() {
	next := make(map[string]int)
	for _, m := range t.Members {
		key := fmt.Sprintf("%d/%s", m.Kind, m.Name)
		m.Group = next[key]
		next[key]++
		if m.DeclaringType == "" {
			m.DeclaringType = t.FullName()
		}
	}
}

// Ref is the box a provider writes a by-ref parameter's post-call value into.
type Ref struct {
	Value any
	Set   bool
}

// Store records v as the post-call value.
func (r *Ref) Store(v any) {
	r.Value = v
	r.Set = true
}

type missing struct{}

func (missing) String() string { return "<missing>" }

// Missing marks an omitted optional parameter without a default; providers
// substitute their zero value.
var Missing any = missing{}

// Output is a by-ref value reported after a successful call.
type Output struct {
	Index int
	Name  string
	Value any
}
