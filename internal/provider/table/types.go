package table

import (
	"strings"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

var basicTypes = map[string]descriptor.TypeRef{
	"string":  {Kind: descriptor.ValueString},
	"bool":    {Kind: descriptor.ValueBool},
	"int":     {Kind: descriptor.ValueInt, Bits: 64},
	"int8":    {Kind: descriptor.ValueInt, Bits: 8},
	"int16":   {Kind: descriptor.ValueInt, Bits: 16},
	"int32":   {Kind: descriptor.ValueInt, Bits: 32},
	"rune":    {Kind: descriptor.ValueInt, Bits: 32},
	"int64":   {Kind: descriptor.ValueInt, Bits: 64},
	"uint":    {Kind: descriptor.ValueUint, Bits: 64},
	"uint8":   {Kind: descriptor.ValueUint, Bits: 8},
	"byte":    {Kind: descriptor.ValueUint, Bits: 8},
	"uint16":  {Kind: descriptor.ValueUint, Bits: 16},
	"uint32":  {Kind: descriptor.ValueUint, Bits: 32},
	"uint64":  {Kind: descriptor.ValueUint, Bits: 64},
	"uintptr": {Kind: descriptor.ValueUint, Bits: 64},
	"float32": {Kind: descriptor.ValueFloat, Bits: 32},
	"float64": {Kind: descriptor.ValueFloat, Bits: 64},
	"[]byte":  {Kind: descriptor.ValueBytes},
	"[]uint8": {Kind: descriptor.ValueBytes},
	"any":     {Kind: descriptor.ValueAny},
	"error":   {Kind: descriptor.ValueAny},
}

// typeRef resolves a Go-syntax type string. Unqualified names refer to ns;
// names of types that are not loaded resolve to any. The caller holds p.mu.
func (p *Provider) typeRef(ns, s string) descriptor.TypeRef {
	s = strings.TrimSpace(s)
	if ref, ok := basicTypes[s]; ok {
		ref.Name = s
		return ref
	}
	switch {
	case s == "" || s == "interface{}" || strings.HasPrefix(s, "map[") || strings.HasPrefix(s, "func("):
		return descriptor.TypeRef{Kind: descriptor.ValueAny, Name: s}
	case strings.HasPrefix(s, "[]"):
		elem := p.typeRef(ns, s[2:])
		return descriptor.TypeRef{Kind: descriptor.ValueList, Name: s, Elem: &elem}
	case strings.HasPrefix(s, "["):
		if i := strings.IndexByte(s, ']'); i > 0 {
			elem := p.typeRef(ns, s[i+1:])
			return descriptor.TypeRef{Kind: descriptor.ValueList, Name: s, Elem: &elem}
		}
	}

	name := strings.TrimPrefix(s, "*")
	full := name
	if !strings.Contains(name, ".") && ns != "" {
		full = ns + "." + name
	}
	t, ok := p.byName[full]
	if !ok {
		return descriptor.TypeRef{Kind: descriptor.ValueAny, Name: s}
	}
	if t.Enum != nil {
		return descriptor.TypeRef{Kind: descriptor.ValueEnum, Name: full, Enum: t.Enum}
	}
	return descriptor.TypeRef{Kind: descriptor.ValueObject, Name: full, Accepts: t.Accepts}
}
