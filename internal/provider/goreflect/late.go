package goreflect

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/provider"
)

var (
	_ provider.Provider   = (*Library)(nil)
	_ provider.Enumerator = (*Library)(nil)
	_ provider.Activator  = (*Library)(nil)
	_ provider.LateBinder = (*Library)(nil)
)

// InvokeLate calls a method by name, converting the raw argument text with
// strconv against the Go parameter types. Descriptor overloads are not
// consulted: Go methods are unique per name.
func (l *Library) InvokeLate(ctx context.Context, target any, typ *descriptor.Type, member string, kinds descriptor.MemberKind, args []string) (any, []descriptor.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if target == nil {
		return l.lateStatic(typ, member, kinds, args)
	}
	rv := reflect.ValueOf(target)
	if kinds&descriptor.KindMethod != 0 {
		if fn := rv.MethodByName(member); fn.IsValid() {
			return callText(fn, args)
		}
	}
	if kinds&(descriptor.KindField|descriptor.KindProperty) != 0 && len(args) == 0 {
		sv := rv
		if sv.Kind() == reflect.Pointer && !sv.IsNil() {
			sv = sv.Elem()
		}
		if sv.Kind() == reflect.Struct {
			if f := sv.FieldByName(member); f.IsValid() && f.CanInterface() {
				return f.Interface(), nil, nil
			}
		}
	}
	return nil, nil, bridgeerr.NotFound("member", member)
}

// lateStatic falls back to the descriptor table for constructors and static
// functions, which have no reflect receiver to look up.
func (l *Library) lateStatic(typ *descriptor.Type, member string, kinds descriptor.MemberKind, args []string) (any, []descriptor.Output, error) {
	if typ == nil {
		return nil, nil, bridgeerr.NotFound("member", member)
	}
	for _, m := range typ.Members {
		if m.Name != member || m.Kind&kinds == 0 || !m.Static || m.Call == nil {
			continue
		}
		if len(m.Params) != len(args) {
			continue
		}
		vals := make([]any, len(args))
		for i, a := range args {
			v, err := textArg(a, m.Params[i].Type)
			if err != nil {
				return nil, nil, bridgeerr.Argument("argument %d: %v", i+1, err)
			}
			vals[i] = v
		}
		v, err := m.Call(nil, vals)
		return v, nil, err
	}
	return nil, nil, bridgeerr.NotFound("member", typ.FullName()+"."+member)
}

func callText(fn reflect.Value, args []string) (any, []descriptor.Output, error) {
	ft := fn.Type()
	var (
		in   []reflect.Value
		refs []int
	)
	next := 0
	for i := range ft.NumIn() {
		pt := ft.In(i)
		switch {
		case ft.IsVariadic() && i == ft.NumIn()-1:
			for ; next < len(args); next++ {
				v, err := parseText(args[next], pt.Elem())
				if err != nil {
					return nil, nil, bridgeerr.Argument("argument %d: %v", next+1, err)
				}
				in = append(in, v)
			}
		case isByRef(pt):
			in = append(in, reflect.New(pt.Elem()))
			refs = append(refs, i)
		default:
			if next >= len(args) {
				return nil, nil, bridgeerr.Argument("wrong # args: want %d, got %d", ft.NumIn()-len(refs), len(args))
			}
			v, err := parseText(args[next], pt)
			if err != nil {
				return nil, nil, bridgeerr.Argument("argument %d: %v", next+1, err)
			}
			in = append(in, v)
			next++
		}
	}
	if next < len(args) {
		return nil, nil, bridgeerr.Argument("wrong # args: too many arguments")
	}
	out := fn.Call(in)
	var outputs []descriptor.Output
	for _, i := range refs {
		outputs = append(outputs, descriptor.Output{Index: i, Name: fmt.Sprintf("arg%d", i+1), Value: in[i].Elem().Interface()})
	}
	v, err := results(out, ft)
	if err != nil {
		return nil, nil, err
	}
	return v, outputs, nil
}

func parseText(s string, rt reflect.Type) (reflect.Value, error) {
	out := reflect.New(rt).Elem()
	switch rt.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.ToLower(s))
		if err != nil {
			return out, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 0, rt.Bits())
		if err != nil {
			return out, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 0, rt.Bits())
		if err != nil {
			return out, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, rt.Bits())
		if err != nil {
			return out, err
		}
		out.SetFloat(f)
	case reflect.Interface:
		if rt.NumMethod() != 0 {
			return out, fmt.Errorf("cannot pass text as %s", rt)
		}
		out.Set(reflect.ValueOf(s))
	default:
		return out, fmt.Errorf("cannot pass text as %s", rt)
	}
	return out, nil
}

// textArg converts text by declared kind; native narrows the result.
func textArg(s string, t descriptor.TypeRef) (any, error) {
	switch t.Kind {
	case descriptor.ValueInt:
		return strconv.ParseInt(s, 0, 64)
	case descriptor.ValueUint:
		return strconv.ParseUint(s, 0, 64)
	case descriptor.ValueFloat:
		return strconv.ParseFloat(s, 64)
	case descriptor.ValueBool:
		return strconv.ParseBool(strings.ToLower(s))
	}
	return s, nil
}
