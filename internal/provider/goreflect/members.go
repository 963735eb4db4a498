package goreflect

import (
	"fmt"
	"reflect"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

var errorType = reflect.TypeFor[error]()

// builder turns reflect metadata into members. The library lock is held
// while it runs.
type builder struct {
	lib  *Library
	full string
}

func (b builder) fields(rt reflect.Type) []*descriptor.Member {
	st := rt
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil
	}
	settable := rt.Kind() == reflect.Pointer
	var out []*descriptor.Member
	for _, f := range reflect.VisibleFields(st) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		idx := f.Index
		ft := f.Type
		m := &descriptor.Member{
			Kind: descriptor.KindField,
			Name: f.Name,
			Type: b.typeRef(ft),
			Get: func(target any) (any, error) {
				v, err := fieldValue(target, idx)
				if err != nil {
					return nil, err
				}
				return v.Interface(), nil
			},
		}
		if len(idx) > 1 {
			m.DeclaringType = declaringName(st, idx)
		}
		if settable {
			m.Set = func(target any, value any) error {
				fv, err := fieldValue(target, idx)
				if err != nil {
					return err
				}
				if !fv.CanSet() {
					return fmt.Errorf("field %s is not settable", f.Name)
				}
				nv, err := native(value, ft)
				if err != nil {
					return err
				}
				fv.Set(nv)
				return nil
			}
		}
		out = append(out, m)
	}
	return out
}

func fieldValue(target any, idx []int) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil receiver")
		}
		v = v.Elem()
	}
	return v.FieldByIndexErr(idx)
}

func declaringName(st reflect.Type, idx []int) string {
	outer := st.FieldByIndex(idx[:len(idx)-1]).Type
	return typeName(outer)
}

func (b builder) methods(rt reflect.Type) []*descriptor.Member {
	var out []*descriptor.Member
	offset := 1
	if rt.Kind() == reflect.Interface {
		offset = 0
	}
	for i := range rt.NumMethod() {
		meth := rt.Method(i)
		if !meth.IsExported() {
			continue
		}
		sig := meth.Type
		params, ok := b.params(sig, offset)
		if !ok {
			continue
		}
		name := meth.Name
		m := &descriptor.Member{
			Kind:   descriptor.KindMethod,
			Name:   name,
			Params: params,
			Result: b.result(sig),
			Call: func(target any, args []any) (any, error) {
				recv := reflect.ValueOf(target)
				if !recv.IsValid() {
					return nil, fmt.Errorf("method %s needs an instance", name)
				}
				fn := recv.MethodByName(name)
				if !fn.IsValid() {
					return nil, fmt.Errorf("%T has no method %s", target, name)
				}
				return invokeFunc(fn, fn.Type(), 0, nil, args)
			},
		}
		out = append(out, m)
	}
	return out
}

// function builds a member from an explicit func value. With a receiver
// the first parameter is the instance.
func (b builder) function(name string, fn any, kind descriptor.MemberKind, static, receiver bool) (*descriptor.Member, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: want func, got %T", name, fn)
	}
	ft := fv.Type()
	offset := 0
	if receiver {
		if ft.NumIn() == 0 {
			return nil, fmt.Errorf("%s: method func needs a receiver parameter", name)
		}
		offset = 1
	}
	params, ok := b.params(ft, offset)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported parameter types in %s", name, ft)
	}
	m := &descriptor.Member{
		Kind:   kind,
		Name:   name,
		Static: static,
		Params: params,
		Result: b.result(ft),
	}
	if receiver {
		recvType := ft.In(0)
		m.Call = func(target any, args []any) (any, error) {
			rv, err := native(target, recvType)
			if err != nil {
				return nil, fmt.Errorf("receiver: %w", err)
			}
			return invokeFunc(fv, ft, 1, []reflect.Value{rv}, args)
		}
	} else {
		m.Call = func(_ any, args []any) (any, error) {
			return invokeFunc(fv, ft, 0, nil, args)
		}
	}
	return m, nil
}

func (b builder) property(p Property) (*descriptor.Member, error) {
	m := &descriptor.Member{Kind: descriptor.KindProperty, Name: p.Name}
	if p.Get != nil {
		gv := reflect.ValueOf(p.Get)
		gt := gv.Type()
		if gt.Kind() != reflect.Func || gt.NumIn() != 1 || gt.NumOut() < 1 {
			return nil, fmt.Errorf("getter must be func(T) V, got %s", gt)
		}
		m.Type = b.typeRef(gt.Out(0))
		recvType := gt.In(0)
		m.Get = func(target any) (any, error) {
			rv, err := native(target, recvType)
			if err != nil {
				return nil, err
			}
			return results(gv.Call([]reflect.Value{rv}), gt)
		}
	}
	if p.Set != nil {
		sv := reflect.ValueOf(p.Set)
		st := sv.Type()
		if st.Kind() != reflect.Func || st.NumIn() != 2 {
			return nil, fmt.Errorf("setter must be func(T, V), got %s", st)
		}
		if p.Get == nil {
			m.Type = b.typeRef(st.In(1))
		}
		recvType, valType := st.In(0), st.In(1)
		m.Set = func(target any, value any) error {
			rv, err := native(target, recvType)
			if err != nil {
				return err
			}
			nv, err := native(value, valType)
			if err != nil {
				return err
			}
			_, err = results(sv.Call([]reflect.Value{rv, nv}), st)
			return err
		}
	}
	if m.Get == nil && m.Set == nil {
		return nil, fmt.Errorf("property needs a getter or a setter")
	}
	return m, nil
}

func (b builder) params(ft reflect.Type, offset int) ([]descriptor.Param, bool) {
	var out []descriptor.Param
	for i := offset; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		p := descriptor.Param{Name: fmt.Sprintf("arg%d", i-offset+1)}
		switch {
		case ft.IsVariadic() && i == ft.NumIn()-1:
			p.Variadic = true
			p.Type = b.typeRef(pt.Elem())
		case isByRef(pt):
			p.ByRef = true
			p.Type = b.typeRef(pt.Elem())
		default:
			p.Type = b.typeRef(pt)
		}
		out = append(out, p)
	}
	return out, true
}

func (b builder) result(ft reflect.Type) *descriptor.TypeRef {
	for i := range ft.NumOut() {
		if ft.Out(i) == errorType {
			continue
		}
		r := b.typeRef(ft.Out(i))
		return &r
	}
	return nil
}

// typeRef maps a Go type to its abstract kind.
func (b builder) typeRef(rt reflect.Type) descriptor.TypeRef {
	ref := descriptor.TypeRef{Name: rt.String()}
	if t, ok := b.lib.byType[rt]; ok && t.Enum != nil {
		ref.Kind = descriptor.ValueEnum
		ref.Enum = t.Enum
		return ref
	}
	switch rt.Kind() {
	case reflect.String:
		ref.Kind = descriptor.ValueString
	case reflect.Bool:
		ref.Kind = descriptor.ValueBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		ref.Kind = descriptor.ValueInt
		ref.Bits = rt.Bits()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		ref.Kind = descriptor.ValueUint
		ref.Bits = rt.Bits()
	case reflect.Float32, reflect.Float64:
		ref.Kind = descriptor.ValueFloat
		ref.Bits = rt.Bits()
	case reflect.Slice, reflect.Array:
		if rt.Elem().Kind() == reflect.Uint8 && rt.Kind() == reflect.Slice {
			ref.Kind = descriptor.ValueBytes
			break
		}
		elem := b.typeRef(rt.Elem())
		ref.Kind = descriptor.ValueList
		ref.Elem = &elem
		ref.Accepts = assignable(rt)
	case reflect.Interface:
		if rt.NumMethod() == 0 {
			ref.Kind = descriptor.ValueAny
			break
		}
		ref.Kind = descriptor.ValueObject
		ref.Accepts = assignable(rt)
	default:
		ref.Kind = descriptor.ValueObject
		ref.Accepts = assignable(rt)
	}
	return ref
}

func assignable(rt reflect.Type) func(any) bool {
	return func(v any) bool {
		return v != nil && reflect.TypeOf(v).AssignableTo(rt)
	}
}

func isByRef(pt reflect.Type) bool {
	if pt.Kind() != reflect.Pointer {
		return false
	}
	switch pt.Elem().Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
