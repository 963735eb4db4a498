package goreflect

import (
	"fmt"
	"reflect"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

// invokeFunc converts coerced arguments to fn's parameter types (starting
// at offset), calls fn and stores by-ref and linked-list results back.
func invokeFunc(fn reflect.Value, ft reflect.Type, offset int, lead []reflect.Value, args []any) (any, error) {
	in := append([]reflect.Value(nil), lead...)
	type fixup struct {
		ref  *descriptor.Ref
		slot reflect.Value
	}
	var fixups []fixup

	for i, a := range args {
		pi := offset + i
		if pi >= ft.NumIn() {
			return nil, fmt.Errorf("too many arguments")
		}
		pt := ft.In(pi)

		if ft.IsVariadic() && pi == ft.NumIn()-1 {
			rest, _ := a.([]any)
			for j, x := range rest {
				v, err := native(x, pt.Elem())
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", i+j+1, err)
				}
				in = append(in, v)
			}
			continue
		}

		if ref, ok := a.(*descriptor.Ref); ok {
			if isByRef(pt) {
				slot := reflect.New(pt.Elem())
				if ref.Value != nil {
					if v, err := native(ref.Value, pt.Elem()); err == nil {
						slot.Elem().Set(v)
					}
				}
				in = append(in, slot)
				fixups = append(fixups, fixup{ref: ref, slot: slot.Elem()})
				continue
			}
			v, err := native(ref.Value, pt)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			in = append(in, v)
			fixups = append(fixups, fixup{ref: ref, slot: v})
			continue
		}

		v, err := native(a, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in = append(in, v)
	}

	out := fn.Call(in)
	for _, f := range fixups {
		f.ref.Store(f.slot.Interface())
	}
	return results(out, ft)
}

// results folds a Go result list into one value and an error.
func results(out []reflect.Value, ft reflect.Type) (any, error) {
	var vals []any
	for i, v := range out {
		if ft.Out(i) == errorType {
			if !v.IsNil() {
				return nil, v.Interface().(error)
			}
			continue
		}
		vals = append(vals, v.Interface())
	}
	switch len(vals) {
	case 0:
		return nil, nil
	case 1:
		return vals[0], nil
	}
	return vals, nil
}

// native converts a coerced value to rt.
func native(v any, rt reflect.Type) (reflect.Value, error) {
	if v == nil || v == descriptor.Missing {
		return reflect.Zero(rt), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(rt) {
		out := reflect.New(rt).Elem()
		out.Set(rv)
		return out, nil
	}

	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if reflect.Zero(rt).OverflowInt(rv.Int()) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", rv.Int(), rt)
			}
			return rv.Convert(rt), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return rv.Convert(rt), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if reflect.Zero(rt).OverflowUint(rv.Uint()) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", rv.Uint(), rt)
			}
			return rv.Convert(rt), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Int() < 0 {
				return reflect.Value{}, fmt.Errorf("%d is negative", rv.Int())
			}
			return rv.Convert(rt), nil
		}
	case reflect.Float32, reflect.Float64:
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
			return rv.Convert(rt), nil
		}
	case reflect.Slice, reflect.Array:
		if items, ok := v.([]any); ok {
			return sliceOf(items, rt)
		}
	case reflect.Interface:
		if rv.Type().Implements(rt) {
			out := reflect.New(rt).Elem()
			out.Set(rv)
			return out, nil
		}
	}
	if rv.Type().ConvertibleTo(rt) && rv.Kind() == rt.Kind() {
		return rv.Convert(rt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, rt)
}

func sliceOf(items []any, rt reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if rt.Kind() == reflect.Array {
		if len(items) != rt.Len() {
			return reflect.Value{}, fmt.Errorf("want %d elements, got %d", rt.Len(), len(items))
		}
		out = reflect.New(rt).Elem()
	} else {
		out = reflect.MakeSlice(rt, len(items), len(items))
	}
	for i, x := range items {
		v, err := native(x, rt.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}
