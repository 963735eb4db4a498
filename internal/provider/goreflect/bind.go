package goreflect

import (
	"fmt"
	"reflect"
)

// Call converts coerced arguments to fn's parameter types and calls it.
// By-ref and linked-list arguments are stored back as for defined members.
func Call(fn any, args []any) (any, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("want func, got %T", fn)
	}
	return invokeFunc(fv, fv.Type(), 0, nil, args)
}

// CallWith calls fn with recv as its first parameter.
func CallWith(fn any, recv any, args []any) (any, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.Type().NumIn() == 0 {
		return nil, fmt.Errorf("want func with a receiver parameter, got %T", fn)
	}
	ft := fv.Type()
	rv, err := native(recv, ft.In(0))
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}
	return invokeFunc(fv, ft, 1, []reflect.Value{rv}, args)
}

// CallMethod calls target's exported method by name.
func CallMethod(target any, name string, args []any) (any, error) {
	recv := reflect.ValueOf(target)
	if !recv.IsValid() {
		return nil, fmt.Errorf("method %s needs an instance", name)
	}
	fn := recv.MethodByName(name)
	if !fn.IsValid() {
		return nil, fmt.Errorf("%T has no method %s", target, name)
	}
	return invokeFunc(fn, fn.Type(), 0, nil, args)
}

// Field reads an exported struct field by name.
func Field(target any, name string) (any, error) {
	fv, err := fieldByName(target, name)
	if err != nil {
		return nil, err
	}
	return fv.Interface(), nil
}

// SetField writes an exported struct field by name. target must be a
// pointer.
func SetField(target any, name string, value any) error {
	fv, err := fieldByName(target, name)
	if err != nil {
		return err
	}
	if !fv.CanSet() {
		return fmt.Errorf("field %s of %T is not settable", name, target)
	}
	nv, err := native(value, fv.Type())
	if err != nil {
		return err
	}
	fv.Set(nv)
	return nil
}

func fieldByName(target any, name string) (reflect.Value, error) {
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil receiver")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%T has no fields", target)
	}
	f, ok := v.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return reflect.Value{}, fmt.Errorf("%T has no field %s", target, name)
	}
	return v.FieldByIndex(f.Index), nil
}
