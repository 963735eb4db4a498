package protoprov

import (
	"fmt"
	"math"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/hostbridge/internal/descriptor"
)

func (p *Provider) addMessage(pkg string, md *desc.MessageDescriptor) {
	if md.IsMapEntry() {
		return
	}
	for _, ed := range md.GetNestedEnumTypes() {
		p.addEnum(pkg, ed)
	}
	for _, nested := range md.GetNestedMessageTypes() {
		p.addMessage(pkg, nested)
	}

	fqn := md.GetFullyQualifiedName()
	name := localName(pkg, fqn)
	t := &descriptor.Type{
		Namespace: pkg,
		Name:      name,
		Accepts:   isMessage(fqn),
	}
	self := descriptor.TypeRef{Kind: descriptor.ValueObject, Name: fqn, Accepts: t.Accepts}

	t.Members = append(t.Members,
		&descriptor.Member{
			Kind: descriptor.KindConstructor, Name: name, Static: true, Result: &self,
			Call: func(_ any, _ []any) (any, error) { return dynamic.NewMessage(md), nil },
		},
		&descriptor.Member{
			Kind: descriptor.KindConstructor, Name: name, Static: true, Result: &self,
			Params: []descriptor.Param{{Name: "json", Type: descriptor.TypeRef{Kind: descriptor.ValueString, Name: "string"}}},
			Call: func(_ any, args []any) (any, error) {
				msg := dynamic.NewMessage(md)
				if err := msg.UnmarshalJSON([]byte(args[0].(string))); err != nil {
					return nil, fmt.Errorf("decode %s: %w", fqn, err)
				}
				return msg, nil
			},
		},
	)
	for _, fd := range md.GetFields() {
		t.Members = append(t.Members, p.field(fd))
	}
	t.Members = append(t.Members, messageMethods(self)...)
	p.add(t)
}

func isMessage(fqn string) func(any) bool {
	return func(v any) bool {
		m, ok := v.(*dynamic.Message)
		return ok && m != nil && m.GetMessageDescriptor().GetFullyQualifiedName() == fqn
	}
}

func (p *Provider) field(fd *desc.FieldDescriptor) *descriptor.Member {
	m := &descriptor.Member{
		Kind: descriptor.KindField,
		Name: fd.GetName(),
		Type: p.fieldType(fd),
		Get: func(target any) (any, error) {
			msg, err := asMessage(target)
			if err != nil {
				return nil, err
			}
			v, err := msg.TryGetField(fd)
			if err != nil {
				return nil, err
			}
			if fd.GetMessageType() != nil && !fd.IsRepeated() && !msg.HasField(fd) {
				return nil, nil
			}
			return v, nil
		},
	}
	if !fd.IsMap() {
		m.Set = func(target any, value any) error {
			msg, err := asMessage(target)
			if err != nil {
				return err
			}
			if value == nil {
				msg.ClearField(fd)
				return nil
			}
			pv, err := toProto(value, fd)
			if err != nil {
				return fmt.Errorf("field %s: %w", fd.GetName(), err)
			}
			return msg.TrySetField(fd, pv)
		}
	}
	return m
}

func asMessage(target any) (*dynamic.Message, error) {
	msg, ok := target.(*dynamic.Message)
	if !ok || msg == nil {
		return nil, fmt.Errorf("expected a protobuf message, got %T", target)
	}
	return msg, nil
}

var (
	stringRef = descriptor.TypeRef{Kind: descriptor.ValueString, Name: "string"}
	bytesRef  = descriptor.TypeRef{Kind: descriptor.ValueBytes, Name: "bytes"}
	boolRef   = descriptor.TypeRef{Kind: descriptor.ValueBool, Name: "bool"}
)

// messageMethods are the helpers every message type carries.
func messageMethods(self descriptor.TypeRef) []*descriptor.Member {
	method := func(name string, params []descriptor.Param, result *descriptor.TypeRef, fn func(*dynamic.Message, []any) (any, error)) *descriptor.Member {
		return &descriptor.Member{
			Kind: descriptor.KindMethod, Name: name, Params: params, Result: result,
			Call: func(target any, args []any) (any, error) {
				msg, err := asMessage(target)
				if err != nil {
					return nil, err
				}
				return fn(msg, args)
			},
		}
	}
	fieldName := []descriptor.Param{{Name: "field", Type: stringRef}}
	return []*descriptor.Member{
		method("String", nil, &stringRef, func(m *dynamic.Message, _ []any) (any, error) {
			return m.String(), nil
		}),
		method("MarshalJSON", nil, &stringRef, func(m *dynamic.Message, _ []any) (any, error) {
			b, err := m.MarshalJSON()
			return string(b), err
		}),
		method("Marshal", nil, &bytesRef, func(m *dynamic.Message, _ []any) (any, error) {
			return m.Marshal()
		}),
		method("Unmarshal", []descriptor.Param{{Name: "data", Type: bytesRef}}, nil, func(m *dynamic.Message, args []any) (any, error) {
			data, _ := args[0].([]byte)
			return nil, m.Unmarshal(data)
		}),
		method("Reset", nil, nil, func(m *dynamic.Message, _ []any) (any, error) {
			m.Reset()
			return nil, nil
		}),
		method("Has", fieldName, &boolRef, func(m *dynamic.Message, args []any) (any, error) {
			fd, err := findField(m, args[0])
			if err != nil {
				return nil, err
			}
			return m.HasField(fd), nil
		}),
		method("Clear", fieldName, nil, func(m *dynamic.Message, args []any) (any, error) {
			fd, err := findField(m, args[0])
			if err != nil {
				return nil, err
			}
			m.ClearField(fd)
			return nil, nil
		}),
		method("Clone", nil, &self, func(m *dynamic.Message, _ []any) (any, error) {
			out := dynamic.NewMessage(m.GetMessageDescriptor())
			if err := out.MergeFrom(m); err != nil {
				return nil, err
			}
			return out, nil
		}),
	}
}

func findField(m *dynamic.Message, name any) (*desc.FieldDescriptor, error) {
	s, _ := name.(string)
	fd := m.GetMessageDescriptor().FindFieldByName(s)
	if fd == nil {
		return nil, fmt.Errorf("message %s has no field %q", m.GetMessageDescriptor().GetFullyQualifiedName(), s)
	}
	return fd, nil
}

// fieldType maps a proto field to its abstract kind.
func (p *Provider) fieldType(fd *desc.FieldDescriptor) descriptor.TypeRef {
	if fd.IsMap() {
		return descriptor.TypeRef{Kind: descriptor.ValueAny, Name: "map"}
	}
	ref := p.scalarType(fd)
	if fd.IsRepeated() {
		elem := ref
		return descriptor.TypeRef{Kind: descriptor.ValueList, Name: "repeated " + ref.Name, Elem: &elem}
	}
	return ref
}

func (p *Provider) scalarType(fd *desc.FieldDescriptor) descriptor.TypeRef {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_SINT32, descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return descriptor.TypeRef{Kind: descriptor.ValueInt, Name: "int32", Bits: 32}
	case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64, descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return descriptor.TypeRef{Kind: descriptor.ValueInt, Name: "int64", Bits: 64}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return descriptor.TypeRef{Kind: descriptor.ValueUint, Name: "uint32", Bits: 32}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64, descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return descriptor.TypeRef{Kind: descriptor.ValueUint, Name: "uint64", Bits: 64}
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return descriptor.TypeRef{Kind: descriptor.ValueFloat, Name: "float", Bits: 32}
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return descriptor.TypeRef{Kind: descriptor.ValueFloat, Name: "double", Bits: 64}
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return boolRef
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return stringRef
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return bytesRef
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		ed := fd.GetEnumType()
		return descriptor.TypeRef{Kind: descriptor.ValueEnum, Name: ed.GetFullyQualifiedName(), Enum: p.enumTable(ed)}
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		fqn := fd.GetMessageType().GetFullyQualifiedName()
		return descriptor.TypeRef{Kind: descriptor.ValueObject, Name: fqn, Accepts: isMessage(fqn)}
	}
	return descriptor.TypeRef{Kind: descriptor.ValueAny, Name: fd.GetType().String()}
}

// toProto converts a coerced value to the representation dynamic.Message
// expects for fd.
func toProto(v any, fd *desc.FieldDescriptor) (any, error) {
	if fd.IsRepeated() {
		items, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list for repeated field, got %T", v)
		}
		out := make([]any, len(items))
		for i, item := range items {
			pv, err := toProtoScalar(item, fd)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = pv
		}
		return out, nil
	}
	return toProtoScalar(v, fd)
}

func toProtoScalar(v any, fd *desc.FieldDescriptor) (any, error) {
	switch fd.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_INT32, descriptorpb.FieldDescriptorProto_TYPE_SINT32,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED32, descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		n, ok := v.(int64)
		if !ok {
			break
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("%d overflows int32", n)
		}
		return int32(n), nil
	case descriptorpb.FieldDescriptorProto_TYPE_INT64, descriptorpb.FieldDescriptorProto_TYPE_SINT64,
		descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32, descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		n, ok := v.(uint64)
		if !ok {
			break
		}
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("%d overflows uint32", n)
		}
		return uint32(n), nil
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64, descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		if n, ok := v.(uint64); ok {
			return n, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		if f, ok := v.(float64); ok {
			return float32(f), nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		if f, ok := v.(float64); ok {
			return f, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		if isMessage(fd.GetMessageType().GetFullyQualifiedName())(v) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, fd.GetType())
}
