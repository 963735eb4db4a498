// Package invoke calls resolved members and converts whatever the foreign
// side raises into a ForeignInvocationError, exactly once.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/overload"
)

// CodeMapper turns a foreign failure into a numeric error code.
type CodeMapper interface {
	Code(err error) int
}

// CodeMapperFunc adapts a function to CodeMapper.
type CodeMapperFunc func(err error) int

func (f CodeMapperFunc) Code(err error) int { return f(err) }

// DefaultCodes looks for an explicit Code() int method, then a gRPC status,
// then a syscall errno, and falls back to 1.
var DefaultCodes CodeMapper = CodeMapperFunc(defaultCode)

func defaultCode(err error) int {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return int(st.Code())
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 1
}

// Invoker performs foreign calls.
type Invoker struct {
	codes  CodeMapper
	logger *log.Logger
}

// New creates an Invoker. A nil mapper selects DefaultCodes.
func New(codes CodeMapper, logger *log.Logger) *Invoker {
	if codes == nil {
		codes = DefaultCodes
	}
	return &Invoker{codes: codes, logger: logging.Component(logger, "invoke")}
}

// Outcome is the result of a successful call.
type Outcome struct {
	Value   any
	Outputs []descriptor.Output
}

// Call invokes the selected match on target (nil for static members and
// constructors). The context is only consulted before dispatch.
func (iv *Invoker) Call(ctx context.Context, target any, m *overload.Match) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	member := m.Member
	if member.Call == nil {
		return Outcome{}, bridgeerr.Argument("member %q of kind %s cannot be called", member.Name, member.Kind)
	}

	var v any
	err := iv.guard(member.Name, func() error {
		var err error
		v, err = member.Call(target, m.Args)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Value: v}
	for _, slot := range m.Refs {
		if slot.Ref.Set {
			out.Outputs = append(out.Outputs, descriptor.Output{Index: slot.Index, Name: slot.Name, Value: slot.Ref.Value})
		}
	}
	iv.logger.Debug("called", "member", member.Name, "overload", member.Group, "outputs", len(out.Outputs))
	return out, nil
}

// Read gets a field or property value.
func (iv *Invoker) Read(ctx context.Context, target any, member *descriptor.Member) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v any
	var err error
	switch {
	case member.Get != nil:
		err = iv.guard(member.Name, func() error {
			var err error
			v, err = member.Get(target)
			return err
		})
	case member.Kind == descriptor.KindMethod && member.Call != nil:
		err = iv.guard(member.Name, func() error {
			var err error
			v, err = member.Call(target, make([]any, len(member.Params)))
			return err
		})
	default:
		return nil, bridgeerr.Argument("member %q is not readable", member.Name)
	}
	return v, err
}

// Write sets a field or property value.
func (iv *Invoker) Write(ctx context.Context, target any, member *descriptor.Member, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if member.Set == nil {
		return bridgeerr.Argument("member %q is read-only", member.Name)
	}
	return iv.guard(member.Name, func() error { return member.Set(target, value) })
}

// Late runs a provider-resolved call under the same error conversion.
func (iv *Invoker) Late(ctx context.Context, member string, fn func() (any, []descriptor.Output, error)) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	var out Outcome
	err := iv.guard(member, func() error {
		v, outputs, err := fn()
		out = Outcome{Value: v, Outputs: outputs}
		return err
	})
	return out, err
}

// guard runs fn, recovering panics, and converts a failure into a
// ForeignInvocationError unless it already is one or is one of ours.
func (iv *Invoker) guard(member string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = iv.convert(member, fmt.Errorf("panic: %w", cause))
		}
	}()
	if err := fn(); err != nil {
		return iv.convert(member, err)
	}
	return nil
}

func (iv *Invoker) convert(member string, err error) error {
	var fe *bridgeerr.ForeignInvocationError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, bridgeerr.ErrArgument) || errors.Is(err, bridgeerr.ErrNotFound) ||
		errors.Is(err, bridgeerr.ErrAmbiguous) || errors.Is(err, bridgeerr.ErrLifecycle) {
		return err
	}
	code := iv.codes.Code(err)
	iv.logger.Debug("foreign call failed", "member", member, "code", code, "err", err)
	return &bridgeerr.ForeignInvocationError{Member: member, Code: code, Message: err.Error(), Cause: err}
}
