// Package bridgeerr defines the error taxonomy shared by every stage of an
// object invocation: argument validation, resolution, overload selection,
// the foreign call itself and handle lifecycle management.
//
// Each concrete error type matches one of the Err* sentinels through
// errors.Is, so callers can branch on the category without caring about the
// concrete type:
//
//	if errors.Is(err, bridgeerr.ErrNotFound) { ... }
package bridgeerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrArgument  = errors.New("argument error")
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous overload")
	ErrForeign   = errors.New("foreign invocation failed")
	ErrLifecycle = errors.New("lifecycle error")
)

// ArgumentError reports a bad option, a wrong argument count or an argument
// that cannot be used as given.
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string        { return e.Msg }
func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }

// Argument builds an ArgumentError from a format string.
func Argument(format string, args ...any) error {
	return &ArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unresolved type, member, overload or handle.
type NotFoundError struct {
	// What is the category of the missing thing ("type", "member", "object", ...).
	What string
	// Name is the name that failed to resolve.
	Name string
	// Candidates lists what was considered, if anything.
	Candidates []string
	// Detail is appended verbatim when non-empty.
	Detail string
}

func (e *NotFoundError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %q not found", e.What, e.Name)
	if e.Detail != "" {
		sb.WriteString(", ")
		sb.WriteString(e.Detail)
	}
	if len(e.Candidates) > 0 {
		fmt.Fprintf(&sb, " (considered: %s)", strings.Join(e.Candidates, ", "))
	}
	return sb.String()
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError without candidates.
func NotFound(what, name string) error {
	return &NotFoundError{What: what, Name: name}
}

// AmbiguousOverloadError is returned when strict member selection is in
// effect and more than one overload accepted the arguments.
type AmbiguousOverloadError struct {
	Member string
	Type   string
	Count  int
}

func (e *AmbiguousOverloadError) Error() string {
	return fmt.Sprintf("matched %d method overloads of %q on type %q, need exactly 1",
		e.Count, e.Member, e.Type)
}

func (e *AmbiguousOverloadError) Is(target error) bool { return target == ErrAmbiguous }

// ForeignInvocationError wraps a failure raised by the invoked member.
type ForeignInvocationError struct {
	Member  string
	Code    int
	Message string
	Cause   error
}

func (e *ForeignInvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Member, e.Message)
}

func (e *ForeignInvocationError) Unwrap() error        { return e.Cause }
func (e *ForeignInvocationError) Is(target error) bool { return target == ErrForeign }

// LifecycleError reports an illegal handle state transition, such as
// disposing a handle that is still referenced.
type LifecycleError struct {
	Handle   string
	RefCount int
	Msg      string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("object %q %s", e.Handle, e.Msg)
}

func (e *LifecycleError) Is(target error) bool { return target == ErrLifecycle }

// Code returns a short machine-readable category for err, in the spirit of
// a script errorCode: "ARGUMENT", "NOTFOUND", "AMBIGUOUS", "FOREIGN <n>",
// "LIFECYCLE" or "NONE".
func Code(err error) string {
	var fe *ForeignInvocationError
	switch {
	case err == nil:
		return "NONE"
	case errors.As(err, &fe):
		return fmt.Sprintf("FOREIGN %d", fe.Code)
	case errors.Is(err, ErrArgument):
		return "ARGUMENT"
	case errors.Is(err, ErrNotFound):
		return "NOTFOUND"
	case errors.Is(err, ErrAmbiguous):
		return "AMBIGUOUS"
	case errors.Is(err, ErrLifecycle):
		return "LIFECYCLE"
	default:
		return "ERROR"
	}
}
