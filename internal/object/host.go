package object

import (
	"context"
	"fmt"
)

// Code is the completion code of a script body or verb.
type Code uint8

const (
	Ok Code = iota
	Error
	Return
	Break
	Continue
)

var codeNames = [...]string{
	Ok:       "ok",
	Error:    "error",
	Return:   "return",
	Break:    "break",
	Continue: "continue",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", c)
}

// ControlError carries a non-Ok completion code out of a host command.
// Hosts unwrap it with errors.As and continue unwinding with Code.
type ControlError struct {
	Code  Code
	Value string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("invoked %q outside of a script body", e.Code.String())
}

// CommandFunc implements a host command.
type CommandFunc func(ctx context.Context, args []string) (string, error)

// Host is the script interpreter the engine is embedded in.
type Host interface {
	GetVar(name string) (string, error)
	SetVar(name, value string) error
	// Evaluate runs a script body. A non-nil error implies Code Error.
	Evaluate(ctx context.Context, body string) (Code, string, error)
	RegisterCommand(name string, fn CommandFunc) error
	RemoveCommand(name string) error
}
