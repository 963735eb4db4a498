// Package shell is a small Tcl-like command interpreter that hosts the
// object engine.
//
// Scripts are commands separated by newlines or semicolons. Words are
// grouped with braces (literal) or double quotes, and $name, ${name} and
// [script] are substituted outside braces. There is no expression
// evaluator; control flow comes from the object verbs (foreach, lmap)
// and catch.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/object"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

var _ object.Host = (*Shell)(nil)

// MaxNesting bounds recursive evaluation through command substitution,
// catch and engine callbacks.
const MaxNesting = 1000

// Shell is an interpreter instance. It is safe for concurrent use, though
// scripts see each other's variables.
type Shell struct {
	out    io.Writer
	logger *log.Logger

	mu   sync.RWMutex
	vars map[string]string
	cmds map[string]object.CommandFunc
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the shell logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Shell) { s.logger = l }
}

// New creates a shell whose puts command writes to out.
func New(out io.Writer, opts ...Option) *Shell {
	s := &Shell{
		out:  out,
		vars: make(map[string]string),
		cmds: make(map[string]object.CommandFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = logging.Component(s.logger, "shell")
	s.builtins()
	return s
}

func (s *Shell) GetVar(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	if !ok {
		return "", fmt.Errorf("can't read %q: no such variable", name)
	}
	return v, nil
}

func (s *Shell) SetVar(name, value string) error {
	if name == "" {
		return fmt.Errorf("empty variable name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
	return nil
}

// RegisterCommand adds or replaces a command.
func (s *Shell) RegisterCommand(name string, fn object.CommandFunc) error {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("bad command name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds[name] = fn
	return nil
}

func (s *Shell) RemoveCommand(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cmds[name]; !ok {
		return fmt.Errorf("can't delete %q: command doesn't exist", name)
	}
	delete(s.cmds, name)
	return nil
}

// Commands lists the registered command names.
func (s *Shell) Commands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.cmds))
}

type nestingKey struct{}

// Evaluate runs a script and returns the result of its last command.
func (s *Shell) Evaluate(ctx context.Context, body string) (object.Code, string, error) {
	return s.eval(ctx, body)
}

func (s *Shell) eval(ctx context.Context, body string) (object.Code, string, error) {
	depth, _ := ctx.Value(nestingKey{}).(int)
	if depth >= MaxNesting {
		return object.Error, "", fmt.Errorf("too many nested evaluations (infinite loop?)")
	}
	ctx = context.WithValue(ctx, nestingKey{}, depth+1)

	cmds, err := splitCommands(body)
	if err != nil {
		return object.Error, "", err
	}
	var result string
	for _, text := range cmds {
		if err := ctx.Err(); err != nil {
			return object.Error, "", err
		}
		p := &wordParser{sh: s, ctx: ctx, input: text}
		words, err := p.words()
		if err != nil {
			return object.Error, "", err
		}
		if len(words) == 0 {
			continue
		}
		code, res, err := s.dispatch(ctx, words)
		if err != nil || code != object.Ok {
			return code, res, err
		}
		result = res
	}
	return object.Ok, result, nil
}

func (s *Shell) dispatch(ctx context.Context, words []string) (object.Code, string, error) {
	switch words[0] {
	case "break":
		return object.Break, "", nil
	case "continue":
		return object.Continue, "", nil
	case "return":
		return object.Return, strings.Join(words[1:], " "), nil
	case "error":
		if len(words) != 2 {
			return object.Error, "", fmt.Errorf(`wrong # args: should be "error message"`)
		}
		return object.Error, words[1], fmt.Errorf("%s", words[1])
	case "catch":
		return s.catch(ctx, words[1:])
	}

	s.mu.RLock()
	fn, ok := s.cmds[words[0]]
	s.mu.RUnlock()
	if !ok {
		return object.Error, "", fmt.Errorf("invalid command name %q", words[0])
	}
	res, err := fn(ctx, words[1:])
	var ce *object.ControlError
	if errors.As(err, &ce) {
		return ce.Code, ce.Value, nil
	}
	if err != nil {
		s.logger.Debug("command failed", "command", words[0], "err", err)
		return object.Error, err.Error(), err
	}
	return object.Ok, res, nil
}

// catch evaluates a script and returns its completion code as a number,
// storing the result or error message in varName when given.
func (s *Shell) catch(ctx context.Context, args []string) (object.Code, string, error) {
	if len(args) < 1 || len(args) > 2 {
		return object.Error, "", fmt.Errorf(`wrong # args: should be "catch script ?varName?"`)
	}
	code, res, err := s.eval(ctx, args[0])
	if err != nil {
		res = err.Error()
	}
	if len(args) == 2 {
		if err := s.SetVar(args[1], res); err != nil {
			return object.Error, "", err
		}
	}
	return object.Ok, strconv.Itoa(int(code)), nil
}

func (s *Shell) builtins() {
	s.cmds["set"] = func(_ context.Context, args []string) (string, error) {
		switch len(args) {
		case 1:
			return s.GetVar(args[0])
		case 2:
			return args[1], s.SetVar(args[0], args[1])
		}
		return "", fmt.Errorf(`wrong # args: should be "set varName ?newValue?"`)
	}
	s.cmds["unset"] = func(_ context.Context, args []string) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, name := range args {
			delete(s.vars, name)
		}
		return "", nil
	}
	s.cmds["incr"] = func(_ context.Context, args []string) (string, error) {
		if len(args) < 1 || len(args) > 2 {
			return "", fmt.Errorf(`wrong # args: should be "incr varName ?increment?"`)
		}
		by := int64(1)
		if len(args) == 2 {
			n, err := strconv.ParseInt(args[1], 0, 64)
			if err != nil {
				return "", fmt.Errorf("expected integer but got %q", args[1])
			}
			by = n
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		cur := int64(0)
		if v, ok := s.vars[args[0]]; ok {
			n, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return "", fmt.Errorf("expected integer but got %q", v)
			}
			cur = n
		}
		res := strconv.FormatInt(cur+by, 10)
		s.vars[args[0]] = res
		return res, nil
	}
	s.cmds["append"] = func(_ context.Context, args []string) (string, error) {
		if len(args) < 1 {
			return "", fmt.Errorf(`wrong # args: should be "append varName ?value ...?"`)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		v := s.vars[args[0]] + strings.Join(args[1:], "")
		s.vars[args[0]] = v
		return v, nil
	}
	s.cmds["puts"] = func(_ context.Context, args []string) (string, error) {
		newline := true
		if len(args) == 2 && args[0] == "-nonewline" {
			newline = false
			args = args[1:]
		}
		if len(args) != 1 {
			return "", fmt.Errorf(`wrong # args: should be "puts ?-nonewline? string"`)
		}
		text := args[0]
		if newline {
			text += "\n"
		}
		_, err := io.WriteString(s.out, text)
		return "", err
	}
	s.cmds["list"] = func(_ context.Context, args []string) (string, error) {
		return tcllist.Join(args), nil
	}
	s.cmds["llength"] = func(_ context.Context, args []string) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf(`wrong # args: should be "llength list"`)
		}
		elems, err := tcllist.Split(args[0])
		if err != nil {
			return "", err
		}
		return strconv.Itoa(len(elems)), nil
	}
	s.cmds["lindex"] = func(_ context.Context, args []string) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf(`wrong # args: should be "lindex list index"`)
		}
		elems, err := tcllist.Split(args[0])
		if err != nil {
			return "", err
		}
		i, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("bad index %q", args[1])
		}
		if i < 0 || i >= len(elems) {
			return "", nil
		}
		return elems[i], nil
	}
	s.cmds["concat"] = func(_ context.Context, args []string) (string, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			if a = strings.TrimSpace(a); a != "" {
				parts = append(parts, a)
			}
		}
		return strings.Join(parts, " "), nil
	}
}
