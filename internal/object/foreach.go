package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

// loop implements foreach and lmap: each element of an enumerable object is
// materialized, bound to a variable and the body evaluated. Handles minted
// for an element are removed after its iteration (without releasing the
// value) unless the body took a reference or -nocollect is given.
func (e *Engine) loop(ctx context.Context, req Request, collect bool) (Result, error) {
	if e.host == nil {
		return Result{}, bridgeerr.Argument("object foreach needs a host")
	}
	entry, err := e.handles.Get(req.Target)
	if err != nil {
		return Result{}, err
	}
	seq, ok := e.providers.Enumerate(entry.Value)
	if !ok {
		return Result{}, bridgeerr.Argument("object %q (%s) is not enumerable", entry.Name, entry.TypeName())
	}

	opts := e.resultOptions(req.Options)
	opts.Temporary = true
	opts.ObjectName = ""
	keep := req.Options.Has("-nocollect")

	var (
		results []string
		code    = Ok
		value   string
		loopErr error
	)
	for elem := range seq {
		mv, err := e.mat.Materialize(elem, nil, opts)
		if err != nil {
			loopErr = err
			break
		}
		if err := e.host.SetVar(req.Var, mv.Text); err != nil {
			loopErr = fmt.Errorf("setting loop variable %q: %w", req.Var, err)
			break
		}

		c, res, err := e.host.Evaluate(ctx, req.Body)
		if mv.Created && !keep {
			e.collect(mv.Handle)
		}
		if err != nil {
			loopErr = err
			break
		}
		switch c {
		case Ok:
			if collect {
				results = append(results, res)
			}
		case Continue:
		case Break:
		case Return:
			code, value = Return, res
		case Error:
			loopErr = errors.New(res)
		}
		if c == Break || c == Return || c == Error {
			break
		}
	}
	if loopErr != nil {
		return Result{}, loopErr
	}
	if code == Return {
		return Result{Code: Return, Value: value}, nil
	}
	if collect {
		return Result{Value: tcllist.Join(results)}, nil
	}
	return Result{}, nil
}

// collect removes a per-iteration handle unless it gained references.
func (e *Engine) collect(name string) {
	_, err := e.handles.Dispose(name, handle.DisposeOptions{NoDispose: true, Synchronous: true})
	if err == nil {
		return
	}
	if errors.Is(err, bridgeerr.ErrLifecycle) {
		_ = e.handles.ClearFlags(name, handle.FlagTemporary)
		return
	}
	e.logger.Warn("collecting loop handle failed", "handle", name, "err", err)
}
