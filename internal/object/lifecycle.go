package object

import (
	"strconv"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/materialize"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

func statsValue(st handle.Stats, extra ...string) string {
	words := []string{"removed", strconv.Itoa(st.Removed), "disposed", strconv.Itoa(st.Disposed)}
	return tcllist.Join(append(words, extra...))
}

func (e *Engine) dispose(req Request) (Result, error) {
	b := req.Options
	opts := handle.DisposeOptions{
		Force:       b.Has("-force"),
		NoDispose:   b.Has("-nodispose"),
		Synchronous: b.Has("-synchronous") || e.cfg.Handles.Synchronous,
	}
	var total handle.Stats
	for _, name := range req.Args {
		st, err := e.handles.Dispose(name, opts)
		if err != nil {
			if b.Has("-nocomplain") {
				continue
			}
			return Result{Value: statsValue(total)}, err
		}
		total.Add(st)
	}
	return Result{Value: statsValue(total)}, nil
}

func (e *Engine) cleanup(req Request) (Result, error) {
	b := req.Options
	minRefs, _ := b.Int("-referencecount")
	res, err := e.handles.Cleanup(handle.CleanupOptions{
		Pattern:     b.StringOr("-pattern", ""),
		NoCase:      b.Has("-nocase"),
		MinRefCount: minRefs,
		Force:       b.Has("-references"),
		NoRemove:    b.Has("-noremove"),
		NoDispose:   b.Has("-nodispose"),
		Synchronous: b.Has("-synchronous") || e.cfg.Handles.Synchronous,
		StopOnError: !b.Has("-nocomplain"),
	})
	if err != nil {
		return Result{Value: statsValue(res.Stats, "skipped", strconv.Itoa(res.Skipped))}, err
	}
	return Result{Value: statsValue(res.Stats, "skipped", strconv.Itoa(res.Skipped))}, nil
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (e *Engine) exists(req Request) (Result, error) {
	_, ok := e.handles.Lookup(req.Target)
	return Result{Value: boolValue(ok)}, nil
}

func (e *Engine) isNull(req Request) (Result, error) {
	if req.Target == e.mat.String(nil, nil) {
		return Result{Value: "1"}, nil
	}
	entry, ok := e.handles.Lookup(req.Target)
	return Result{Value: boolValue(ok && entry.Value == nil)}, nil
}

func (e *Engine) addRef(req Request) (Result, error) {
	n, err := e.handles.AddRef(req.Target)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: strconv.Itoa(n)}, nil
}

func (e *Engine) removeRef(req Request) (Result, error) {
	n, err := e.handles.ReleaseRef(req.Target)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: strconv.Itoa(n)}, nil
}

func (e *Engine) refCount(req Request) (Result, error) {
	n, err := e.handles.RefCount(req.Target)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: strconv.Itoa(n)}, nil
}

func (e *Engine) alias(req Request) (Result, error) {
	entry, err := e.handles.Get(req.Target)
	if err != nil {
		return Result{}, err
	}
	if entry.AliasName != "" {
		return Result{Value: entry.AliasName}, nil
	}
	mode := materialize.AliasInvoke
	switch {
	case req.Options.Has("-aliasraw"):
		mode = materialize.AliasInvokeRaw
	case req.Options.Has("-aliasall"):
		mode = materialize.AliasInvokeAll
	}
	cmd, err := e.registerAlias(entry, mode)
	if err != nil {
		return Result{}, err
	}
	if err := e.handles.SetAlias(entry.Name, cmd); err != nil {
		return Result{}, err
	}
	return Result{Value: cmd}, nil
}

func (e *Engine) unalias(req Request) (Result, error) {
	entry, err := e.handles.Get(req.Target)
	if err != nil {
		return Result{}, err
	}
	if entry.AliasName == "" {
		return Result{}, bridgeerr.Argument("object %q has no alias", entry.Name)
	}
	if e.host != nil {
		if err := e.host.RemoveCommand(entry.AliasName); err != nil {
			return Result{}, err
		}
	}
	return Result{}, e.handles.SetAlias(entry.Name, "")
}

func (e *Engine) names(req Request) (Result, error) {
	pattern := ""
	if len(req.Args) == 1 {
		pattern = req.Args[0]
	}
	names, err := e.handles.Names(pattern, req.Options.Has("-nocase"))
	if err != nil {
		return Result{}, err
	}
	return Result{Value: tcllist.Join(names)}, nil
}
