package object

import (
	"slices"
	"sort"

	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/resolve"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

func (e *Engine) members(req Request) (Result, error) {
	b := req.Options
	q, err := e.typeQuery(b)
	if err != nil {
		return Result{}, err
	}
	target, err := e.resolver.Target(req.Target, q)
	if err != nil {
		return Result{}, err
	}
	kinds, err := e.memberKinds(b, descriptor.KindAll)
	if err != nil {
		return Result{}, err
	}
	binding, err := e.binding(b)
	if err != nil {
		return Result{}, err
	}
	// A type name lists instance members too.
	target.HasInstance = true

	pattern := b.StringOr("-pattern", "")
	var out []string
	seen := make(map[string]bool)
	for _, m := range resolve.Filter(target, "", kinds, binding, false) {
		ok, err := handle.Match(pattern, m.Name, q.NoCase)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}
		text := m.Name
		if b.Has("-signatures") {
			text = m.Signature()
		}
		if b.Has("-qualified") {
			text = m.DeclaringType + "." + text
		}
		if seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
	}
	return Result{Value: tcllist.Join(out)}, nil
}

func (e *Engine) typeOf(req Request) (Result, error) {
	if entry, ok := e.handles.Lookup(req.Target); ok {
		if entry.Type == nil {
			if t := e.providers.TypeOf(entry.Value); t != nil {
				return Result{Value: t.FullName()}, nil
			}
		}
		return Result{Value: entry.TypeName()}, nil
	}
	q, err := e.typeQuery(req.Options)
	if err != nil {
		return Result{}, err
	}
	typ, err := e.resolver.Type(req.Target, q)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: typ.FullName()}, nil
}

func (e *Engine) isOfType(req Request) (Result, error) {
	entry, err := e.handles.Get(req.Target)
	if err != nil {
		return Result{}, err
	}
	q, err := e.typeQuery(req.Options)
	if err != nil {
		return Result{}, err
	}
	typ, err := e.resolver.Type(req.Member, q)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: boolValue(typ.IsInstance(entry.Value))}, nil
}

func (e *Engine) search(req Request) (Result, error) {
	pattern := ""
	if len(req.Args) == 1 {
		pattern = req.Args[0]
	}
	var out []string
	for _, t := range e.providers.All() {
		ok, err := handle.Match(pattern, t.FullName(), req.Options.Has("-nocase"))
		if err != nil {
			return Result{}, err
		}
		if ok {
			out = append(out, t.FullName())
		}
	}
	sort.Strings(out)
	return Result{Value: tcllist.Join(slices.Compact(out))}, nil
}

func (e *Engine) importNamespaces(req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ns := range req.Args {
		if !slices.Contains(e.imports, ns) {
			e.imports = append(e.imports, ns)
		}
	}
	return Result{Value: tcllist.Join(e.imports)}, nil
}

// unimport removes the imports matching any of the given patterns, or all
// imports when none are given.
func (e *Engine) unimport(req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var kept []string
	for _, ns := range e.imports {
		drop := len(req.Args) == 0
		for _, pattern := range req.Args {
			ok, err := handle.Match(pattern, ns, req.Options.Has("-nocase"))
			if err != nil {
				return Result{}, err
			}
			if ok {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, ns)
		}
	}
	e.imports = kept
	return Result{Value: tcllist.Join(e.imports)}, nil
}

func (e *Engine) listImports() (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Result{Value: tcllist.Join(e.imports)}, nil
}
