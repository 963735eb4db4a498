package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/invoke"
	"github.com/funvibe/hostbridge/internal/option"
	"github.com/funvibe/hostbridge/internal/overload"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/resolve"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

func (e *Engine) create(ctx context.Context, req Request) (Result, error) {
	b := req.Options
	q, err := e.typeQuery(b)
	if err != nil {
		return Result{}, err
	}
	typ, err := e.resolver.Type(req.Target, q)
	if err != nil {
		return Result{}, err
	}
	binding, err := e.binding(b)
	if err != nil {
		return Result{}, err
	}
	target := resolve.Target{Type: typ}
	ctors := resolve.Filter(target, "", descriptor.KindConstructor, binding, false)
	if len(ctors) == 0 {
		return Result{}, &bridgeerr.NotFoundError{What: "constructor", Name: typ.FullName(),
			Detail: fmt.Sprintf("flags %s", binding)}
	}
	sel, err := e.selectOverload(b, target, typ.Name, ctors, req.Args, true)
	if err != nil || sel.Selected == nil {
		return e.listMatches(sel), err
	}
	return e.call(ctx, b, target, sel.Selected)
}

func (e *Engine) get(ctx context.Context, req Request) (Result, error) {
	var errs []error
	for _, p := range e.providers {
		act, ok := p.(provider.Activator)
		if !ok {
			continue
		}
		v, typ, err := act.Activate(ctx, req.Target)
		if err != nil {
			if !errors.Is(err, bridgeerr.ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		var declared *descriptor.TypeRef
		if typ != nil && typ.Enum != nil {
			declared = &descriptor.TypeRef{Kind: descriptor.ValueEnum, Enum: typ.Enum}
		}
		mv, err := e.mat.Materialize(v, declared, e.resultOptions(req.Options))
		if err != nil {
			return Result{}, err
		}
		return Result{Value: mv.Text}, nil
	}
	if len(errs) > 0 {
		return Result{}, errors.Join(errs...)
	}
	return Result{}, bridgeerr.NotFound("object", req.Target)
}

func (e *Engine) invoke(ctx context.Context, req Request) (Result, error) {
	b := req.Options
	switch {
	case b.Has("-invokeall"):
		group := tcllist.Join(append([]string{req.Member}, req.Args...))
		fwd := req
		fwd.Member, fwd.Args = "", []string{group}
		fwd.Options = b.Without("-invokeall")
		return e.Execute(ctx, VerbInvokeAll, fwd)
	case b.Has("-invokeraw"):
		fwd := req
		fwd.Options = b.Without("-invokeraw")
		return e.Execute(ctx, VerbInvokeRaw, fwd)
	}

	q, err := e.typeQuery(b)
	if err != nil {
		return Result{}, err
	}
	target, err := e.resolver.Target(req.Target, q)
	if err != nil {
		return Result{}, err
	}
	switch {
	case b.Has("-identity"):
		if !target.HasInstance {
			return Result{Value: target.Type.FullName()}, nil
		}
		if target.Handle != "" {
			return Result{Value: target.Handle}, nil
		}
		mv, err := e.mat.Materialize(target.Value, nil, e.resultOptions(b))
		if err != nil {
			return Result{}, err
		}
		return Result{Value: mv.Text}, nil
	case b.Has("-typeidentity"):
		return Result{Value: target.Type.FullName()}, nil
	}

	kinds, err := e.memberKinds(b, descriptor.KindInvoke)
	if err != nil {
		return Result{}, err
	}
	binding, err := e.binding(b)
	if err != nil {
		return Result{}, err
	}
	policy, err := e.nullPolicy(b, e.cfg.Invoke.StopOnNullObject)
	if err != nil {
		return Result{}, err
	}
	members, err := e.resolver.Members(ctx, target, resolve.MemberQuery{
		Path:       req.Member,
		Kinds:      kinds,
		Binding:    binding,
		NoCase:     q.NoCase,
		NoNested:   b.Has("-nonestedobject"),
		NullPolicy: policy,
	})
	if err != nil {
		return Result{}, err
	}
	if members.Null {
		return Result{Value: e.mat.String(nil, nil)}, nil
	}

	if first := members.Candidates[0]; first.Kind == descriptor.KindField && !b.Has("-noinvoke") {
		return e.field(ctx, b, members.Target, first, req.Args)
	}

	args := req.Args
	if b.Has("-noargs") {
		args = nil
	} else if args == nil {
		args = []string{}
	}
	sel, err := e.selectOverload(b, members.Target, members.Name, members.Candidates, args, !b.Has("-noinvoke"))
	if err != nil {
		return Result{}, err
	}
	if b.Has("-noinvoke") || sel.Selected == nil {
		return e.listMatches(sel), nil
	}
	return e.call(ctx, b, members.Target, sel.Selected)
}

// field reads a field with no arguments and writes it with one.
func (e *Engine) field(ctx context.Context, b option.Bag, target resolve.Target, m *descriptor.Member, args []string) (Result, error) {
	recv := instance(target)
	switch len(args) {
	case 0:
		v, err := e.invoker.Read(ctx, recv, m)
		if err != nil {
			return Result{}, err
		}
		typ := m.Type
		mv, err := e.mat.Materialize(v, &typ, e.resultOptions(b))
		if err != nil {
			return Result{}, err
		}
		return Result{Value: mv.Text}, nil
	case 1:
		cv, err := e.coercer(b).Coerce(0, args[0], descriptor.Param{Name: m.Name, Type: m.Type})
		if err != nil {
			return Result{}, bridgeerr.Argument("field %q: %v", m.Name, err)
		}
		if err := e.invoker.Write(ctx, recv, m, cv.V); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}
	return Result{}, bridgeerr.Argument("wrong # args: field %q takes at most one value", m.Name)
}

func (e *Engine) selectOverload(b option.Bag, target resolve.Target, name string, cands []*descriptor.Member, args []string, invoking bool) (overload.Result, error) {
	idx, hasIdx := b.Int("-index")
	limit, _ := b.Int("-limit")
	res, err := overload.Resolve(e.coercer(b), overload.Request{
		Member:     name,
		Type:       target.Type.FullName(),
		Candidates: cands,
		Args:       args,
		Index:      idx,
		HasIndex:   hasIdx,
		Invoke:     invoking,
		Strict:     b.Has("-strictmember") || e.cfg.Engine.StrictMember,
		Reorder:    b.Has("-reorder") || e.cfg.Engine.Reorder,
		Limit:      limit,
	})
	if err != nil {
		return res, err
	}
	if res.Selected != nil {
		e.logger.Debug("overload selected", "type", target.Type.FullName(), "member", name,
			"signature", res.Selected.Member.Signature(), "matched", len(res.Matches))
	}
	return res, nil
}

func (e *Engine) listMatches(res overload.Result) Result {
	sigs := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		sigs[i] = m.Member.Signature()
	}
	return Result{Value: tcllist.Join(sigs)}
}

// call invokes the selected match, writes back linked arrays and
// materializes the result and by-ref outputs.
func (e *Engine) call(ctx context.Context, b option.Bag, target resolve.Target, m *overload.Match) (Result, error) {
	out, err := e.invoker.Call(ctx, instance(target), m)
	if err != nil {
		return Result{}, err
	}
	for _, link := range m.Links {
		if err := e.host.SetVar(link.Var, e.mat.String(link.Ref.Value, nil)); err != nil {
			return Result{}, fmt.Errorf("writing linked variable %q: %w", link.Var, err)
		}
	}
	void := m.Member.Result == nil && m.Member.Kind != descriptor.KindConstructor
	return e.finish(b, out, m.Member.Result, void)
}

// finish materializes a call outcome. A nil result of a member declared
// without one is rendered as the empty string.
func (e *Engine) finish(b option.Bag, out invoke.Outcome, declared *descriptor.TypeRef, void bool) (Result, error) {
	opts := e.resultOptions(b)
	var res Result
	if !void || out.Value != nil {
		mv, err := e.mat.Materialize(out.Value, declared, opts)
		if err != nil {
			return Result{}, err
		}
		res.Value = mv.Text
	}
	if len(out.Outputs) == 0 {
		return res, nil
	}

	var vars []string
	if names, ok := b.String("-byrefvars"); ok {
		var err error
		if vars, err = splitList(names); err != nil {
			return Result{}, err
		}
		if e.host == nil {
			return Result{}, bridgeerr.Argument("-byrefvars needs a host")
		}
	}
	opts.ObjectName = ""
	for i, o := range out.Outputs {
		ov, err := e.mat.Materialize(o.Value, nil, opts)
		if err != nil {
			return Result{}, err
		}
		if i < len(vars) {
			if err := e.host.SetVar(vars[i], ov.Text); err != nil {
				return Result{}, fmt.Errorf("writing by-ref variable %q: %w", vars[i], err)
			}
			continue
		}
		res.Outputs = append(res.Outputs, Output{Index: o.Index, Name: o.Name, Text: ov.Text})
	}
	return res, nil
}

func (e *Engine) invokeRaw(ctx context.Context, req Request) (Result, error) {
	b := req.Options
	q, err := e.typeQuery(b)
	if err != nil {
		return Result{}, err
	}
	target, err := e.resolver.Target(req.Target, q)
	if err != nil {
		return Result{}, err
	}
	lb, ok := e.providers.Owner(target.Type).(provider.LateBinder)
	if !ok {
		return Result{}, bridgeerr.Argument("type %q does not support raw invocation", target.Type.FullName())
	}
	kinds, err := e.memberKinds(b, descriptor.KindInvoke)
	if err != nil {
		return Result{}, err
	}
	out, err := e.invoker.Late(ctx, req.Member, func() (any, []descriptor.Output, error) {
		return lb.InvokeLate(ctx, instance(target), target.Type, req.Member, kinds, req.Args)
	})
	if err != nil {
		return Result{}, err
	}
	return e.finish(b, out, nil, false)
}

type stepResult struct {
	code  Code
	value string
}

func (e *Engine) invokeAll(ctx context.Context, req Request) (Result, error) {
	b := req.Options
	stepOpts := b.Without("-chained", "-nocomplain", "-keepresults", "-lastresult")
	if !stepOpts.Has("-nullpolicy") {
		stepOpts.Set("-nullpolicy", e.cfg.InvokeAll.StopOnNullObject)
	}
	// An explicit handle name belongs to the final result only.
	innerOpts := stepOpts.Without("-objectname")

	target := req.Target
	var (
		steps  []stepResult
		errCnt int
	)
	for i, group := range req.Args {
		words, err := tcllist.Split(group)
		if err != nil {
			return Result{}, bridgeerr.Argument("step %d: %v", i+1, err)
		}
		if len(words) == 0 {
			return Result{}, bridgeerr.Argument("step %d: missing member name", i+1)
		}
		opts := innerOpts
		if i == len(req.Args)-1 {
			opts = stepOpts
		}
		res, err := e.Execute(ctx, VerbInvoke, Request{
			Target:  target,
			Member:  words[0],
			Args:    words[1:],
			Options: opts,
		})
		if err == nil && b.Has("-chained") && i < len(req.Args)-1 {
			if _, ok := e.handles.Lookup(res.Value); !ok {
				err = bridgeerr.Argument("step %d: %q did not return an object", i+1, words[0])
			} else {
				target = res.Value
			}
		}
		if err != nil {
			errCnt++
			if !b.Has("-nocomplain") {
				return Result{ErrorCount: errCnt}, fmt.Errorf("invokeall step %d (%s): %w", i+1, words[0], err)
			}
			steps = append(steps, stepResult{code: Error, value: err.Error()})
			if b.Has("-chained") {
				break
			}
			continue
		}
		steps = append(steps, stepResult{code: Ok, value: res.Value})
	}

	out := Result{ErrorCount: errCnt}
	switch {
	case b.Has("-lastresult"):
		if len(steps) > 0 {
			out.Value = steps[len(steps)-1].value
		}
	case b.Has("-keepresults"):
		pairs := make([]string, len(steps))
		for i, s := range steps {
			pairs[i] = tcllist.Join([]string{s.code.String(), s.value})
		}
		out.Value = tcllist.Join(pairs)
	default:
		values := make([]string, len(steps))
		for i, s := range steps {
			values[i] = s.value
		}
		out.Value = tcllist.Join(values)
	}
	return out, nil
}

func instance(t resolve.Target) any {
	if t.HasInstance {
		return t.Value
	}
	return nil
}

func (e *Engine) memberKinds(b option.Bag, def descriptor.MemberKind) (descriptor.MemberKind, error) {
	s, ok := b.String("-membertypes")
	if !ok {
		return def, nil
	}
	k, err := descriptor.ParseMemberKind(s)
	if err != nil {
		return 0, bridgeerr.Argument("%v", err)
	}
	return k, nil
}

func (e *Engine) binding(b option.Bag) (descriptor.Binding, error) {
	s, ok := b.String("-flags")
	if !ok {
		return descriptor.BindDefault, nil
	}
	bind, err := descriptor.ParseBinding(s)
	if err != nil {
		return 0, bridgeerr.Argument("%v", err)
	}
	return bind, nil
}

func (e *Engine) nullPolicy(b option.Bag, def string) (resolve.NullPolicy, error) {
	return resolve.ParseNullPolicy(b.StringOr("-nullpolicy", def))
}

func splitList(s string) ([]string, error) {
	words, err := tcllist.Split(s)
	if err != nil {
		return nil, bridgeerr.Argument("%v", err)
	}
	return words, nil
}
