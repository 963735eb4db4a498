// Package resolve finds the foreign type or live object a request names and
// the member candidates a member path selects on it.
package resolve

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/invoke"
	"github.com/funvibe/hostbridge/internal/provider"
)

// NullPolicy decides what a nil intermediate value in a member path does.
// The zero value is not a valid policy.
type NullPolicy uint8

const (
	// NullFail reports an error.
	NullFail NullPolicy = iota + 1
	// NullIgnore stops resolution and reports a null result.
	NullIgnore
)

func (p NullPolicy) String() string {
	switch p {
	case NullFail:
		return "fail"
	case NullIgnore:
		return "ignore"
	}
	return fmt.Sprintf("NullPolicy(%d)", p)
}

// ParseNullPolicy maps a configuration string to a policy.
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch strings.ToLower(s) {
	case "fail":
		return NullFail, nil
	case "ignore":
		return NullIgnore, nil
	}
	return 0, bridgeerr.Argument("bad null policy %q, must be fail or ignore", s)
}

// Target is the receiver of a request: a type, and an instance when the
// request named a live handle.
type Target struct {
	Type        *descriptor.Type
	Value       any
	HasInstance bool
	// Handle is the handle name the target came from, if any.
	Handle string
}

// Resolver resolves names against a provider set and a handle registry.
type Resolver struct {
	Providers provider.Set
	Handles   *handle.Registry
	Invoker   *invoke.Invoker
}

// TypeQuery controls type lookup.
type TypeQuery struct {
	Imports []string
	NoCase  bool
}

// Target resolves name as a live handle first and as a type name second.
func (r *Resolver) Target(name string, q TypeQuery) (Target, error) {
	if r.Handles != nil {
		if e, ok := r.Handles.Lookup(name); ok {
			typ := e.Type
			if typ == nil {
				typ = r.Providers.TypeOf(e.Value)
			}
			if typ == nil {
				return Target{}, &bridgeerr.NotFoundError{What: "type of object", Name: name, Detail: fmt.Sprintf("no provider describes %T", e.Value)}
			}
			return Target{Type: typ, Value: e.Value, HasInstance: true, Handle: name}, nil
		}
	}
	typ, err := r.Type(name, q)
	if err != nil {
		return Target{}, err
	}
	return Target{Type: typ}, nil
}

// Type resolves a type name. A qualified name must match a full name; a
// simple name is tried bare and then under each imported namespace.
// Exactly one type must match.
func (r *Resolver) Type(name string, q TypeQuery) (*descriptor.Type, error) {
	if name == "" {
		return nil, bridgeerr.Argument("empty type name")
	}
	tried := []string{name}
	if !strings.Contains(name, ".") {
		for _, ns := range q.Imports {
			tried = append(tried, ns+"."+name)
		}
	}

	var found []*descriptor.Type
	seen := make(map[*descriptor.Type]bool)
	for _, typ := range r.Providers.All() {
		full := typ.FullName()
		for _, want := range tried {
			if full == want || (q.NoCase && strings.EqualFold(full, want)) {
				if !seen[typ] {
					seen[typ] = true
					found = append(found, typ)
				}
				break
			}
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, &bridgeerr.NotFoundError{What: "type", Name: name, Candidates: tried}
	}
	names := make([]string, len(found))
	for i, t := range found {
		names[i] = t.FullName()
	}
	sort.Strings(names)
	return nil, &bridgeerr.NotFoundError{What: "type", Name: name, Detail: "name is ambiguous", Candidates: names}
}

// MemberQuery controls member lookup.
type MemberQuery struct {
	// Path is a member name, or a dotted path whose leading segments are
	// read in turn.
	Path    string
	Kinds   descriptor.MemberKind
	Binding descriptor.Binding
	NoCase  bool
	// NoNested treats Path as a single member name.
	NoNested   bool
	NullPolicy NullPolicy
}

// Members is the result of member resolution.
type Members struct {
	// Target is the receiver of the final segment.
	Target Target
	// Name is the final segment.
	Name       string
	Candidates []*descriptor.Member
	// Null is set when NullIgnore stopped resolution at a nil value.
	Null bool
}

// Members resolves a member path on target.
func (r *Resolver) Members(ctx context.Context, target Target, q MemberQuery) (Members, error) {
	if q.NullPolicy != NullFail && q.NullPolicy != NullIgnore {
		return Members{}, bridgeerr.Argument("null policy must be fail or ignore")
	}
	if q.Path == "" {
		return Members{}, bridgeerr.Argument("empty member name")
	}

	segments := []string{q.Path}
	if !q.NoNested {
		segments = strings.Split(q.Path, ".")
	}

	cur := target
	for i, seg := range segments[:len(segments)-1] {
		v, err := r.step(ctx, cur, seg, q)
		if err != nil {
			return Members{}, err
		}
		if isNil(v) {
			walked := strings.Join(segments[:i+1], ".")
			if q.NullPolicy == NullIgnore {
				return Members{Target: cur, Name: segments[len(segments)-1], Null: true}, nil
			}
			return Members{}, bridgeerr.Argument("member %q of %q is null", walked, target.Type.FullName())
		}
		typ := r.Providers.TypeOf(v)
		if typ == nil {
			return Members{}, &bridgeerr.NotFoundError{What: "type of member", Name: seg, Detail: fmt.Sprintf("no provider describes %T", v)}
		}
		cur = Target{Type: typ, Value: v, HasInstance: true}
	}

	name := segments[len(segments)-1]
	cands := Filter(cur, name, q.Kinds, q.Binding, q.NoCase)
	if len(cands) == 0 {
		return Members{}, &bridgeerr.NotFoundError{
			What:   "member",
			Name:   name,
			Detail: fmt.Sprintf("type %q, member types %s, flags %s", cur.Type.FullName(), q.Kinds, q.Binding),
		}
	}
	var expanded []*descriptor.Member
	for _, m := range cands {
		expanded = append(expanded, m.Accessors()...)
	}
	return Members{Target: cur, Name: name, Candidates: expanded}, nil
}

// isNil reports nil and typed nil values (a nil *T boxed in any).
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// step reads one intermediate segment.
func (r *Resolver) step(ctx context.Context, cur Target, seg string, q MemberQuery) (any, error) {
	cands := Filter(cur, seg, descriptor.KindField|descriptor.KindProperty|descriptor.KindMethod, q.Binding, q.NoCase)
	for _, m := range cands {
		switch {
		case m.Kind == descriptor.KindField || m.Kind == descriptor.KindProperty:
			if m.Get != nil {
				return r.Invoker.Read(ctx, cur.Value, m)
			}
		case m.Kind == descriptor.KindMethod && len(m.Params) == 0:
			return r.Invoker.Read(ctx, cur.Value, m)
		}
	}
	return nil, &bridgeerr.NotFoundError{
		What:   "member",
		Name:   seg,
		Detail: fmt.Sprintf("type %q has no readable member of that name", cur.Type.FullName()),
	}
}

// Filter returns the members of target's type named name (any name when
// empty) that match kinds and binding and are reachable from the target.
func Filter(target Target, name string, kinds descriptor.MemberKind, binding descriptor.Binding, nocase bool) []*descriptor.Member {
	var out []*descriptor.Member
	for _, m := range target.Type.Members {
		if name != "" && m.Name != name && !(nocase && strings.EqualFold(m.Name, name)) {
			continue
		}
		if m.Kind&kinds == 0 {
			continue
		}
		static := m.Static || m.Kind == descriptor.KindConstructor
		if !binding.Matches(static, !m.NonPublic) {
			continue
		}
		if !static && !target.HasInstance {
			continue
		}
		out = append(out, m)
	}
	return out
}
