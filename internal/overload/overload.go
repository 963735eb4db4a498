// Package overload selects the member candidate that should receive a list
// of argument strings.
package overload

import (
	"fmt"
	"slices"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/coerce"
	"github.com/funvibe/hostbridge/internal/descriptor"
)

// Request describes one overload selection.
type Request struct {
	// Member and Type name the group in diagnostics.
	Member string
	Type   string

	Candidates []*descriptor.Member

	// Args is the argument text. Nil means no argument information: every
	// candidate survives and nothing is coerced.
	Args []string

	// Index selects a survivor directly when HasIndex is set.
	Index    int
	HasIndex bool
	// Invoke is set when the caller is about to call the selected member.
	Invoke bool
	// Strict rejects more than one survivor when invoking.
	Strict bool
	// Reorder sorts survivors by conversion cost.
	Reorder bool
	// Limit truncates the survivor list when > 0.
	Limit int
}

// RefSlot is a by-ref parameter of a selected candidate.
type RefSlot struct {
	Index int
	Name  string
	Ref   *descriptor.Ref
}

// Match is a candidate whose arguments all converted.
type Match struct {
	Member *descriptor.Member
	// Args holds one element per declared parameter; a variadic parameter
	// receives a []any of its converted arguments.
	Args  []any
	Score int
	Refs  []RefSlot
	Links []coerce.Link
}

// Result is the outcome of Resolve. Selected is nil when several matches
// are returned for inspection.
type Result struct {
	Selected *Match
	Matches  []*Match
}

// Resolve runs arity pruning, coercion, optional reordering and selection.
func Resolve(c *coerce.Coercer, req Request) (Result, error) {
	var (
		matches []*Match
		diags   []string
	)
	for _, m := range req.Candidates {
		if req.Args == nil {
			matches = append(matches, &Match{Member: m})
			continue
		}
		lo, hi := Arity(m)
		n := len(req.Args)
		if n < lo || (hi >= 0 && n > hi) {
			diags = append(diags, fmt.Sprintf("%s: wrong # args, want %s got %d", m.Signature(), arityText(lo, hi), n))
			continue
		}
		match, err := coerceArgs(c, m, req.Args)
		if err != nil {
			diags = append(diags, fmt.Sprintf("%s: %v", m.Signature(), err))
			continue
		}
		matches = append(matches, match)
	}

	if req.Reorder {
		slices.SortStableFunc(matches, func(a, b *Match) int { return a.Score - b.Score })
	}
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}

	switch {
	case req.HasIndex:
		if req.Index < 0 || req.Index >= len(matches) {
			return Result{}, bridgeerr.Argument("method index %d out of range, %d overload(s) of %q matched", req.Index, len(matches), req.Member)
		}
		return Result{Selected: matches[req.Index], Matches: matches}, nil
	case len(matches) == 0:
		return Result{}, &bridgeerr.NotFoundError{
			What:       "method overload",
			Name:       req.Member,
			Detail:     fmt.Sprintf("no candidate of type %q accepts %d argument(s)", req.Type, len(req.Args)),
			Candidates: diags,
		}
	case len(matches) == 1:
		return Result{Selected: matches[0], Matches: matches}, nil
	case !req.Invoke:
		return Result{Matches: matches}, nil
	case req.Strict:
		return Result{}, &bridgeerr.AmbiguousOverloadError{Member: req.Member, Type: req.Type, Count: len(matches)}
	default:
		return Result{Selected: matches[0], Matches: matches}, nil
	}
}

// Arity returns the minimum and maximum number of argument words a member
// accepts. The maximum is -1 for variadic members.
func Arity(m *descriptor.Member) (lo, hi int) {
	for _, p := range m.Params {
		switch {
		case p.ByRef:
		case p.Variadic:
			return lo, -1
		case p.Optional:
			hi++
		default:
			lo++
			hi++
		}
	}
	return lo, hi
}

func arityText(lo, hi int) string {
	switch {
	case hi < 0:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprint(lo)
	default:
		return fmt.Sprintf("%d..%d", lo, hi)
	}
}

func coerceArgs(c *coerce.Coercer, m *descriptor.Member, args []string) (*Match, error) {
	match := &Match{Member: m, Args: make([]any, len(m.Params))}
	next := 0
	for i, p := range m.Params {
		switch {
		case p.ByRef:
			ref := &descriptor.Ref{}
			match.Args[i] = ref
			match.Refs = append(match.Refs, RefSlot{Index: i, Name: p.Name, Ref: ref})

		case p.Variadic:
			rest := make([]any, 0, len(args)-next)
			for ; next < len(args); next++ {
				v, err := c.Coerce(i, args[next], p)
				if err != nil {
					return nil, fmt.Errorf("argument %d: %w", next+1, err)
				}
				rest = append(rest, v.V)
				match.Score += v.Cost
			}
			match.Args[i] = rest

		case next < len(args):
			v, err := c.Coerce(i, args[next], p)
			if err != nil {
				return nil, fmt.Errorf("argument %d (%s): %w", next+1, paramName(p, i), err)
			}
			next++
			match.Args[i] = v.V
			match.Score += v.Cost
			if v.Link != nil {
				match.Links = append(match.Links, *v.Link)
			}

		case p.HasDefault:
			v, err := c.Coerce(i, p.Default, p)
			if err != nil {
				return nil, fmt.Errorf("default for %s: %w", paramName(p, i), err)
			}
			match.Args[i] = v.V

		default:
			match.Args[i] = descriptor.Missing
		}
	}
	return match, nil
}

func paramName(p descriptor.Param, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", i+1)
}
