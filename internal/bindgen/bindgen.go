// Package bindgen generates descriptor tables from Go source.
//
// Describe loads packages with go/packages and writes one table.File per
// package:
//
//   - exported named types become table types; structs get a zero-value
//     constructor (symbol "new"), their exported fields and the methods of
//     *T, other named types the methods of T;
//   - integer types with constants of their own type become enumerations;
//   - exported functions returning T or *T of a described type (optionally
//     with a trailing error) become constructors of that type, the rest
//     become static methods of a synthetic "Funcs" type.
//
// Members whose signature cannot cross the bridge (func or chan
// parameters, a leading context.Context, type parameters) are skipped.
// Pointers to basic types are by-ref parameters.
package bindgen

import (
	"cmp"
	"context"
	"fmt"
	"go/constant"
	"go/types"
	"math/bits"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/tools/go/packages"

	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/provider/table"
)

// FuncsType names the synthetic type holding package-level functions.
const FuncsType = "Funcs"

// Options controls Describe.
type Options struct {
	// Dir is the directory package patterns are resolved in.
	Dir string

	// Types restricts the output to these type names (FuncsType included).
	// Empty means every exported type.
	Types []string

	// Namespace replaces the package name as the table namespace. It is
	// only honored when a single package is described.
	Namespace string

	Logger *log.Logger
}

// Describe loads the packages matching patterns and describes each one.
func Describe(ctx context.Context, opts Options, patterns ...string) ([]*table.File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.Component(logger, "bindgen")

	cfg := &packages.Config{
		Context: ctx,
		Mode:    packages.NeedName | packages.NeedTypes,
		Dir:     opts.Dir,
		Env:     append(os.Environ(), "GOWORK=off"),
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("loading packages: %w", err)
	}

	var errs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			errs = append(errs, fmt.Sprintf("%s: %s", pkg.PkgPath, e.Msg))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("package errors:\n  %s", strings.Join(errs, "\n  "))
	}

	keep := func(string) bool { return true }
	if len(opts.Types) > 0 {
		keep = func(name string) bool { return slices.Contains(opts.Types, name) }
	}

	files := make([]*table.File, 0, len(pkgs))
	for _, pkg := range pkgs {
		ns := pkg.Name
		if opts.Namespace != "" && len(pkgs) == 1 {
			ns = opts.Namespace
		}
		f := describePackage(pkg.Types, ns, keep)
		logger.Debug("package described", "package", pkg.PkgPath, "types", len(f.Types))
		files = append(files, f)
	}
	return files, nil
}

func describePackage(pkg *types.Package, ns string, keep func(string) bool) *table.File {
	scope := pkg.Scope()
	names := scope.Names()
	qual := func(p *types.Package) string {
		if p == nil || p == pkg {
			return ""
		}
		return p.Name()
	}

	enumConsts := make(map[*types.TypeName][]*types.Const)
	for _, name := range names {
		c, ok := scope.Lookup(name).(*types.Const)
		if !ok || !c.Exported() {
			continue
		}
		if named, ok := c.Type().(*types.Named); ok && named.Obj().Pkg() == pkg {
			enumConsts[named.Obj()] = append(enumConsts[named.Obj()], c)
		}
	}

	f := &table.File{Namespace: ns, Package: pkg.Path()}
	index := make(map[*types.TypeName]int)
	for _, name := range names {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok || !obj.Exported() || obj.IsAlias() || !keep(name) {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok || named.TypeParams().Len() > 0 {
			continue
		}
		ts := describeType(named, enumConsts[obj], qual)
		index[obj] = len(f.Types)
		f.Types = append(f.Types, ts)
	}

	ctors := make(map[int][]table.MemberSpec)
	funcs := table.TypeSpec{Name: FuncsType}
	for _, name := range names {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok || !fn.Exported() {
			continue
		}
		sig := fn.Type().(*types.Signature)
		if sig.TypeParams().Len() > 0 {
			continue
		}
		ms, ok := signature(name, sig, qual)
		if !ok {
			continue
		}
		if owner := constructorOwner(sig, pkg); owner != nil {
			if i, ok := index[owner]; ok {
				ms.Kind = "constructor"
				ms.Symbol = name
				ms.Name = owner.Name()
				ms.Result = ""
				ctors[i] = append(ctors[i], ms)
				continue
			}
		}
		ms.Static = true
		funcs.Members = append(funcs.Members, ms)
	}
	for i, extra := range ctors {
		ts := &f.Types[i]
		n := 0
		for n < len(ts.Members) && ts.Members[n].Kind == "constructor" {
			n++
		}
		ts.Members = slices.Insert(ts.Members, n, extra...)
	}
	if len(funcs.Members) > 0 && keep(FuncsType) && scope.Lookup(FuncsType) == nil {
		f.Types = append(f.Types, funcs)
	}
	return f
}

func describeType(named *types.Named, consts []*types.Const, qual types.Qualifier) table.TypeSpec {
	obj := named.Obj()
	ts := table.TypeSpec{Name: obj.Name(), Go: types.TypeString(named, (*types.Package).Name)}

	switch u := named.Underlying().(type) {
	case *types.Basic:
		if u.Info()&types.IsInteger != 0 && len(consts) > 0 {
			describeEnum(&ts, consts)
			return ts
		}
	case *types.Interface:
		ts.Interface = true
		for i := range u.NumMethods() {
			m := u.Method(i)
			if !m.Exported() {
				continue
			}
			if ms, ok := signature(m.Name(), m.Type().(*types.Signature), qual); ok {
				ts.Members = append(ts.Members, ms)
			}
		}
		return ts
	case *types.Struct:
		ts.Go = "*" + ts.Go
		ts.Members = append(ts.Members, table.MemberSpec{Kind: "constructor", Name: obj.Name(), Symbol: "new"})
		for i := range u.NumFields() {
			fld := u.Field(i)
			if !fld.Exported() || fld.Embedded() {
				continue
			}
			s, ok := typeString(fld.Type(), qual)
			if !ok {
				continue
			}
			ts.Members = append(ts.Members, table.MemberSpec{Kind: "field", Name: fld.Name(), Type: s})
		}
		ts.Members = append(ts.Members, methods(types.NewPointer(named), qual)...)
		return ts
	}
	ts.Members = append(ts.Members, methods(named, qual)...)
	return ts
}

func methods(t types.Type, qual types.Qualifier) []table.MemberSpec {
	var out []table.MemberSpec
	mset := types.NewMethodSet(t)
	for i := range mset.Len() {
		fn := mset.At(i).Obj().(*types.Func)
		if !fn.Exported() {
			continue
		}
		if ms, ok := signature(fn.Name(), fn.Type().(*types.Signature), qual); ok {
			out = append(out, ms)
		}
	}
	return out
}

func describeEnum(ts *table.TypeSpec, consts []*types.Const) {
	for _, c := range consts {
		v, exact := constant.Int64Val(constant.ToInt(c.Val()))
		if !exact {
			continue
		}
		ts.Enum = append(ts.Enum, table.EnumSpec{Name: c.Name(), Value: v})
	}
	slices.SortStableFunc(ts.Enum, func(a, b table.EnumSpec) int {
		return cmp.Or(cmp.Compare(a.Value, b.Value), cmp.Compare(a.Name, b.Name))
	})
	ts.Flags = isFlags(ts.Enum)
}

// isFlags reports whether the values look like a bit set: at least three
// distinct single-bit values and nothing else besides zero.
func isFlags(values []table.EnumSpec) bool {
	single := 0
	for _, v := range values {
		switch {
		case v.Value == 0:
		case v.Value > 0 && bits.OnesCount64(uint64(v.Value)) == 1:
			single++
		default:
			return false
		}
	}
	return single >= 3
}

// signature describes a function or method. The receiver is not part of sig.
func signature(name string, sig *types.Signature, qual types.Qualifier) (table.MemberSpec, bool) {
	ms := table.MemberSpec{Kind: "method", Name: name}
	params := sig.Params()
	for i := range params.Len() {
		v := params.At(i)
		pt := v.Type()
		if i == 0 && isContextType(pt) {
			return ms, false
		}
		ps := table.ParamSpec{Name: v.Name()}
		if ps.Name == "" || ps.Name == "_" {
			ps.Name = fmt.Sprintf("arg%d", i+1)
		}
		if sig.Variadic() && i == params.Len()-1 {
			ps.Variadic = true
			pt = pt.(*types.Slice).Elem()
		} else if ptr, ok := pt.(*types.Pointer); ok && isBasic(ptr.Elem()) {
			ps.ByRef = true
			pt = ptr.Elem()
		}
		s, ok := typeString(pt, qual)
		if !ok {
			return ms, false
		}
		ps.Type = s
		ms.Params = append(ms.Params, ps)
	}

	results := sig.Results()
	n := results.Len()
	if n > 0 && isErrorType(results.At(n-1).Type()) {
		n--
	}
	switch n {
	case 0:
	case 1:
		s, ok := typeString(results.At(0).Type(), qual)
		if !ok {
			return ms, false
		}
		ms.Result = s
	default:
		ms.Result = "[]any"
	}
	return ms, true
}

// constructorOwner returns the package type a function constructs: its
// only non-error result is T or *T.
func constructorOwner(sig *types.Signature, pkg *types.Package) *types.TypeName {
	results := sig.Results()
	n := results.Len()
	if n == 2 && isErrorType(results.At(1).Type()) {
		n = 1
	}
	if n != 1 {
		return nil
	}
	t := results.At(0).Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok || named.Obj().Pkg() != pkg {
		return nil
	}
	return named.Obj()
}

// typeString renders t the way table types are written. Types from other
// packages with a basic underlying type are written as that basic type.
func typeString(t types.Type, qual types.Qualifier) (string, bool) {
	t = types.Unalias(t)
	switch t := t.(type) {
	case *types.Basic:
		if t.Info()&(types.IsBoolean|types.IsInteger|types.IsFloat|types.IsString) == 0 {
			return "", false
		}
		return t.Name(), true
	case *types.Named:
		if isErrorType(t) {
			return "error", true
		}
		if isContextType(t) {
			return "", false
		}
		if b, ok := t.Underlying().(*types.Basic); ok && qual(t.Obj().Pkg()) != "" {
			return typeString(b, qual)
		}
		return types.TypeString(t, qual), true
	case *types.Pointer:
		s, ok := typeString(t.Elem(), qual)
		return "*" + s, ok
	case *types.Slice:
		s, ok := typeString(t.Elem(), qual)
		return "[]" + s, ok
	case *types.Array:
		s, ok := typeString(t.Elem(), qual)
		return fmt.Sprintf("[%d]%s", t.Len(), s), ok
	case *types.Map:
		return types.TypeString(t, qual), true
	case *types.Interface:
		if t.Empty() {
			return "any", true
		}
		return types.TypeString(t, qual), true
	}
	return "", false
}

func isBasic(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&(types.IsBoolean|types.IsInteger|types.IsFloat|types.IsString) != 0
}

func isContextType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

func isErrorType(t types.Type) bool {
	if named, ok := t.(*types.Named); ok {
		t = named.Underlying()
	}
	iface, ok := t.(*types.Interface)
	return ok && iface.NumMethods() == 1 && iface.Method(0).Name() == "Error"
}
