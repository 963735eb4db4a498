package object

import (
	"sort"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/option"
)

// Verb names an object sub-command.
type Verb string

const (
	VerbAddRef    Verb = "addref"
	VerbAlias     Verb = "alias"
	VerbCleanup   Verb = "cleanup"
	VerbCreate    Verb = "create"
	VerbDispose   Verb = "dispose"
	VerbExists    Verb = "exists"
	VerbForeach   Verb = "foreach"
	VerbGet       Verb = "get"
	VerbImport    Verb = "import"
	VerbImports   Verb = "imports"
	VerbInvoke    Verb = "invoke"
	VerbInvokeAll Verb = "invokeall"
	VerbInvokeRaw Verb = "invokeraw"
	VerbIsNull    Verb = "isnull"
	VerbIsOfType  Verb = "isoftype"
	VerbLmap      Verb = "lmap"
	VerbMembers   Verb = "members"
	VerbNames     Verb = "names"
	VerbRefCount  Verb = "refcount"
	VerbRemoveRef Verb = "removeref"
	VerbSearch    Verb = "search"
	VerbType      Verb = "type"
	VerbUnalias   Verb = "unalias"
	VerbUnimport  Verb = "unimport"
)

// safeVerbs may be used in safe sessions.
var safeVerbs = map[Verb]bool{
	VerbDispose:   true,
	VerbExists:    true,
	VerbInvoke:    true,
	VerbInvokeAll: true,
	VerbInvokeRaw: true,
	VerbIsNull:    true,
	VerbIsOfType:  true,
}

// Request is one verb invocation. Which fields are used depends on the verb.
type Request struct {
	// Target is a handle or type name.
	Target string
	// Member is a member name or dotted member path.
	Member string
	// Args are the remaining words: member arguments, invokeall groups,
	// handle names, namespaces or patterns.
	Args []string
	// Var and Body are the loop variable and script of foreach and lmap.
	Var  string
	Body string

	Options option.Bag
}

var (
	resolveOptions = option.NewSet(append(append(
		option.Flags("-nocase", "-strictmember", "-reorder", "-nonestedobject", "-noargs",
			"-arrayasvalue", "-arrayaslink"),
		option.Values("-namespaces", "-membertypes", "-flags", "-nullpolicy", "-byrefvars")...),
		option.Spec{Name: "-index", Kind: option.Int},
		option.Spec{Name: "-limit", Kind: option.Int},
	)...)

	resultOptions = option.NewSet(append(
		option.Flags("-alias", "-aliasall", "-aliasraw", "-nodispose", "-dispose", "-tostring",
			"-create", "-nocreate"),
		option.Values("-objectname")...)...)

	optionSets = map[Verb]*option.Set{
		VerbCreate:    option.Merge([]*option.Set{resolveOptions, resultOptions}),
		VerbGet:       resultOptions,
		VerbInvoke:    option.Merge([]*option.Set{resolveOptions, resultOptions}, option.Flags("-identity", "-typeidentity", "-invokeall", "-invokeraw", "-noinvoke")...),
		VerbInvokeAll: option.Merge([]*option.Set{resolveOptions, resultOptions}, option.Flags("-chained", "-nocomplain", "-keepresults", "-lastresult")...),
		VerbInvokeRaw: option.Merge([]*option.Set{resultOptions}, append(option.Flags("-nocase"), option.Values("-membertypes", "-namespaces", "-byrefvars")...)...),
		VerbDispose:   option.NewSet(option.Flags("-force", "-nodispose", "-nocomplain", "-synchronous")...),
		VerbCleanup: option.NewSet(append(option.Flags("-references", "-noremove", "-synchronous", "-nodispose", "-nocomplain", "-nocase"),
			option.Spec{Name: "-pattern", Kind: option.Value},
			option.Spec{Name: "-referencecount", Kind: option.Int})...),
		VerbMembers: option.NewSet(append(option.Flags("-nocase", "-signatures", "-qualified"),
			option.Values("-membertypes", "-flags", "-pattern", "-namespaces")...)...),
		VerbForeach:   option.Merge([]*option.Set{resultOptions}, option.Flags("-nocollect")...),
		VerbLmap:      option.Merge([]*option.Set{resultOptions}, option.Flags("-nocollect")...),
		VerbIsOfType:  option.NewSet(append(option.Flags("-nocase"), option.Values("-namespaces")...)...),
		VerbType:      option.NewSet(append(option.Flags("-nocase"), option.Values("-namespaces")...)...),
		VerbSearch:    option.NewSet(option.Flags("-nocase")...),
		VerbNames:     option.NewSet(option.Flags("-nocase")...),
		VerbUnimport:  option.NewSet(option.Flags("-nocase")...),
		VerbAlias:     option.NewSet(option.Flags("-aliasall", "-aliasraw")...),
		VerbAddRef:    option.NewSet(),
		VerbRemoveRef: option.NewSet(),
		VerbRefCount:  option.NewSet(),
		VerbExists:    option.NewSet(),
		VerbIsNull:    option.NewSet(),
		VerbImport:    option.NewSet(),
		VerbImports:   option.NewSet(),
		VerbUnalias:   option.NewSet(),
	}
)

// Verbs lists every verb name in sorted order.
func Verbs() []string {
	out := make([]string, 0, len(optionSets))
	for v := range optionSets {
		out = append(out, string(v))
	}
	sort.Strings(out)
	return out
}

// ParseRequest splits the words following a verb into options and
// positional fields.
func ParseRequest(verb Verb, words []string) (Request, error) {
	set, ok := optionSets[verb]
	if !ok {
		return Request{}, bridgeerr.Argument("bad option %q: must be %s", string(verb), joinOr(Verbs()))
	}
	bag, rest, err := set.Parse(words)
	if err != nil {
		return Request{}, err
	}
	req := Request{Options: bag}

	wrong := func(usage string) error {
		return bridgeerr.Argument("wrong # args: should be \"object %s %s\"", verb, usage)
	}
	switch verb {
	case VerbInvoke, VerbInvokeRaw:
		if len(rest) < 2 && !(verb == VerbInvoke && (bag.Has("-identity") || bag.Has("-typeidentity")) && len(rest) == 1) {
			return Request{}, wrong("?options? object member ?arg ...?")
		}
		req.Target = rest[0]
		if len(rest) > 1 {
			req.Member = rest[1]
			req.Args = rest[2:]
		}
	case VerbCreate:
		if len(rest) < 1 {
			return Request{}, wrong("?options? typeName ?arg ...?")
		}
		req.Target, req.Args = rest[0], rest[1:]
	case VerbInvokeAll:
		if len(rest) < 1 {
			return Request{}, wrong("?options? object ?{member ?arg ...?} ...?")
		}
		req.Target, req.Args = rest[0], rest[1:]
	case VerbForeach, VerbLmap:
		if len(rest) != 3 {
			return Request{}, wrong("?options? varName collection script")
		}
		req.Var, req.Target, req.Body = rest[0], rest[1], rest[2]
	case VerbIsOfType:
		if len(rest) != 2 {
			return Request{}, wrong("?options? object typeName")
		}
		req.Target, req.Member = rest[0], rest[1]
	case VerbGet, VerbMembers, VerbType, VerbExists, VerbIsNull, VerbAddRef, VerbRemoveRef,
		VerbRefCount, VerbAlias, VerbUnalias:
		if len(rest) != 1 {
			return Request{}, wrong("?options? name")
		}
		req.Target = rest[0]
	case VerbSearch, VerbNames:
		if len(rest) > 1 {
			return Request{}, wrong("?options? ?pattern?")
		}
		req.Args = rest
	case VerbCleanup, VerbImports:
		if len(rest) != 0 {
			return Request{}, wrong("?options?")
		}
	default:
		req.Args = rest
	}
	return req, nil
}
