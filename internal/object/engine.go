// Package object is the invocation façade: the "object" command's verbs,
// each reached through Engine.Execute.
//
// An Engine is one scripting session. It owns a handle registry, holds the
// session's namespace imports, and borrows the Host for variables, command
// registration and body evaluation.
package object

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/coerce"
	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/handle"
	"github.com/funvibe/hostbridge/internal/invoke"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/materialize"
	"github.com/funvibe/hostbridge/internal/option"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/resolve"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

// Output is a materialized by-ref value.
type Output struct {
	Index int
	Name  string
	Text  string
}

// Result is the outcome of a verb.
type Result struct {
	Code  Code
	Value string
	// Outputs carries by-ref values not written to host variables.
	Outputs []Output
	// ErrorCount is the number of failed invokeall steps.
	ErrorCount int
}

// Engine is one scripting session.
type Engine struct {
	cfg       config.Config
	host      Host
	providers provider.Set
	handles   *handle.Registry
	invoker   *invoke.Invoker
	resolver  *resolve.Resolver
	mat       *materialize.Materializer
	logger    *log.Logger
	codes     invoke.CodeMapper

	mu      sync.Mutex
	imports []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCodeMapper sets how foreign failures map to error codes.
func WithCodeMapper(m invoke.CodeMapper) Option {
	return func(e *Engine) { e.codes = m }
}

// WithSafe restricts the session to the safe verb set.
func WithSafe(safe bool) Option {
	return func(e *Engine) { e.cfg.Engine.Safe = safe }
}

// New creates a session. Host may be nil for embedders that never use
// aliases, linked arrays, by-ref variables or loops.
func New(host Host, providers provider.Set, opts ...Option) *Engine {
	e := &Engine{
		cfg:       config.Default(),
		host:      host,
		providers: providers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Discard()
	}
	e.handles = handle.NewRegistry(handle.WithLogger(e.logger), handle.WithOnRemove(e.onRemove))
	e.invoker = invoke.New(e.codes, e.logger)
	e.resolver = &resolve.Resolver{Providers: providers, Handles: e.handles, Invoker: e.invoker}
	e.mat = &materialize.Materializer{
		Handles:   e.handles,
		Providers: providers,
		Null:      e.cfg.Engine.NullSentinel,
		Alias:     e.registerAlias,
	}
	e.imports = slices.Clone(e.cfg.Engine.Imports)
	e.logger = logging.Component(e.logger, "engine")
	return e
}

// Handles exposes the session's registry.
func (e *Engine) Handles() *handle.Registry { return e.handles }

// Providers returns the session's provider set.
func (e *Engine) Providers() provider.Set { return e.providers }

// Config returns the session configuration.
func (e *Engine) Config() config.Config { return e.cfg }

// Close removes every handle, releasing values, and waits for background
// releases.
func (e *Engine) Close() error {
	if _, err := e.handles.Cleanup(handle.CleanupOptions{Force: true, Synchronous: true}); err != nil {
		return err
	}
	return e.handles.Wait()
}

// Command runs "object <verb> ?options? args..." given as words.
func (e *Engine) Command(ctx context.Context, words []string) (Result, error) {
	if len(words) == 0 {
		return Result{}, bridgeerr.Argument("wrong # args: should be \"object option ?arg ...?\"")
	}
	verb := Verb(words[0])
	req, err := ParseRequest(verb, words[1:])
	if err != nil {
		return Result{}, err
	}
	return e.Execute(ctx, verb, req)
}

type depthKey struct{}

// Execute runs one verb. Verbs that forward to other verbs re-enter here;
// nesting is bounded by engine.max_depth.
func (e *Engine) Execute(ctx context.Context, verb Verb, req Request) (Result, error) {
	if _, ok := optionSets[verb]; !ok {
		return Result{}, bridgeerr.Argument("bad option %q: must be %s", string(verb), joinOr(Verbs()))
	}
	if e.cfg.Engine.Safe && !safeVerbs[verb] {
		return Result{}, bridgeerr.Argument("permission denied: safe session cannot use object %s", verb)
	}
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= e.cfg.Engine.MaxDepth {
		return Result{}, bridgeerr.Argument("too many nested object calls (limit %d)", e.cfg.Engine.MaxDepth)
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	switch verb {
	case VerbCreate:
		return e.create(ctx, req)
	case VerbGet:
		return e.get(ctx, req)
	case VerbInvoke:
		return e.invoke(ctx, req)
	case VerbInvokeAll:
		return e.invokeAll(ctx, req)
	case VerbInvokeRaw:
		return e.invokeRaw(ctx, req)
	case VerbDispose:
		return e.dispose(req)
	case VerbCleanup:
		return e.cleanup(req)
	case VerbMembers:
		return e.members(req)
	case VerbForeach:
		return e.loop(ctx, req, false)
	case VerbLmap:
		return e.loop(ctx, req, true)
	case VerbExists:
		return e.exists(req)
	case VerbIsNull:
		return e.isNull(req)
	case VerbIsOfType:
		return e.isOfType(req)
	case VerbType:
		return e.typeOf(req)
	case VerbImport:
		return e.importNamespaces(req)
	case VerbUnimport:
		return e.unimport(req)
	case VerbImports:
		return e.listImports()
	case VerbAddRef:
		return e.addRef(req)
	case VerbRemoveRef:
		return e.removeRef(req)
	case VerbRefCount:
		return e.refCount(req)
	case VerbAlias:
		return e.alias(req)
	case VerbUnalias:
		return e.unalias(req)
	case VerbSearch:
		return e.search(req)
	case VerbNames:
		return e.names(req)
	}
	return Result{}, bridgeerr.Argument("verb %q is not implemented", verb)
}

// Handler adapts the engine to a host command. A verb that completes with
// a code other than Ok (a loop body that ran return) reports it as a
// *ControlError so the host can unwind. By-ref outputs not bound with
// -byrefvars follow the result as a list: {result out1 out2 ...}.
func (e *Engine) Handler() CommandFunc {
	return func(ctx context.Context, args []string) (string, error) {
		return commandResult(e.Command(ctx, args))
	}
}

func commandResult(res Result, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if res.Code != Ok {
		return res.Value, &ControlError{Code: res.Code, Value: res.Value}
	}
	if len(res.Outputs) > 0 {
		words := make([]string, 0, len(res.Outputs)+1)
		words = append(words, res.Value)
		for _, o := range res.Outputs {
			words = append(words, o.Text)
		}
		return tcllist.Join(words), nil
	}
	return res.Value, nil
}

func (e *Engine) registerAlias(entry handle.Entry, mode materialize.AliasMode) (string, error) {
	if e.host == nil {
		return "", bridgeerr.Argument("aliases need a host")
	}
	verb := Verb(mode.String())
	target := entry.Name
	fn := func(ctx context.Context, args []string) (string, error) {
		return commandResult(e.Command(ctx, append([]string{string(verb), target}, args...)))
	}
	if err := e.host.RegisterCommand(entry.Name, fn); err != nil {
		return "", err
	}
	e.logger.Debug("alias registered", "handle", entry.Name, "verb", verb)
	return entry.Name, nil
}

func (e *Engine) onRemove(entry handle.Entry) {
	if entry.AliasName == "" || e.host == nil {
		return
	}
	if err := e.host.RemoveCommand(entry.AliasName); err != nil {
		e.logger.Warn("removing alias failed", "command", entry.AliasName, "err", err)
	}
}

// sessionImports returns session imports plus the request's -namespaces.
func (e *Engine) sessionImports(b option.Bag) ([]string, error) {
	e.mu.Lock()
	out := slices.Clone(e.imports)
	e.mu.Unlock()
	if ns, ok := b.String("-namespaces"); ok {
		extra, err := splitList(ns)
		if err != nil {
			return nil, err
		}
		out = append(out, extra...)
	}
	return out, nil
}

func (e *Engine) typeQuery(b option.Bag) (resolve.TypeQuery, error) {
	imports, err := e.sessionImports(b)
	if err != nil {
		return resolve.TypeQuery{}, err
	}
	return resolve.TypeQuery{Imports: imports, NoCase: b.Has("-nocase") || e.cfg.Engine.NoCase}, nil
}

func (e *Engine) coercer(b option.Bag) *coerce.Coercer {
	c := &coerce.Coercer{
		Handles: e.handles,
		Options: coerce.Options{
			ArrayAsValue: b.Has("-arrayasvalue"),
			ArrayAsLink:  b.Has("-arrayaslink"),
			NullSentinel: e.cfg.Engine.NullSentinel,
		},
	}
	if e.host != nil {
		c.Vars = e.host
	}
	return c
}

func (e *Engine) resultOptions(b option.Bag) materialize.Options {
	return materialize.Options{
		ToString:   b.Has("-tostring"),
		NoInline:   b.Has("-create"),
		NoCreate:   b.Has("-nocreate"),
		Alias:      b.Has("-alias"),
		AliasAll:   b.Has("-aliasall"),
		AliasRaw:   b.Has("-aliasraw"),
		Dispose:    (e.cfg.Handles.Dispose || b.Has("-dispose")) && !b.Has("-nodispose"),
		NoDispose:  b.Has("-nodispose"),
		ObjectName: b.StringOr("-objectname", ""),
	}
}

func joinOr(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	}
	return strings.Join(words[:len(words)-1], ", ") + ", or " + words[len(words)-1]
}
