// Package bridge is the embedding API: a Session wires configuration,
// logging, the type providers and the object engine into a script host.
//
// The default host is the built-in line shell:
//
//	s, err := bridge.New(ctx, bridge.WithOutput(os.Stdout))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	s.Define(goreflect.TypeDef{Namespace: "app", Sample: (*User)(nil)})
//	out, err := s.Eval(ctx, `
//		set u [object create app.User]
//		object invoke $u Name alice
//		object invoke $u Name
//	`)
//
// Embedders with their own interpreter pass it with WithHost and drive the
// engine through Command or the registered "object" command.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/object"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/provider/goreflect"
	"github.com/funvibe/hostbridge/internal/provider/protoprov"
	"github.com/funvibe/hostbridge/internal/provider/table"
	"github.com/funvibe/hostbridge/internal/shell"
	"github.com/funvibe/hostbridge/internal/stdtypes"
)

// Provider names of the session's built-in providers.
const (
	LibraryName = "go"
	TablesName  = "tables"
)

type options struct {
	cfg       *config.Config
	logger    *log.Logger
	out       io.Writer
	host      object.Host
	providers []provider.Provider
	safe      *bool
	noStd     bool
}

// Option configures a Session.
type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger sets the session logger. Without it a logger is built from
// the log section of the configuration, writing to stderr.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOutput sets where the shell's puts writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithHost embeds the engine in an existing interpreter instead of the
// built-in shell. Eval is unavailable in such sessions.
func WithHost(h object.Host) Option {
	return func(o *options) { o.host = h }
}

// WithProviders adds providers consulted before the built-in ones.
func WithProviders(ps ...provider.Provider) Option {
	return func(o *options) { o.providers = append(o.providers, ps...) }
}

// WithSafe overrides engine.safe from the configuration.
func WithSafe(safe bool) Option {
	return func(o *options) { o.safe = &safe }
}

// WithoutStdTypes leaves the built-in type library out of the session.
func WithoutStdTypes() Option {
	return func(o *options) { o.noStd = true }
}

// Session is one embedded scripting session.
type Session struct {
	cfg    config.Config
	logger *log.Logger
	host   object.Host
	shell  *shell.Shell
	engine *object.Engine

	lib    *goreflect.Library
	std    *table.Provider
	tables *table.Provider
	proto  *protoprov.Provider
}

// New builds a session. Proto files and descriptor tables named in the
// configuration are loaded before New returns.
func New(ctx context.Context, opts ...Option) (*Session, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	if o.safe != nil {
		cfg.Engine.Safe = *o.safe
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		l, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		lib:    goreflect.New(LibraryName, goreflect.WithAutoDefine()),
		tables: table.New(TablesName, table.WithLogger(logger)),
		proto:  protoprov.New(protoprov.WithLogger(logger)),
	}

	set := provider.Set(o.providers)
	if !o.noStd {
		std, err := stdtypes.New(table.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("loading built-in types: %w", err)
		}
		s.std = std
		set = append(set, std)
	}
	if files := cfg.Providers.ProtoFiles; len(files) > 0 {
		if err := s.proto.LoadFiles(cfg.Providers.ProtoImportPaths, files...); err != nil {
			return nil, err
		}
		logger.Debug("proto files loaded", "files", len(files))
	}
	for _, path := range cfg.Providers.Tables {
		if err := s.tables.LoadFile(path); err != nil {
			return nil, err
		}
	}
	// The reflection library auto-defines unknown Go types, so it answers
	// TypeOf last.
	set = append(set, s.proto, s.tables, s.lib)

	s.host = o.host
	if s.host == nil {
		s.shell = shell.New(o.out, shell.WithLogger(logger))
		s.host = s.shell
	}
	s.engine = object.New(s.host, set, object.WithConfig(cfg), object.WithLogger(logger))
	if err := s.host.RegisterCommand(config.CommandName, s.engine.Handler()); err != nil {
		return nil, fmt.Errorf("registering %s command: %w", config.CommandName, err)
	}
	logging.Component(logger, "bridge").Debug("session ready", "providers", len(set), "safe", cfg.Engine.Safe)
	return s, nil
}

// Define publishes a Go type through the session's reflection library.
func (s *Session) Define(def goreflect.TypeDef) (*descriptor.Type, error) {
	return s.lib.Define(def)
}

// Provide makes v available to "object get name".
func (s *Session) Provide(name string, v any) {
	s.lib.Provide(name, v)
}

// LoadTables loads descriptor tables produced by `hostbridge describe`.
// Their types are callable once implemented with Implement.
func (s *Session) LoadTables(files ...*table.File) error {
	return s.tables.Load(files...)
}

// Implement binds a loaded table type to Go.
func (s *Session) Implement(full string, impl table.Impl) error {
	return s.tables.Implement(full, impl)
}

// LoadProto parses in-memory .proto sources keyed by file name.
func (s *Session) LoadProto(sources map[string]string) error {
	return s.proto.LoadSource(sources)
}

// Eval runs a script in the built-in shell and returns its result.
func (s *Session) Eval(ctx context.Context, script string) (string, error) {
	if s.shell == nil {
		return "", errors.New("session has a custom host; evaluate scripts through it")
	}
	code, res, err := s.shell.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	switch code {
	case object.Ok, object.Return:
		return res, nil
	case object.Break, object.Continue:
		return "", fmt.Errorf("invoked %q outside of a loop", code.String())
	}
	return "", fmt.Errorf("script failed: %s", res)
}

// EvalFile runs the script at path.
func (s *Session) EvalFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return s.Eval(ctx, string(data))
}

// Command runs one object verb without going through the host.
func (s *Session) Command(ctx context.Context, words ...string) (object.Result, error) {
	return s.engine.Command(ctx, words)
}

// Engine returns the session's object engine.
func (s *Session) Engine() *object.Engine { return s.engine }

// Shell returns the built-in shell, or nil with a custom host.
func (s *Session) Shell() *shell.Shell { return s.shell }

// Config returns the effective configuration.
func (s *Session) Config() config.Config { return s.cfg }

// Logger returns the session logger.
func (s *Session) Logger() *log.Logger { return s.logger }

// Types lists every type the session can see, provider by provider.
func (s *Session) Types() []*descriptor.Type {
	var out []*descriptor.Type
	for _, p := range s.engine.Providers() {
		out = append(out, p.Types()...)
	}
	return out
}

// Close releases every handle and unregisters the object command.
func (s *Session) Close() error {
	err := s.engine.Close()
	if rmErr := s.host.RemoveCommand(config.CommandName); rmErr != nil {
		s.logger.Debug("removing object command", "err", rmErr)
	}
	return err
}
