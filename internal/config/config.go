// Package config loads hostbridge settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional hostbridge.yaml file, and HOSTBRIDGE_* environment variables
// (HOSTBRIDGE_ENGINE_MAX_DEPTH overrides engine.max_depth).
//
// Example hostbridge.yaml:
//
//	engine:
//	  strict_member: true
//	  imports: [demo, strings]
//	handles:
//	  dispose: true
//	invoke:
//	  stop_on_null_object: fail
//	log:
//	  level: debug
//	providers:
//	  proto_files: [api/greeter.proto]
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Handles   HandlesConfig   `yaml:"handles" mapstructure:"handles"`
	Invoke    InvokeConfig    `yaml:"invoke" mapstructure:"invoke"`
	InvokeAll InvokeConfig    `yaml:"invokeall" mapstructure:"invokeall"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
}

// EngineConfig controls the invocation façade.
type EngineConfig struct {
	// MaxDepth bounds re-entrant verb execution (invoke -> invokeall -> invoke).
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`

	// Safe restricts the session to the verbs a sandboxed script may use.
	Safe bool `yaml:"safe" mapstructure:"safe"`

	// NullSentinel is the script-visible text for nil.
	NullSentinel string `yaml:"null_sentinel" mapstructure:"null_sentinel"`

	// StrictMember makes invoke fail when more than one overload accepts the
	// arguments instead of selecting the first one.
	StrictMember bool `yaml:"strict_member" mapstructure:"strict_member"`

	// Reorder re-ranks matching overloads by conversion cost.
	Reorder bool `yaml:"reorder" mapstructure:"reorder"`

	// NoCase makes type and member lookup case-insensitive.
	NoCase bool `yaml:"nocase" mapstructure:"nocase"`

	// Imports are namespaces searched for simple type names.
	Imports []string `yaml:"imports" mapstructure:"imports"`
}

// HandlesConfig controls the handle registry.
type HandlesConfig struct {
	// Dispose marks newly materialized handles for release when their
	// reference count drops back to zero.
	Dispose bool `yaml:"dispose" mapstructure:"dispose"`

	// Synchronous releases disposed values before cleanup returns.
	Synchronous bool `yaml:"synchronous" mapstructure:"synchronous"`
}

// InvokeConfig holds per-verb resolution policy.
type InvokeConfig struct {
	// StopOnNullObject decides what a nil intermediate value in a dotted
	// member path does: "fail" reports an error, "ignore" turns the call
	// into a no-op returning null.
	StopOnNullObject string `yaml:"stop_on_null_object" mapstructure:"stop_on_null_object"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProvidersConfig lists extra type sources loaded at startup.
type ProvidersConfig struct {
	// ProtoFiles are .proto files whose messages and services become types.
	ProtoFiles []string `yaml:"proto_files" mapstructure:"proto_files"`

	// ProtoImportPaths are searched when resolving proto imports.
	ProtoImportPaths []string `yaml:"proto_import_paths" mapstructure:"proto_import_paths"`

	// Tables are descriptor tables produced by `hostbridge describe`.
	Tables []string `yaml:"tables" mapstructure:"tables"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxDepth:     DefaultMaxDepth,
			NullSentinel: NullSentinel,
		},
		Handles: HandlesConfig{
			Dispose:     true,
			Synchronous: true,
		},
		Invoke:    InvokeConfig{StopOnNullObject: NullPolicyFail},
		InvokeAll: InvokeConfig{StopOnNullObject: NullPolicyIgnore},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from path (may be empty) and the environment.
func Load(ctx context.Context, path string) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := loadYAMLIntoViper(v, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse decodes YAML data on top of the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("engine.max_depth", d.Engine.MaxDepth)
	v.SetDefault("engine.safe", d.Engine.Safe)
	v.SetDefault("engine.null_sentinel", d.Engine.NullSentinel)
	v.SetDefault("engine.strict_member", d.Engine.StrictMember)
	v.SetDefault("engine.reorder", d.Engine.Reorder)
	v.SetDefault("engine.nocase", d.Engine.NoCase)
	v.SetDefault("engine.imports", d.Engine.Imports)
	v.SetDefault("handles.dispose", d.Handles.Dispose)
	v.SetDefault("handles.synchronous", d.Handles.Synchronous)
	v.SetDefault("invoke.stop_on_null_object", d.Invoke.StopOnNullObject)
	v.SetDefault("invokeall.stop_on_null_object", d.InvokeAll.StopOnNullObject)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("providers.proto_files", d.Providers.ProtoFiles)
	v.SetDefault("providers.proto_import_paths", d.Providers.ProtoImportPaths)
	v.SetDefault("providers.tables", d.Providers.Tables)
}

// loadYAMLIntoViper parses the file with yaml.v3 and merges the result, so
// the file format stays the one documented above regardless of viper's
// own codec registry.
func loadYAMLIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if raw == nil {
		return nil
	}
	if err := v.MergeConfigMap(raw); err != nil {
		return fmt.Errorf("merging %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_depth must be positive, got %d", c.Engine.MaxDepth))
	}
	if c.Engine.NullSentinel == "" {
		errs = append(errs, errors.New("engine.null_sentinel must not be empty"))
	}
	for key, p := range map[string]string{
		"invoke.stop_on_null_object":    c.Invoke.StopOnNullObject,
		"invokeall.stop_on_null_object": c.InvokeAll.StopOnNullObject,
	} {
		if p != NullPolicyFail && p != NullPolicyIgnore {
			errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", key, NullPolicyFail, NullPolicyIgnore, p))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be text, json or logfmt", c.Log.Format))
	}
	return errors.Join(errs...)
}
