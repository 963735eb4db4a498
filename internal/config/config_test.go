package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultMaxDepth, cfg.Engine.MaxDepth)
	assert.Equal(t, NullPolicyFail, cfg.Invoke.StopOnNullObject)
	assert.Equal(t, NullPolicyIgnore, cfg.InvokeAll.StopOnNullObject)
	assert.True(t, cfg.Handles.Dispose)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	def := Default()
	assert.Equal(t, def.Engine.MaxDepth, cfg.Engine.MaxDepth)
	assert.Equal(t, def.Engine.NullSentinel, cfg.Engine.NullSentinel)
	assert.Equal(t, def.Handles, cfg.Handles)
	assert.Equal(t, def.Invoke, cfg.Invoke)
	assert.Equal(t, def.Log, cfg.Log)
	assert.Empty(t, cfg.Providers.ProtoFiles)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  strict_member: true
  imports: [demo, strings]
invoke:
  stop_on_null_object: ignore
providers:
  proto_files: [api/greeter.proto]
`)
	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, cfg.Engine.StrictMember)
	assert.Equal(t, []string{"demo", "strings"}, cfg.Engine.Imports)
	assert.Equal(t, NullPolicyIgnore, cfg.Invoke.StopOnNullObject)
	assert.Equal(t, []string{"api/greeter.proto"}, cfg.Providers.ProtoFiles)
	assert.Equal(t, DefaultMaxDepth, cfg.Engine.MaxDepth)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  max_depth: 10\n")
	t.Setenv("HOSTBRIDGE_ENGINE_MAX_DEPTH", "25")
	t.Setenv("HOSTBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Engine.MaxDepth)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")

	_, err = Load(context.Background(), writeConfig(t, "engine: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(context.Background(), writeConfig(t, "invoke:\n  stop_on_null_object: maybe\n"))
	assert.ErrorContains(t, err, "invoke.stop_on_null_object")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("log:\n  format: json\nhandles:\n  dispose: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Handles.Dispose)
	assert.Equal(t, "info", cfg.Log.Level)

	_, err = Parse([]byte("log:\n  format: xml\n"))
	assert.ErrorContains(t, err, "log.format")

	_, err = Parse([]byte("engine:\n  max_depth: 0\n  null_sentinel: \"\"\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "max_depth")
	assert.ErrorContains(t, err, "null_sentinel")
}
