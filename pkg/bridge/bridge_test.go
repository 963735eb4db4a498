package bridge_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/logging"
	"github.com/funvibe/hostbridge/internal/object"
	"github.com/funvibe/hostbridge/internal/provider/goreflect"
	"github.com/funvibe/hostbridge/internal/provider/table"
	"github.com/funvibe/hostbridge/pkg/bridge"
)

type Item struct {
	Name string
}

type Inventory struct {
	Owner string
	items []*Item
}

func NewInventory(owner string) *Inventory { return &Inventory{Owner: owner} }

func (i *Inventory) Add(item string) int {
	i.items = append(i.items, &Item{Name: item})
	return len(i.items)
}

func (i *Inventory) Items() []*Item { return i.items }

func newSession(t *testing.T, opts ...bridge.Option) (*bridge.Session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]bridge.Option{bridge.WithOutput(&out), bridge.WithLogger(logging.Discard())}, opts...)
	s, err := bridge.New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, &out
}

func TestScriptEndToEnd(t *testing.T) {
	s, out := newSession(t)
	_, err := s.Define(goreflect.TypeDef{
		Namespace:    "shop",
		Sample:       (*Inventory)(nil),
		Constructors: []any{NewInventory},
	})
	require.NoError(t, err)

	res, err := s.Eval(context.Background(), `
		object import shop
		set inv [object create Inventory ann]
		object invoke $inv Add apple
		object invoke $inv Add pear
		object foreach item [object invoke $inv Items] {
			puts "item [object invoke $item Name]"
		}
		set sb [object create strings.Builder]
		object invoke $sb WriteString [object invoke $inv Owner]
		object invoke $sb String
	`)
	require.NoError(t, err)
	assert.Equal(t, "ann", res)
	assert.Equal(t, "item apple\nitem pear\n", out.String())

	res, err = s.Eval(context.Background(), `
		object foreach item [object invoke $inv Items] { return found }
		puts unreachable
	`)
	require.NoError(t, err)
	assert.Equal(t, "found", res)
	assert.NotContains(t, out.String(), "unreachable")
}

func TestEvalCodes(t *testing.T) {
	s, _ := newSession(t)
	ctx := context.Background()

	res, err := s.Eval(ctx, "return early; set x late")
	require.NoError(t, err)
	assert.Equal(t, "early", res)

	_, err = s.Eval(ctx, "break")
	assert.ErrorContains(t, err, "outside of a loop")

	_, err = s.Eval(ctx, "object create no.Such")
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
}

func TestEvalFile(t *testing.T) {
	s, out := newSession(t)
	path := filepath.Join(t.TempDir(), "hello.tcl")
	require.NoError(t, os.WriteFile(path, []byte("puts [object invoke strings.Funcs ToUpper hi]\n"), 0o644))

	_, err := s.EvalFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "HI\n", out.String())

	_, err = s.EvalFile(context.Background(), filepath.Join(t.TempDir(), "missing.tcl"))
	assert.Error(t, err)
}

func TestSafeSession(t *testing.T) {
	s, _ := newSession(t, bridge.WithSafe(true))

	_, err := s.Eval(context.Background(), "object create strings.Builder")
	assert.ErrorContains(t, err, "permission denied")
	assert.True(t, s.Config().Engine.Safe)
}

func TestProto(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.LoadProto(map[string]string{"shop.proto": `
		syntax = "proto3";
		package shop;
		message Order { string item = 1; int32 qty = 2; }
	`}))

	res, err := s.Eval(context.Background(), `
		set o [object create shop.Order {{"item": "tea"}}]
		object invoke $o qty 3
		object invoke $o MarshalJSON
	`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"item": "tea", "qty": 3}`, res)
}

func TestTablesFromConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.yaml")
	var sb strings.Builder
	require.NoError(t, table.Encode(&sb, &table.File{
		Namespace: "shop",
		Package:   "example.com/shop",
		Types: []table.TypeSpec{{
			Name: "Inventory",
			Go:   "*shop.Inventory",
			Members: []table.MemberSpec{
				{Kind: "constructor", Name: "Inventory", Symbol: "NewInventory", Static: true,
					Params: []table.ParamSpec{{Name: "owner", Type: "string"}}, Result: "*Inventory"},
				{Kind: "method", Name: "Add", Params: []table.ParamSpec{{Name: "item", Type: "string"}}, Result: "int"},
				{Kind: "field", Name: "Owner", Type: "string"},
			},
		}},
	}))
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

	cfg := config.Default()
	cfg.Providers.Tables = []string{path}
	s, _ := newSession(t, bridge.WithConfig(cfg), bridge.WithoutStdTypes())
	require.NoError(t, s.Implement("shop.Inventory", table.Impl{
		Sample: (*Inventory)(nil),
		Funcs:  map[string]any{"NewInventory": NewInventory},
	}))

	res, err := s.Eval(context.Background(), `
		set inv [object create shop.Inventory bob]
		object invoke $inv Add x
		object invoke $inv Add y
	`)
	require.NoError(t, err)
	assert.Equal(t, "2", res)
	res, err = s.Eval(context.Background(), "object invoke $inv Owner")
	require.NoError(t, err)
	assert.Equal(t, "bob", res)

	for _, typ := range s.Types() {
		assert.NotEqual(t, "strings.Builder", typ.FullName())
	}
}

// recordingHost only tracks command registration.
type recordingHost struct {
	cmds map[string]bool
}

func newRecordingHost() *recordingHost { return &recordingHost{cmds: make(map[string]bool)} }

func (h *recordingHost) GetVar(string) (string, error) { return "", nil }
func (h *recordingHost) SetVar(string, string) error    { return nil }

func (h *recordingHost) Evaluate(context.Context, string) (object.Code, string, error) {
	return object.Ok, "", nil
}

func (h *recordingHost) RegisterCommand(name string, _ object.CommandFunc) error {
	h.cmds[name] = true
	return nil
}

func (h *recordingHost) RemoveCommand(name string) error {
	delete(h.cmds, name)
	return nil
}

func TestCustomHost(t *testing.T) {
	h := newRecordingHost()
	s, _ := newSession(t, bridge.WithHost(h))
	assert.True(t, h.cmds[config.CommandName])
	assert.Nil(t, s.Shell())

	_, err := s.Eval(context.Background(), "set a 1")
	assert.Error(t, err)

	res, err := s.Command(context.Background(), "create", "strings.Builder")
	require.NoError(t, err)
	assert.Equal(t, "Builder#1", res.Value)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MaxDepth = 0
	_, err := bridge.New(context.Background(), bridge.WithConfig(cfg), bridge.WithLogger(logging.Discard()))
	assert.ErrorContains(t, err, "max_depth")
}
