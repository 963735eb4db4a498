package object

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/bridgeerr"
	"github.com/funvibe/hostbridge/internal/config"
	"github.com/funvibe/hostbridge/internal/provider"
	"github.com/funvibe/hostbridge/internal/provider/goreflect"
	"github.com/funvibe/hostbridge/internal/tcllist"
)

type Counter struct {
	Name   string
	Next   *Counter
	Total  int
	kids   []*Counter
	closed bool
}

func NewCounter(name string) *Counter { return &Counter{Name: name} }

func (c *Counter) Add(n int) int {
	c.Total += n
	return c.Total
}

func (c *Counter) Split(s string, head *string) string {
	h, rest, _ := strings.Cut(s, ",")
	*head = h
	return rest
}

func (c *Counter) Double(xs []int) {
	for i := range xs {
		xs[i] *= 2
	}
}

func (c *Counter) Kids() []*Counter { return c.kids }

func (c *Counter) Fail() error { return errors.New("boom") }

func (c *Counter) Close() error {
	c.closed = true
	return nil
}

// fakeHost is a tiny interpreter: a body is one command line with $var
// substitution.
type fakeHost struct {
	mu   sync.Mutex
	vars map[string]string
	cmds map[string]CommandFunc
}

func newFakeHost() *fakeHost {
	return &fakeHost{vars: make(map[string]string), cmds: make(map[string]CommandFunc)}
}

func (h *fakeHost) GetVar(name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.vars[name]
	if !ok {
		return "", fmt.Errorf("can't read %q: no such variable", name)
	}
	return v, nil
}

func (h *fakeHost) SetVar(name, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vars[name] = value
	return nil
}

func (h *fakeHost) RegisterCommand(name string, fn CommandFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds[name] = fn
	return nil
}

func (h *fakeHost) RemoveCommand(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.cmds, name)
	return nil
}

func (h *fakeHost) hasCommand(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.cmds[name]
	return ok
}

func (h *fakeHost) Evaluate(ctx context.Context, body string) (Code, string, error) {
	words, err := tcllist.Split(body)
	if err != nil {
		return Error, "", err
	}
	if len(words) == 0 {
		return Ok, "", nil
	}
	for i, w := range words {
		if strings.HasPrefix(w, "$") {
			if words[i], err = h.GetVar(w[1:]); err != nil {
				return Error, "", err
			}
		}
	}
	switch words[0] {
	case "break":
		return Break, "", nil
	case "continue":
		return Continue, "", nil
	case "return":
		return Return, strings.Join(words[1:], " "), nil
	}
	h.mu.Lock()
	fn, ok := h.cmds[words[0]]
	h.mu.Unlock()
	if !ok {
		return Error, "", fmt.Errorf("invalid command name %q", words[0])
	}
	res, err := fn(ctx, words[1:])
	if err != nil {
		return Error, err.Error(), err
	}
	return Ok, res, nil
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeHost, *goreflect.Library) {
	t.Helper()
	lib := goreflect.New("demo")
	lib.MustDefine(goreflect.TypeDef{
		Namespace:    "demo",
		Sample:       (*Counter)(nil),
		Constructors: []any{NewCounter},
		Funcs: []goreflect.Func{
			{Name: "Do", Fn: func(c *Counter, n int) string { return "int" }},
			{Name: "Do", Fn: func(c *Counter, s string) string { return "string" }},
		},
	})
	h := newFakeHost()
	e := New(h, provider.Set{lib}, opts...)
	h.cmds["object"] = e.Handler()
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e, h, lib
}

func run(t *testing.T, e *Engine, words ...string) Result {
	t.Helper()
	res, err := e.Command(context.Background(), words)
	require.NoError(t, err, strings.Join(words, " "))
	return res
}

func runErr(t *testing.T, e *Engine, words ...string) error {
	t.Helper()
	_, err := e.Command(context.Background(), words)
	require.Error(t, err, strings.Join(words, " "))
	return err
}

func counterOf(t *testing.T, e *Engine, name string) *Counter {
	t.Helper()
	entry, ok := e.Handles().Lookup(name)
	require.True(t, ok, name)
	return entry.Value.(*Counter)
}

func TestCreateInvokeDispose(t *testing.T) {
	e, _, _ := newTestEngine(t)

	c := run(t, e, "create", "demo.Counter", "a").Value
	assert.Equal(t, "Counter#1", c)

	assert.Equal(t, "2", run(t, e, "invoke", c, "Add", "2").Value)
	assert.Equal(t, "5", run(t, e, "invoke", c, "Add", "3").Value)
	assert.Equal(t, "5", run(t, e, "invoke", c, "Total").Value)

	counter := counterOf(t, e, c)
	assert.Equal(t, "removed 1 disposed 1", run(t, e, "dispose", c).Value)
	assert.True(t, counter.closed)

	err := runErr(t, e, "invoke", c, "Add", "1")
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
	assert.Equal(t, "0", run(t, e, "exists", c).Value)
}

func TestCreateWithImports(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := runErr(t, e, "create", "Counter", "a")
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)

	assert.Equal(t, "demo", run(t, e, "import", "demo").Value)
	assert.Equal(t, "Counter#1", run(t, e, "create", "Counter", "a").Value)
	assert.Equal(t, "Counter#2", run(t, e, "create", "-namespaces", "other", "Counter", "b").Value)
	assert.Equal(t, "demo", run(t, e, "imports").Value)
	assert.Equal(t, "", run(t, e, "unimport").Value)
}

func TestCreateNamedObject(t *testing.T) {
	e, _, _ := newTestEngine(t)

	assert.Equal(t, "main", run(t, e, "create", "-objectname", "main", "demo.Counter", "a").Value)
	err := runErr(t, e, "create", "-objectname", "main", "demo.Counter", "b")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestFieldReadWrite(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	assert.Equal(t, "a", run(t, e, "invoke", c, "Name").Value)
	assert.Equal(t, "", run(t, e, "invoke", c, "Name", "b").Value)
	assert.Equal(t, "b", run(t, e, "invoke", c, "Name").Value)

	err := runErr(t, e, "invoke", c, "Name", "x", "y")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestNestedPathNullPolicy(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	assert.Equal(t, "null", run(t, e, "invoke", c, "Next").Value)
	assert.Equal(t, "1", run(t, e, "isnull", "null").Value)

	err := runErr(t, e, "invoke", c, "Next.Name")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
	assert.Equal(t, "null", run(t, e, "invoke", "-nullpolicy", "ignore", c, "Next.Name").Value)

	counterOf(t, e, c).Next = &Counter{Name: "child"}
	assert.Equal(t, "child", run(t, e, "invoke", c, "Next.Name").Value)
}

func TestOverloadSelection(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	assert.Equal(t, "int", run(t, e, "invoke", c, "Do", "5").Value)
	assert.Equal(t, "string", run(t, e, "invoke", c, "Do", "abc").Value)

	err := runErr(t, e, "invoke", "-strictmember", c, "Do", "5")
	assert.ErrorIs(t, err, bridgeerr.ErrAmbiguous)

	assert.Equal(t, "string", run(t, e, "invoke", "-index", "1", c, "Do", "5").Value)

	sigs, err := tcllist.Split(run(t, e, "invoke", "-noinvoke", c, "Do", "5").Value)
	require.NoError(t, err)
	assert.Equal(t, []string{"Do(arg1 int) string", "Do(arg1 string) string"}, sigs)

	err = runErr(t, e, "invoke", c, "Do", "1", "2")
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
}

func TestByRefOutputs(t *testing.T) {
	e, h, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	res := run(t, e, "invoke", c, "Split", "x,y")
	assert.Equal(t, "y", res.Value)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "x", res.Outputs[0].Text)

	res = run(t, e, "invoke", "-byrefvars", "head", c, "Split", "p,q")
	assert.Equal(t, "q", res.Value)
	assert.Empty(t, res.Outputs)
	v, err := h.GetVar("head")
	require.NoError(t, err)
	assert.Equal(t, "p", v)
}

func TestByRefOutputsThroughHandler(t *testing.T) {
	e, h, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value
	handler := e.Handler()

	out, err := handler(context.Background(), []string{"invoke", c, "Split", "x,y"})
	require.NoError(t, err)
	assert.Equal(t, "y x", out)

	out, err = handler(context.Background(), []string{"invoke", "-byrefvars", "head", c, "Split", "p,q"})
	require.NoError(t, err)
	assert.Equal(t, "q", out)
	v, err := h.GetVar("head")
	require.NoError(t, err)
	assert.Equal(t, "p", v)

	out, err = handler(context.Background(), []string{"invoke", c, "Split", "solo"})
	require.NoError(t, err)
	assert.Equal(t, "{} solo", out)
}

func TestListArguments(t *testing.T) {
	e, h, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	err := runErr(t, e, "invoke", c, "Double", "1 2 3")
	assert.ErrorContains(t, err, "-arrayasvalue")

	assert.Equal(t, "", run(t, e, "invoke", "-arrayasvalue", c, "Double", "1 2 3").Value)

	require.NoError(t, h.SetVar("nums", "1 2 3"))
	run(t, e, "invoke", "-arrayaslink", c, "Double", "nums")
	v, err := h.GetVar("nums")
	require.NoError(t, err)
	assert.Equal(t, "2 4 6", v)
}

func TestInvokeAllKeepResults(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	res := run(t, e, "invokeall", "-nocomplain", "-keepresults", c, "Add 1", "Fail", "Add 2")
	assert.Equal(t, 1, res.ErrorCount)

	pairs, err := tcllist.Split(res.Value)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, "ok 1", pairs[0])
	assert.True(t, strings.HasPrefix(pairs[1], "error "), pairs[1])
	assert.Contains(t, pairs[1], "boom")
	assert.Equal(t, "ok 3", pairs[2])

	_, err = e.Command(context.Background(), []string{"invokeall", c, "Add 1", "Fail", "Add 2"})
	assert.ErrorIs(t, err, bridgeerr.ErrForeign)
	assert.Equal(t, 4, counterOf(t, e, c).Total)

	assert.Equal(t, "9", run(t, e, "invokeall", "-lastresult", c, "Add 2", "Add 3").Value)
}

func TestInvokeAllChained(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value
	counterOf(t, e, c).Next = &Counter{Name: "child"}

	assert.Equal(t, "child", run(t, e, "invokeall", "-chained", "-lastresult", c, "Next", "Name").Value)

	err := runErr(t, e, "invokeall", "-chained", c, "Name", "Add 1")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestInvokeAllObjectNameNamesLastStep(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value
	counter := counterOf(t, e, c)
	counter.Next = &Counter{Name: "child", kids: []*Counter{{Name: "y"}}}
	counter.kids = []*Counter{{Name: "x"}}

	values, err := tcllist.Split(run(t, e, "invokeall", "-objectname", "kids", c, "Next", "Kids").Value)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.NotEqual(t, "kids", values[0])
	assert.Equal(t, "kids", values[1])
	assert.Equal(t, "1", run(t, e, "exists", values[0]).Value)

	assert.Equal(t, "chain", run(t, e, "invokeall", "-chained", "-lastresult", "-objectname", "chain", c, "Next", "Kids").Value)
}

func TestInvokeForwarding(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	assert.Equal(t, "4", run(t, e, "invoke", "-invokeall", c, "Add", "4").Value)
	assert.Equal(t, "7", run(t, e, "invoke", "-invokeraw", c, "Add", "3").Value)
	assert.Equal(t, "8", run(t, e, "invokeraw", c, "Add", "1").Value)
	assert.Equal(t, c, run(t, e, "invoke", "-identity", c).Value)
	assert.Equal(t, "demo.Counter", run(t, e, "invoke", "-typeidentity", c).Value)
}

func TestIdentityOfValueHandle(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value
	counterOf(t, e, c).kids = []*Counter{{Name: "x"}}
	kids := run(t, e, "invoke", c, "Kids").Value
	before := run(t, e, "names").Value

	assert.Equal(t, kids, run(t, e, "invoke", "-identity", kids).Value)
	assert.Equal(t, kids, run(t, e, "invoke", "-identity", kids).Value)
	assert.Equal(t, before, run(t, e, "names").Value)
}

func TestReferenceCounting(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value
	counter := counterOf(t, e, c)

	assert.Equal(t, "1", run(t, e, "addref", c).Value)
	assert.Equal(t, "1", run(t, e, "refcount", c).Value)

	err := runErr(t, e, "dispose", c)
	assert.ErrorIs(t, err, bridgeerr.ErrLifecycle)

	assert.Equal(t, "0", run(t, e, "removeref", c).Value)
	assert.Equal(t, "0", run(t, e, "exists", c).Value)
	assert.True(t, counter.closed)

	err = runErr(t, e, "removeref", c)
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
}

func TestDisposeOptions(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := run(t, e, "create", "demo.Counter", "a").Value
	b := run(t, e, "create", "-nodispose", "demo.Counter", "b").Value
	counterB := counterOf(t, e, b)

	run(t, e, "addref", a)
	assert.Equal(t, "removed 1 disposed 0", run(t, e, "dispose", "-nocomplain", a, b).Value)
	assert.False(t, counterB.closed)

	assert.Equal(t, "removed 1 disposed 1", run(t, e, "dispose", "-force", a).Value)
	assert.Equal(t, "removed 0 disposed 0", run(t, e, "dispose", "missing").Value)
}

func TestCleanup(t *testing.T) {
	e, _, _ := newTestEngine(t)
	a := run(t, e, "create", "demo.Counter", "a").Value
	b := run(t, e, "create", "demo.Counter", "b").Value
	run(t, e, "create", "-objectname", "keep", "demo.Counter", "c")
	run(t, e, "addref", b)

	assert.Equal(t, "removed 1 disposed 0 skipped 0",
		run(t, e, "cleanup", "-noremove", "-references", "-pattern", "Counter#*", "-referencecount", "1").Value)

	err := runErr(t, e, "cleanup", "-pattern", "Counter#*")
	assert.ErrorIs(t, err, bridgeerr.ErrLifecycle)
	assert.Equal(t, "0", run(t, e, "exists", a).Value)

	assert.Equal(t, "removed 1 disposed 1 skipped 0",
		run(t, e, "cleanup", "-references", "-pattern", "Counter#*").Value)
	assert.Equal(t, "keep", run(t, e, "names").Value)
}

func TestAliases(t *testing.T) {
	e, h, _ := newTestEngine(t)
	c := run(t, e, "create", "-alias", "demo.Counter", "a").Value
	require.True(t, h.hasCommand(c))

	code, out, err := h.Evaluate(context.Background(), c+" Add 5")
	require.NoError(t, err)
	assert.Equal(t, Ok, code)
	assert.Equal(t, "5", out)

	run(t, e, "unalias", c)
	assert.False(t, h.hasCommand(c))

	assert.Equal(t, c, run(t, e, "alias", "-aliasall", c).Value)
	_, out, err = h.Evaluate(context.Background(), c+" {Add 1} {Add 1}")
	require.NoError(t, err)
	assert.Equal(t, "6 7", out)

	run(t, e, "dispose", c)
	assert.False(t, h.hasCommand(c))
}

func TestForeachAndLmap(t *testing.T) {
	e, _, _ := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "parent").Value
	counterOf(t, e, c).kids = []*Counter{{Name: "x"}, {Name: "y"}}
	kids := run(t, e, "invoke", c, "Kids").Value
	before := run(t, e, "names").Value

	assert.Equal(t, "x y", run(t, e, "lmap", "k", kids, "object invoke $k Name").Value)
	assert.Equal(t, before, run(t, e, "names").Value)

	run(t, e, "foreach", "k", kids, "break")
	assert.Equal(t, before, run(t, e, "names").Value)

	res := run(t, e, "foreach", "k", kids, "return done")
	assert.Equal(t, Return, res.Code)
	assert.Equal(t, "done", res.Value)

	run(t, e, "foreach", "k", kids, "object addref $k")
	names, err := tcllist.Split(run(t, e, "names").Value)
	require.NoError(t, err)
	assert.Len(t, names, 4)

	_, err = e.Command(context.Background(), []string{"foreach", "k", kids, "nosuch"})
	assert.ErrorContains(t, err, "invalid command name")

	err = runErr(t, e, "foreach", "k", c, "break")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}

func TestIntrospection(t *testing.T) {
	e, _, lib := newTestEngine(t)
	c := run(t, e, "create", "demo.Counter", "a").Value

	assert.Equal(t, "demo.Counter", run(t, e, "type", c).Value)
	assert.Equal(t, "demo.Counter", run(t, e, "type", "demo.Counter").Value)
	assert.Equal(t, "1", run(t, e, "isoftype", c, "demo.Counter").Value)
	assert.Equal(t, "demo.Counter", run(t, e, "search", "demo.*").Value)
	assert.Equal(t, "Add", run(t, e, "members", "-pattern", "A*", "demo.Counter").Value)
	assert.Equal(t, "{Add(arg1 int) int}", run(t, e, "members", "-signatures", "-pattern", "Add", c).Value)

	main := NewCounter("main")
	lib.Provide("main", main)
	got := run(t, e, "get", "main").Value
	assert.Same(t, main, counterOf(t, e, got))

	err := runErr(t, e, "get", "nothing")
	assert.ErrorIs(t, err, bridgeerr.ErrNotFound)
}

func TestSafeSession(t *testing.T) {
	e, _, _ := newTestEngine(t, WithSafe(true))

	err := runErr(t, e, "create", "demo.Counter", "a")
	assert.ErrorContains(t, err, "permission denied")
	assert.Equal(t, "0", run(t, e, "exists", "Counter#1").Value)
}

func TestDepthLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.MaxDepth = 1
	e, _, _ := newTestEngine(t, WithConfig(cfg))
	c := run(t, e, "create", "demo.Counter", "a").Value

	err := runErr(t, e, "invoke", "-invokeall", c, "Add", "1")
	assert.ErrorContains(t, err, "too many nested")
}

func TestUnknownVerbAndOptions(t *testing.T) {
	e, _, _ := newTestEngine(t)

	err := runErr(t, e, "frobnicate")
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)

	err = runErr(t, e, "invoke", "-bogus", "x", "y")
	assert.ErrorContains(t, err, `bad option "-bogus"`)

	err = runErr(t, e, "invoke", "x")
	assert.ErrorContains(t, err, "wrong # args")

	err = runErr(t, e)
	assert.ErrorIs(t, err, bridgeerr.ErrArgument)
}
