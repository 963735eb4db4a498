package bindgen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/provider/table"
)

func member(t *testing.T, ts table.TypeSpec, kind, name string) table.MemberSpec {
	t.Helper()
	for _, m := range ts.Members {
		if m.Kind == kind && m.Name == name {
			return m
		}
	}
	require.Failf(t, "member not found", "%s %s.%s", kind, ts.Name, name)
	return table.MemberSpec{}
}

func typeSpec(t *testing.T, f *table.File, name string) table.TypeSpec {
	t.Helper()
	for _, ts := range f.Types {
		if ts.Name == name {
			return ts
		}
	}
	require.Failf(t, "type not found", "%s", name)
	return table.TypeSpec{}
}

func TestDescribeBytes(t *testing.T) {
	files, err := Describe(context.Background(), Options{Types: []string{"Buffer", FuncsType}}, "bytes")
	require.NoError(t, err)
	require.Len(t, files, 1)
	f := files[0]
	assert.Equal(t, "bytes", f.Namespace)
	assert.Equal(t, "bytes", f.Package)
	require.Len(t, f.Types, 2)

	buf := typeSpec(t, f, "Buffer")
	assert.Equal(t, "*bytes.Buffer", buf.Go)
	var ctors []string
	for _, m := range buf.Members {
		if m.Kind == "constructor" {
			ctors = append(ctors, m.Symbol)
		}
	}
	assert.Equal(t, []string{"new", "NewBuffer", "NewBufferString"}, ctors)
	assert.Equal(t, "constructor", buf.Members[0].Kind)

	ws := member(t, buf, "method", "WriteString")
	require.Len(t, ws.Params, 1)
	assert.Equal(t, table.ParamSpec{Name: "s", Type: "string"}, ws.Params[0])
	assert.Equal(t, "int", ws.Result)
	assert.Equal(t, "byte", member(t, buf, "method", "ReadByte").Result)
	assert.Equal(t, "io.Reader", member(t, buf, "method", "ReadFrom").Params[0].Type)

	funcs := typeSpec(t, f, FuncsType)
	contains := member(t, funcs, "method", "Contains")
	assert.True(t, contains.Static)
	assert.Equal(t, "[]byte", contains.Params[0].Type)
	assert.Equal(t, "bool", contains.Result)
	for _, m := range funcs.Members {
		assert.NotEqual(t, "FieldsFunc", m.Name, "func parameters cannot be described")
	}
}

func TestDescribeSQL(t *testing.T) {
	files, err := Describe(context.Background(), Options{Types: []string{"DB", "IsolationLevel", "Result"}, Namespace: "sqldb"}, "database/sql")
	require.NoError(t, err)
	f := files[0]
	assert.Equal(t, "sqldb", f.Namespace)

	level := typeSpec(t, f, "IsolationLevel")
	require.Len(t, level.Enum, 8)
	assert.Equal(t, table.EnumSpec{Name: "LevelDefault", Value: 0}, level.Enum[0])
	assert.Equal(t, table.EnumSpec{Name: "LevelLinearizable", Value: 7}, level.Enum[7])
	assert.False(t, level.Flags)

	db := typeSpec(t, f, "DB")
	open := member(t, db, "constructor", "DB")
	assert.Equal(t, "new", open.Symbol)
	var symbols []string
	for _, m := range db.Members {
		if m.Kind == "constructor" {
			symbols = append(symbols, m.Symbol)
		}
	}
	assert.Contains(t, symbols, "Open")

	exec := member(t, db, "method", "Exec")
	require.Len(t, exec.Params, 2)
	assert.True(t, exec.Params[1].Variadic)
	assert.Equal(t, "any", exec.Params[1].Type)
	assert.Equal(t, "Result", exec.Result)
	assert.Equal(t, "int64", member(t, db, "method", "SetConnMaxLifetime").Params[0].Type)
	for _, m := range db.Members {
		assert.False(t, strings.HasSuffix(m.Name, "Context"), "%s takes a context", m.Name)
	}

	result := typeSpec(t, f, "Result")
	assert.True(t, result.Interface)
	assert.Len(t, result.Members, 2)
}

func TestDescribedTableLoads(t *testing.T) {
	files, err := Describe(context.Background(), Options{Types: []string{"Builder"}}, "strings")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, table.Encode(&sb, files...))
	decoded, err := table.Decode(strings.NewReader(sb.String()))
	require.NoError(t, err)

	p := table.New("strings")
	require.NoError(t, p.Load(decoded...))
	require.NoError(t, p.Implement("strings.Builder", table.Impl{Sample: (*strings.Builder)(nil)}))

	typ := p.Types()[0]
	var ctor, write, str *descriptor.Member
	for _, m := range typ.Members {
		switch {
		case m.Kind == descriptor.KindConstructor:
			ctor = m
		case m.Name == "WriteString":
			write = m
		case m.Name == "String":
			str = m
		}
	}
	require.NotNil(t, ctor)
	b, err := ctor.Call(nil, nil)
	require.NoError(t, err)
	_, err = write.Call(b, []any{"hello"})
	require.NoError(t, err)
	got, err := str.Call(b, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestDescribeReportsLoadErrors(t *testing.T) {
	_, err := Describe(context.Background(), Options{}, "example.invalid/does/not/exist")
	assert.Error(t, err)
}

func TestIsFlags(t *testing.T) {
	assert.True(t, isFlags([]table.EnumSpec{{Value: 0}, {Value: 1}, {Value: 2}, {Value: 4}}))
	assert.False(t, isFlags([]table.EnumSpec{{Value: 1}, {Value: 2}}))
	assert.False(t, isFlags([]table.EnumSpec{{Value: 1}, {Value: 2}, {Value: 3}, {Value: 4}}))
}
