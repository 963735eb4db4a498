package stdtypes

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/hostbridge/internal/descriptor"
	"github.com/funvibe/hostbridge/internal/provider/table"
)

func newLib(t *testing.T) *table.Provider {
	t.Helper()
	p, err := New()
	require.NoError(t, err)
	return p
}

func call(t *testing.T, p *table.Provider, typ, name string, group int, target any, args ...any) any {
	t.Helper()
	for _, dt := range p.Types() {
		if dt.FullName() != typ {
			continue
		}
		for _, m := range dt.Members {
			if m.Name == name && m.Group == group && m.Kind&(descriptor.KindMethod|descriptor.KindConstructor) != 0 {
				v, err := m.Call(target, args)
				require.NoError(t, err, "%s.%s", typ, name)
				return v
			}
		}
	}
	require.Failf(t, "member not found", "%s.%s#%d", typ, name, group)
	return nil
}

func TestEveryTableTypeIsImplemented(t *testing.T) {
	p := newLib(t)
	names := make(map[string]bool)
	for _, dt := range p.Types() {
		names[dt.FullName()] = true
	}
	for name := range impls() {
		assert.True(t, names[name], "%s has no table entry", name)
	}
	assert.Len(t, names, len(impls()))
}

func TestStrings(t *testing.T) {
	p := newLib(t)

	b := call(t, p, "strings.Builder", "Builder", 0, nil)
	require.IsType(t, &strings.Builder{}, b)
	assert.Equal(t, "strings.Builder", p.TypeOf(b).FullName())
	call(t, p, "strings.Builder", "WriteString", 0, b, "abc")
	call(t, p, "strings.Builder", "WriteByte", 0, b, uint64('!'))
	assert.Equal(t, "abc!", call(t, p, "strings.Builder", "String", 0, b))
	assert.Equal(t, 4, call(t, p, "strings.Builder", "Len", 0, b))

	assert.Equal(t, []string{"a", "b"}, call(t, p, "strings.Funcs", "Split", 0, nil, "a,b", ","))
	assert.Equal(t, "x-y", call(t, p, "strings.Funcs", "Join", 0, nil, []any{"x", "y"}, "-"))
	assert.Equal(t, "ABC", call(t, p, "strings.Funcs", "ToUpper", 0, nil, "abc"))
}

func TestBytes(t *testing.T) {
	p := newLib(t)

	buf := call(t, p, "bytes.Buffer", "Buffer", 2, nil, "line one\nline two")
	require.IsType(t, &bytes.Buffer{}, buf)
	assert.Equal(t, "line one\n", call(t, p, "bytes.Buffer", "ReadString", 0, buf, uint64('\n')))
	call(t, p, "bytes.Buffer", "Write", 0, buf, []byte("!"))
	assert.Equal(t, []byte("line two!"), call(t, p, "bytes.Buffer", "Bytes", 0, buf))
	assert.Equal(t, true, call(t, p, "bytes.Funcs", "Equal", 0, nil, []byte("a"), []byte("a")))
}

func TestSQLite(t *testing.T) {
	p := newLib(t)

	db := call(t, p, "sql.DB", "DB", 0, nil, "sqlite", ":memory:")
	require.IsType(t, &sql.DB{}, db)
	t.Cleanup(func() { _ = db.(*sql.DB).Close() })

	call(t, p, "sql.DB", "Exec", 0, db, "create table kv (k text primary key, v integer)")
	res := call(t, p, "sql.DB", "Exec", 0, db, "insert into kv values (?, ?), (?, ?)", []any{"a", int64(1), "b", int64(2)})
	assert.Equal(t, "sql.Result", p.TypeOf(res).FullName())
	assert.Equal(t, int64(2), call(t, p, "sql.Result", "RowsAffected", 0, res))

	opts := call(t, p, "sql.TxOptions", "TxOptions", 0, nil)
	var isolation *descriptor.Member
	for _, dt := range p.Types() {
		for _, m := range dt.Members {
			if dt.FullName() == "sql.TxOptions" && m.Name == "Isolation" {
				isolation = m
			}
		}
	}
	require.NotNil(t, isolation)
	require.Equal(t, descriptor.ValueEnum, isolation.Type.Kind)
	require.NoError(t, isolation.Set(opts, int64(6)))
	assert.Equal(t, sql.LevelSerializable, opts.(*sql.TxOptions).Isolation)
	require.NoError(t, isolation.Set(opts, int64(0)))

	tx := call(t, p, "sql.DB", "Begin", 1, db, opts)
	call(t, p, "sql.Tx", "Exec", 0, tx, "update kv set v = v * 10")
	call(t, p, "sql.Tx", "Commit", 0, tx)

	rows := call(t, p, "sql.DB", "Query", 0, db, "select k, v from kv order by k")
	assert.Equal(t, []string{"k", "v"}, call(t, p, "sql.Rows", "Columns", 0, rows))
	var got [][]any
	for call(t, p, "sql.Rows", "Next", 0, rows) == true {
		got = append(got, call(t, p, "sql.Rows", "Values", 0, rows).([]any))
	}
	call(t, p, "sql.Rows", "Err", 0, rows)
	assert.Equal(t, [][]any{{"a", int64(10)}, {"b", int64(20)}}, got)
}

func TestUUID(t *testing.T) {
	p := newLib(t)

	id := call(t, p, "uuid.UUID", "UUID", 2, nil, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, uuid.NameSpaceDNS, id)
	assert.Equal(t, "uuid.UUID", p.TypeOf(id).FullName())
	assert.Equal(t, "urn:uuid:6ba7b810-9dad-11d1-80b4-00c04fd430c8", call(t, p, "uuid.UUID", "URN", 0, id))

	sha := call(t, p, "uuid.UUID", "UUID", 1, nil, id, []byte("example.com"))
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceDNS, []byte("example.com")), sha)

	s := call(t, p, "uuid.Funcs", "NewString", 0, nil).(string)
	assert.NoError(t, uuid.Validate(s))

	for _, dt := range p.Types() {
		if dt.FullName() != "uuid.UUID" {
			continue
		}
		for _, m := range dt.Members {
			if m.Kind == descriptor.KindConstructor && m.Group == 2 {
				_, err := m.Call(nil, []any{"not-a-uuid"})
				assert.Error(t, err)
			}
		}
	}
}
