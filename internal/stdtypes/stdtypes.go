// Package stdtypes is the built-in type library: strings.Builder,
// bytes.Buffer, database/sql over the pure-Go sqlite driver, and UUIDs.
//
// The descriptor tables in tables/ started from `hostbridge describe`
// output and were trimmed by hand; this package supplies the functions
// and Go types behind them.
package stdtypes

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/funvibe/hostbridge/internal/provider/table"
)

//go:embed tables/*.yaml
var tables embed.FS

// Name is the provider name of the built-in library.
const Name = "std"

// New returns a table provider with the built-in types loaded.
func New(opts ...table.Option) (*table.Provider, error) {
	p := table.New(Name, opts...)
	if err := Install(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Install loads the built-in tables into p and implements them.
func Install(p *table.Provider) error {
	var files []*table.File
	err := fs.WalkDir(tables, "tables", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fh, err := tables.Open(path)
		if err != nil {
			return err
		}
		defer fh.Close()
		decoded, err := table.Decode(fh)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		files = append(files, decoded...)
		return nil
	})
	if err != nil {
		return err
	}
	if err := p.Load(files...); err != nil {
		return err
	}
	for name, impl := range impls() {
		if err := p.Implement(name, impl); err != nil {
			return err
		}
	}
	return nil
}

func impls() map[string]table.Impl {
	return map[string]table.Impl{
		"strings.Builder": {Sample: (*strings.Builder)(nil)},
		"strings.Funcs": {Funcs: map[string]any{
			"Contains":   strings.Contains,
			"Count":      strings.Count,
			"EqualFold":  strings.EqualFold,
			"Fields":     strings.Fields,
			"HasPrefix":  strings.HasPrefix,
			"HasSuffix":  strings.HasSuffix,
			"Index":      strings.Index,
			"Join":       strings.Join,
			"Repeat":     strings.Repeat,
			"ReplaceAll": strings.ReplaceAll,
			"Split":      strings.Split,
			"ToLower":    strings.ToLower,
			"ToUpper":    strings.ToUpper,
			"TrimSpace":  strings.TrimSpace,
		}},

		"bytes.Buffer": {Sample: (*bytes.Buffer)(nil), Funcs: map[string]any{
			"NewBuffer":       bytes.NewBuffer,
			"NewBufferString": bytes.NewBufferString,
		}},
		"bytes.Funcs": {Funcs: map[string]any{
			"Contains": bytes.Contains,
			"Equal":    bytes.Equal,
			"ToUpper":  bytes.ToUpper,
		}},

		"sql.IsolationLevel": {Sample: sql.LevelDefault},
		"sql.TxOptions":      {Sample: (*sql.TxOptions)(nil)},
		"sql.DB": {Sample: (*sql.DB)(nil), Funcs: map[string]any{
			"Open":         openDB,
			"BeginOptions": beginOptions,
		}},
		"sql.Tx":     {Sample: (*sql.Tx)(nil)},
		"sql.Rows":   {Sample: (*sql.Rows)(nil), Funcs: map[string]any{"Values": rowValues}},
		"sql.Result": {Sample: (*sql.Result)(nil)},

		"uuid.UUID": {Sample: uuid.UUID{}, Funcs: map[string]any{
			"New":     uuid.New,
			"NewSHA1": uuid.NewSHA1,
			"Parse":   uuid.Parse,
		}},
		"uuid.Funcs": {Funcs: map[string]any{
			"NewString": uuid.NewString,
			"Validate":  uuid.Validate,
		}},
	}
}

// openDB opens a database. In-memory sqlite databases are private to one
// connection, so the pool is pinned to a single connection for them.
func openDB(driverName, dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite" && strings.Contains(dataSourceName, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func beginOptions(db *sql.DB, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.BeginTx(context.Background(), opts)
}

// rowValues scans the current row. Text and blob columns both arrive as
// []byte from some drivers; they are returned as strings.
func rowValues(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}
