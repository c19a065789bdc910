// Package sqliteview is a satellite workspace.Extension that materializes
// one table's valid rows into an in-process SQLite database, so anything
// that wants to run ad-hoc SQL (a reporting dashboard, a debugging shell)
// can query a workspace table without the core engine growing a query
// language of its own (spec.md's core is explicitly CRDT storage +
// observation only — SQL is an external collaborator's job).
//
// Grounded on kasuganosora-sqlexec's pkg/pool connection-pool tests, which
// open modernc.org/sqlite (pure-Go, no cgo) via database/sql the same way
// this extension does.
package sqliteview

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Leftium/epicenter/pkg/field"
	"github.com/Leftium/epicenter/pkg/table"
	"github.com/Leftium/epicenter/pkg/workspace"
)

// Config names the table to project. The SQLite columns are derived from the
// table's field definitions; there is no separate column mapping.
type Config struct {
	Table *table.Table
}

// Provider owns an in-memory SQLite database kept in sync with Config.Table.
type Provider struct {
	workspace.NoOpExtension

	cfg Config
	db  *sql.DB

	unsubscribe func()
}

// New returns a factory suitable for workspace.Client.WithExtension.
func New(cfg Config) workspace.Factory {
	return func(c *workspace.Client) (workspace.Extension, error) {
		db, err := sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("sqliteview: open: %w", err)
		}
		p := &Provider{cfg: cfg, db: db}
		if err := p.createSchema(); err != nil {
			db.Close()
			return nil, err
		}
		p.unsubscribe = cfg.Table.Observe(func(table.ChangeSet) {
			_ = p.refresh()
		})
		return p, nil
	}
}

func sqlType(k field.Kind) string {
	switch k {
	case field.KindInteger:
		return "INTEGER"
	case field.KindReal:
		return "REAL"
	case field.KindBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func (p *Provider) createSchema() error {
	def := p.cfg.Table.Definition()
	cols := make([]string, 0, len(def.Fields))
	for _, f := range def.Fields {
		cols = append(cols, fmt.Sprintf("%q %s", f.ID, sqlType(f.Kind)))
	}
	stmt := fmt.Sprintf("CREATE TABLE %q (%s)", def.ID, strings.Join(cols, ", "))
	_, err := p.db.Exec(stmt)
	return err
}

// WhenReady does an initial full refresh from the live table.
func (p *Provider) WhenReady(ctx context.Context) error { return p.refresh() }

// refresh truncates and repopulates the SQLite projection from the table's
// current valid rows. Simple and correct over incremental, given this is a
// debugging/reporting satellite, not the hot path.
func (p *Provider) refresh() error {
	def := p.cfg.Table.Definition()
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q", def.ID)); err != nil {
		tx.Rollback()
		return err
	}
	placeholders := make([]string, len(def.Fields))
	colNames := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		placeholders[i] = "?"
		colNames[i] = fmt.Sprintf("%q", f.ID)
	}
	insert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", def.ID, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))
	for _, row := range p.cfg.Table.GetAllValid() {
		args := make([]any, len(def.Fields))
		for i, f := range def.Fields {
			args[i] = row[f.ID]
		}
		if _, err := tx.Exec(insert, args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query runs a read-only SQL query against the materialized projection.
func (p *Provider) Query(sqlText string, args ...any) (*sql.Rows, error) {
	return p.db.Query(sqlText, args...)
}

// Destroy unsubscribes from table changes and closes the SQLite database.
func (p *Provider) Destroy(ctx context.Context) error {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	return p.db.Close()
}
