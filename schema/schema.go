// Package schema builds and applies DDL from table blueprints.
//
// A Blueprint describes a table's columns, indexes and foreign keys; the
// Builder translates it into dialect-specific DDL and executes it:
//
//	err := builder.Create(ctx, "books", func(t *schema.Blueprint) {
//		t.ID()
//		t.String("title")
//		t.ForeignID("category_id").Constrained().OnDelete(schema.Cascade)
//		t.Timestamps()
//		t.SoftDeletes()
//	})
//
// DDL batches are not atomic on every backend (MySQL commits implicitly
// per statement); the builder therefore fails closed, aborting on the
// first failing statement without attempting to roll back earlier ones.
package schema

import (
	"context"
	"fmt"

	"github.com/weavedb/loom/dialect"
)

// Error is a DDL failure. It aborts the blueprint being applied; already
// executed statements of the same blueprint remain in effect.
type Error struct {
	Table string
	Stmt  string
	Err   error
}

// Error returns the error string.
func (e *Error) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("schema: %v", e.Err)
	}
	return fmt.Sprintf("schema: %s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Builder composes and executes DDL statements against a driver.
type Builder struct {
	drv    dialect.Driver
	prefix string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPrefix prepends the given prefix to every table name the builder
// touches (multi-tenant style isolation).
func WithPrefix(prefix string) BuilderOption {
	return func(b *Builder) { b.prefix = prefix }
}

// NewBuilder returns a schema builder for the given driver.
func NewBuilder(drv dialect.Driver, opts ...BuilderOption) *Builder {
	b := &Builder{drv: drv}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Prefix returns the configured table prefix.
func (b *Builder) Prefix() string { return b.prefix }

func (b *Builder) grammar() grammar {
	return grammar{dialect: b.drv.Dialect(), prefix: b.prefix}
}

// Create builds a new table from the blueprint populated by fn.
func (b *Builder) Create(ctx context.Context, name string, fn func(*Blueprint)) error {
	t := &Blueprint{name: name, create: true}
	fn(t)
	stmts, err := b.grammar().create(t)
	if err != nil {
		return &Error{Table: name, Err: err}
	}
	return b.exec(ctx, name, stmts)
}

// Table alters an existing table with the commands recorded by fn.
func (b *Builder) Table(ctx context.Context, name string, fn func(*Blueprint)) error {
	t := &Blueprint{name: name}
	fn(t)
	stmts, err := b.grammar().alter(t)
	if err != nil {
		return &Error{Table: name, Err: err}
	}
	return b.exec(ctx, name, stmts)
}

// Drop removes the table, failing if it does not exist.
func (b *Builder) Drop(ctx context.Context, name string) error {
	g := b.grammar()
	return b.exec(ctx, name, []string{"DROP TABLE " + g.table(name)})
}

// DropIfExists removes the table if present; absent tables are not an error.
func (b *Builder) DropIfExists(ctx context.Context, name string) error {
	g := b.grammar()
	return b.exec(ctx, name, []string{"DROP TABLE IF EXISTS " + g.table(name)})
}

// Rename renames a table.
func (b *Builder) Rename(ctx context.Context, from, to string) error {
	g := b.grammar()
	stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s", g.table(from), g.table(to))
	if b.drv.Dialect() == dialect.MySQL {
		stmt = fmt.Sprintf("RENAME TABLE %s TO %s", g.table(from), g.table(to))
	}
	return b.exec(ctx, from, []string{stmt})
}

// DropAll drops every table reported by the backend, disabling foreign-key
// enforcement for the duration where the dialect requires it.
func (b *Builder) DropAll(ctx context.Context) error {
	tables, err := b.Tables(ctx)
	if err != nil {
		return err
	}
	g := b.grammar()
	switch b.drv.Dialect() {
	case dialect.SQLite:
		if err := b.drv.Exec(ctx, "PRAGMA foreign_keys = OFF", []any{}, nil); err != nil {
			return &Error{Err: err}
		}
		defer b.drv.Exec(ctx, "PRAGMA foreign_keys = ON", []any{}, nil) //nolint:errcheck
	case dialect.MySQL:
		if err := b.drv.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 0", []any{}, nil); err != nil {
			return &Error{Err: err}
		}
		defer b.drv.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 1", []any{}, nil) //nolint:errcheck
	}
	for _, name := range tables {
		stmt := "DROP TABLE IF EXISTS " + g.quote(name)
		if b.drv.Dialect() == dialect.Postgres {
			stmt += " CASCADE"
		}
		if err := b.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return &Error{Table: name, Stmt: stmt, Err: err}
		}
	}
	return nil
}

// Raw executes a raw DDL or SQL statement. Migration files loaded from
// disk run through it.
func (b *Builder) Raw(ctx context.Context, stmt string) error {
	if err := b.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
		return &Error{Stmt: stmt, Err: err}
	}
	return nil
}

// exec runs the statements in order, failing closed on the first error.
func (b *Builder) exec(ctx context.Context, table string, stmts []string) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return &Error{Table: table, Stmt: stmt, Err: err}
		}
	}
	return nil
}
