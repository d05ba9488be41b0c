package dialect

import (
	"context"
	"log/slog"
	"time"
)

// Supported dialect names. The name is the same string used to register
// the underlying database/sql driver.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the two basic Exec and Query methods.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. The args are
	// expected to be a []any and v (optional) a *sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. The args are expected
	// to be a []any and v a *sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all database operations.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction commit and rollback on top of the basic operations.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

// NopTx returns a Tx with a no-op Commit / Rollback.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

// DebugDriver is a driver that logs all driver operations.
type DebugDriver struct {
	Driver                                   // underlying driver.
	log    func(context.Context, slog.Level, string, ...any) // log function.
}

// Debug gets a driver and returns a new debug driver logging
// with slog.Default at level Debug.
func Debug(d Driver) Driver {
	return DebugWith(d, slog.Default())
}

// DebugWith gets a driver and a logger, and returns a new debug driver.
func DebugWith(d Driver, logger *slog.Logger) Driver {
	drv := &DebugDriver{d, logger.Log}
	return drv
}

// Exec logs its params and calls the underlying driver Exec method.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.log(ctx, slog.LevelDebug, "driver.Exec", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Query logs its params and calls the underlying driver Query method.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.log(ctx, slog.LevelDebug, "driver.Query", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Tx adds a log-id for the transaction and calls the underlying driver Tx command.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	d.log(ctx, slog.LevelDebug, "driver.Tx", "started", true)
	return &DebugTx{tx, d.log, ctx}, nil
}

// DebugTx is a transaction implementation that logs all transaction operations.
type DebugTx struct {
	Tx
	log func(context.Context, slog.Level, string, ...any)
	ctx context.Context
}

// Exec logs its params and calls the underlying transaction Exec method.
func (d *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Exec(ctx, query, args, v)
	d.log(ctx, slog.LevelDebug, "tx.Exec", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Query logs its params and calls the underlying transaction Query method.
func (d *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Tx.Query(ctx, query, args, v)
	d.log(ctx, slog.LevelDebug, "tx.Query", "query", query, "args", args, "duration", time.Since(start), "err", err)
	return err
}

// Commit logs this step and calls the underlying transaction Commit method.
func (d *DebugTx) Commit() error {
	err := d.Tx.Commit()
	d.log(d.ctx, slog.LevelDebug, "tx.Commit", "err", err)
	return err
}

// Rollback logs this step and calls the underlying transaction Rollback method.
func (d *DebugTx) Rollback() error {
	err := d.Tx.Rollback()
	d.log(d.ctx, slog.LevelDebug, "tx.Rollback", "err", err)
	return err
}
