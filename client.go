package loom

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/weavedb/loom/dialect"
	"github.com/weavedb/loom/dialect/sql"
)

// nowFunc returns the current time; swapped in tests for deterministic
// timestamps.
var nowFunc = time.Now

// Client is the entry point for queries and mutations. It pairs a
// database driver with a descriptor registry; a Client is safe for
// concurrent use.
type Client struct {
	drv      dialect.Driver
	conn     dialect.ExecQuerier
	registry *Registry
	prefix   string
	logger   *slog.Logger
	cache    Cache
	txDepth  int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPrefix prepends the given prefix to every table name.
func WithPrefix(prefix string) ClientOption {
	return func(c *Client) { c.prefix = prefix }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithCache enables result caching for queries that opt in via Remember.
func WithCache(cache Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// NewClient returns a client over the given driver and registry.
func NewClient(drv dialect.Driver, registry *Registry, opts ...ClientOption) *Client {
	c := &Client{
		drv:      drv,
		conn:     drv,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the client's descriptor registry.
func (c *Client) Registry() *Registry { return c.registry }

// Prefix returns the configured table prefix.
func (c *Client) Prefix() string { return c.prefix }

// Dialect returns the driver dialect.
func (c *Client) Dialect() string { return c.drv.Dialect() }

func (c *Client) dialect() string { return c.drv.Dialect() }

// Driver returns the underlying driver.
func (c *Client) Driver() dialect.Driver { return c.drv }

// Close closes the underlying driver.
func (c *Client) Close() error { return c.drv.Close() }

// Debug returns a client that logs every statement it executes.
func (c *Client) Debug() *Client {
	drv := dialect.Debug(c.drv)
	sub := *c
	sub.drv = drv
	sub.conn = drv
	return &sub
}

// Model starts a query for the named entity type.
func (c *Client) Model(entity string) *Query {
	desc, err := c.registry.Lookup(entity)
	q := &Query{client: c, desc: desc}
	if err != nil {
		q.err = err
	}
	return q
}

// table returns the prefixed table of a descriptor.
func (c *Client) table(desc *Descriptor) string {
	return c.prefix + desc.TableName()
}

// Transaction runs fn inside a transaction, committing when it returns
// nil and rolling back otherwise. Calling Transaction on an already
// transactional client nests via a savepoint, so an inner failure rolls
// back only the inner work.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Client) error) error {
	if c.txDepth > 0 {
		return c.savepoint(ctx, fn)
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return err
	}
	sub := *c
	sub.conn = tx
	sub.txDepth = 1
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback() //nolint:errcheck
			panic(r)
		}
	}()
	if err := fn(ctx, &sub); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return &RollbackError{Err: err, Rollback: rerr}
		}
		return err
	}
	return tx.Commit()
}

// savepoint nests a transaction with SAVEPOINT/RELEASE, supported by
// all three dialects.
func (c *Client) savepoint(ctx context.Context, fn func(ctx context.Context, tx *Client) error) error {
	name := fmt.Sprintf("loom_%d", c.txDepth)
	if err := c.conn.Exec(ctx, "SAVEPOINT "+name, []any{}, nil); err != nil {
		return err
	}
	sub := *c
	sub.txDepth++
	if err := fn(ctx, &sub); err != nil {
		if rerr := c.conn.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name, []any{}, nil); rerr != nil {
			return &RollbackError{Err: err, Rollback: rerr}
		}
		return err
	}
	return c.conn.Exec(ctx, "RELEASE SAVEPOINT "+name, []any{}, nil)
}

// Tx begins an explicit transaction and returns a transactional client
// together with the handle for Commit/Rollback. Most callers should
// prefer Transaction.
func (c *Client) Tx(ctx context.Context) (*Client, dialect.Tx, error) {
	if c.txDepth > 0 {
		return nil, nil, ErrTxStarted
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return nil, nil, err
	}
	sub := *c
	sub.conn = tx
	sub.txDepth = 1
	return &sub, tx, nil
}

// Raw runs a raw query and returns the scanned rows.
func (c *Client) Raw(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows := &sql.Rows{}
	if err := c.conn.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return sql.ScanMaps(rows)
}

// RawExec runs a raw statement and returns the affected row count.
func (c *Client) RawExec(ctx context.Context, query string, args ...any) (int64, error) {
	var res sql.Result
	if err := c.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, wrapConstraint(err)
	}
	return res.RowsAffected()
}

// Load lazily loads relations onto already fetched entities, one query
// per relation. All entities must share a type.
func (c *Client) Load(ctx context.Context, entities []*Entity, relations ...string) error {
	if len(entities) == 0 {
		return nil
	}
	desc := entities[0].desc
	for _, e := range entities[1:] {
		if e.desc != desc {
			return fmt.Errorf("loom: Load requires entities of one type, got %s and %s", desc.Name, e.desc.Name)
		}
	}
	return c.loadRelations(ctx, desc, entities, relations, nil)
}

// LoadOne lazily loads relations onto a single entity.
func (c *Client) LoadOne(ctx context.Context, e *Entity, relations ...string) error {
	return c.Load(ctx, []*Entity{e}, relations...)
}

// Save persists the entity: an INSERT when it is new, an UPDATE of the
// dirty columns otherwise. Timestamps are maintained when the type asks
// for them, and string keys are generated client-side before insert.
func (c *Client) Save(ctx context.Context, e *Entity) error {
	desc := e.desc
	if err := fireHooks(ctx, desc.Hooks.Saving, e); err != nil {
		return err
	}
	var err error
	if e.exists {
		err = c.update(ctx, e)
	} else {
		err = c.insert(ctx, e)
	}
	if err != nil {
		return err
	}
	if err := fireHooks(ctx, desc.Hooks.Saved, e); err != nil {
		return err
	}
	e.markClean()
	c.invalidate(ctx, c.table(desc))
	return nil
}

func (c *Client) insert(ctx context.Context, e *Entity) error {
	desc := e.desc
	if err := fireHooks(ctx, desc.Hooks.Creating, e); err != nil {
		return err
	}
	now := nowFunc()
	if desc.Timestamps {
		if !e.Has(CreatedAtColumn) {
			e.Set(CreatedAtColumn, now)
		}
		if !e.Has(UpdatedAtColumn) {
			e.Set(UpdatedAtColumn, now)
		}
	}
	if desc.KeyType == KeyString && e.ID() == nil {
		e.Set(desc.Key(), uuid.NewString())
	}
	columns := make([]string, 0, len(e.attrs))
	for col := range e.attrs {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	values := make([]any, 0, len(columns))
	for _, col := range columns {
		values = append(values, e.attrs[col])
	}
	ins := sql.Dialect(c.dialect()).
		Insert(c.table(desc)).
		Columns(columns...).
		Values(values...)
	switch {
	case c.dialect() == dialect.Postgres && desc.KeyType == KeyInt && e.ID() == nil:
		// LastInsertId is unsupported on postgres; scan the key back.
		ins.Returning(desc.Key())
		query, args := ins.Query()
		if err := ins.Err(); err != nil {
			return &MutationError{Entity: desc.Name, Op: "create", Err: err}
		}
		rows := &sql.Rows{}
		if err := c.conn.Query(ctx, query, args, rows); err != nil {
			return &MutationError{Entity: desc.Name, Op: "create", Err: wrapConstraint(err)}
		}
		id, err := func() (int64, error) {
			defer rows.Close()
			return sql.ScanInt64(rows)
		}()
		if err != nil {
			return &MutationError{Entity: desc.Name, Op: "create", Err: err}
		}
		e.attrs[desc.Key()] = id
	default:
		query, args := ins.Query()
		if err := ins.Err(); err != nil {
			return &MutationError{Entity: desc.Name, Op: "create", Err: err}
		}
		var res sql.Result
		if err := c.conn.Exec(ctx, query, args, &res); err != nil {
			return &MutationError{Entity: desc.Name, Op: "create", Err: wrapConstraint(err)}
		}
		if desc.KeyType == KeyInt && e.ID() == nil {
			id, err := res.LastInsertId()
			if err != nil {
				return &MutationError{Entity: desc.Name, Op: "create", Err: err}
			}
			e.attrs[desc.Key()] = id
		}
	}
	e.exists = true
	return fireHooks(ctx, desc.Hooks.Created, e)
}

func (c *Client) update(ctx context.Context, e *Entity) error {
	desc := e.desc
	if !e.IsDirty() {
		return nil
	}
	if err := fireHooks(ctx, desc.Hooks.Updating, e); err != nil {
		return err
	}
	if desc.Timestamps && !e.IsDirty(UpdatedAtColumn) {
		e.Set(UpdatedAtColumn, nowFunc())
	}
	if e.ID() == nil {
		return &MutationError{Entity: desc.Name, Op: "update", Err: fmt.Errorf("entity has no primary key")}
	}
	dirty := e.Dirty()
	columns := make([]string, 0, len(dirty))
	for col := range dirty {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	upd := sql.Dialect(c.dialect()).
		Update(c.table(desc)).
		Where(sql.EQ(desc.Key(), e.ID()))
	for _, col := range columns {
		if dirty[col] == nil {
			upd.SetNull(col)
		} else {
			upd.Set(col, dirty[col])
		}
	}
	query, args := upd.Query()
	if err := upd.Err(); err != nil {
		return &MutationError{Entity: desc.Name, Op: "update", Err: err}
	}
	if err := c.conn.Exec(ctx, query, args, nil); err != nil {
		return &MutationError{Entity: desc.Name, Op: "update", Err: wrapConstraint(err)}
	}
	return fireHooks(ctx, desc.Hooks.Updated, e)
}

// Delete removes the entity. Soft-deletable types are trashed by
// stamping deleted_at; others are removed for real.
func (c *Client) Delete(ctx context.Context, e *Entity) error {
	desc := e.desc
	if !e.exists {
		return nil
	}
	if err := fireHooks(ctx, desc.Hooks.Deleting, e); err != nil {
		return err
	}
	if desc.SoftDeletes {
		now := nowFunc()
		upd := sql.Dialect(c.dialect()).
			Update(c.table(desc)).
			Set(DeletedAtColumn, now).
			Where(sql.EQ(desc.Key(), e.ID()))
		if desc.Timestamps {
			upd.Set(UpdatedAtColumn, now)
		}
		query, args := upd.Query()
		if err := c.conn.Exec(ctx, query, args, nil); err != nil {
			return &MutationError{Entity: desc.Name, Op: "delete", Err: err}
		}
		e.attrs[DeletedAtColumn] = now
	} else {
		query, args := sql.Dialect(c.dialect()).
			Delete(c.table(desc)).
			Where(sql.EQ(desc.Key(), e.ID())).
			Query()
		if err := c.conn.Exec(ctx, query, args, nil); err != nil {
			return &MutationError{Entity: desc.Name, Op: "delete", Err: wrapConstraint(err)}
		}
		e.exists = false
	}
	if err := fireHooks(ctx, desc.Hooks.Deleted, e); err != nil {
		return err
	}
	c.invalidate(ctx, c.table(desc))
	return nil
}

// ForceDelete removes the entity's row even when the type soft-deletes.
func (c *Client) ForceDelete(ctx context.Context, e *Entity) error {
	desc := e.desc
	if !e.exists {
		return nil
	}
	if err := fireHooks(ctx, desc.Hooks.Deleting, e); err != nil {
		return err
	}
	query, args := sql.Dialect(c.dialect()).
		Delete(c.table(desc)).
		Where(sql.EQ(desc.Key(), e.ID())).
		Query()
	if err := c.conn.Exec(ctx, query, args, nil); err != nil {
		return &MutationError{Entity: desc.Name, Op: "delete", Err: wrapConstraint(err)}
	}
	e.exists = false
	if err := fireHooks(ctx, desc.Hooks.Deleted, e); err != nil {
		return err
	}
	c.invalidate(ctx, c.table(desc))
	return nil
}

// Restore brings a trashed entity back by clearing deleted_at.
func (c *Client) Restore(ctx context.Context, e *Entity) error {
	desc := e.desc
	if !desc.SoftDeletes {
		return &MutationError{Entity: desc.Name, Op: "restore", Err: fmt.Errorf("entity type does not soft-delete")}
	}
	if err := fireHooks(ctx, desc.Hooks.Restoring, e); err != nil {
		return err
	}
	upd := sql.Dialect(c.dialect()).
		Update(c.table(desc)).
		SetNull(DeletedAtColumn).
		Where(sql.EQ(desc.Key(), e.ID()))
	if desc.Timestamps {
		upd.Set(UpdatedAtColumn, nowFunc())
	}
	query, args := upd.Query()
	if err := c.conn.Exec(ctx, query, args, nil); err != nil {
		return &MutationError{Entity: desc.Name, Op: "restore", Err: err}
	}
	e.attrs[DeletedAtColumn] = nil
	if err := fireHooks(ctx, desc.Hooks.Restored, e); err != nil {
		return err
	}
	c.invalidate(ctx, c.table(desc))
	return nil
}

// Touch bumps the entity's updated_at to now and persists it.
func (c *Client) Touch(ctx context.Context, e *Entity) error {
	desc := e.desc
	if !desc.Timestamps {
		return &MutationError{Entity: desc.Name, Op: "touch", Err: fmt.Errorf("entity type has no timestamps")}
	}
	if !e.exists {
		return &MutationError{Entity: desc.Name, Op: "touch", Err: fmt.Errorf("entity is not persisted")}
	}
	e.Set(UpdatedAtColumn, nowFunc())
	return c.Save(ctx, e)
}

// invalidate drops cached results for a table after a mutation.
func (c *Client) invalidate(ctx context.Context, table string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeletePrefix(ctx, table+":"); err != nil {
		c.logger.Warn("cache invalidation failed", "table", table, "error", err)
	}
}
