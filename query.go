package loom

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/weavedb/loom/dialect/sql"
)

// trashed selects how a query treats soft-deleted rows.
type trashed int

const (
	trashExclude trashed = iota // default: hide trashed rows.
	trashInclude
	trashOnly
)

type lockMode int

const (
	lockNone lockMode = iota
	lockUpdate
	lockShare
)

type queryPred struct {
	or bool
	p  *sql.Predicate
}

// Query builds and runs statements for one entity type. Predicates
// apply in call order; on soft-deletable types every query excludes
// trashed rows unless WithTrashed or OnlyTrashed says otherwise.
// A Query is single-use and not safe for concurrent mutation.
type Query struct {
	client *Client
	desc   *Descriptor
	err    error

	columns   []string
	preds     []queryPred
	orders    []string
	groups    []string
	having    *sql.Predicate
	limit     *int
	offset    *int
	withs     []string
	withFns   map[string]func(*Query)
	trashed   trashed
	lock      lockMode
	modifiers []func(*sql.Selector)
	cacheTTL  time.Duration
	cached    bool
}

func (q *Query) clone() *Query {
	c := *q
	c.columns = append([]string(nil), q.columns...)
	c.preds = append([]queryPred(nil), q.preds...)
	c.orders = append([]string(nil), q.orders...)
	c.groups = append([]string(nil), q.groups...)
	c.withs = append([]string(nil), q.withs...)
	c.modifiers = append(q.modifiers[:0:0], q.modifiers...)
	return &c
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Select restricts the selected columns.
func (q *Query) Select(columns ...string) *Query {
	q.columns = columns
	return q
}

// Distinct adds DISTINCT to the selection.
func (q *Query) Distinct() *Query {
	return q.Modify(func(s *sql.Selector) { s.Distinct() })
}

// comparison builds a predicate from an operator string.
func comparison(column, op string, value any) (*sql.Predicate, error) {
	switch op {
	case "=":
		return sql.EQ(column, value), nil
	case "!=", "<>":
		return sql.NEQ(column, value), nil
	case ">":
		return sql.GT(column, value), nil
	case ">=":
		return sql.GTE(column, value), nil
	case "<":
		return sql.LT(column, value), nil
	case "<=":
		return sql.LTE(column, value), nil
	case "like", "LIKE":
		return sql.Like(column, fmt.Sprint(value)), nil
	case "not like", "NOT LIKE":
		return sql.Not(sql.Like(column, fmt.Sprint(value))), nil
	default:
		return nil, fmt.Errorf("loom: unsupported operator %q", op)
	}
}

func (q *Query) where(or bool, column string, args ...any) *Query {
	var p *sql.Predicate
	switch len(args) {
	case 1:
		if args[0] == nil {
			p = sql.IsNull(column)
		} else {
			p = sql.EQ(column, args[0])
		}
	case 2:
		op, ok := args[0].(string)
		if !ok {
			return q.fail(fmt.Errorf("loom: operator must be a string, got %T", args[0]))
		}
		var err error
		p, err = comparison(column, op, args[1])
		if err != nil {
			return q.fail(err)
		}
	default:
		return q.fail(fmt.Errorf("loom: Where expects (column, value) or (column, op, value)"))
	}
	q.preds = append(q.preds, queryPred{or: or, p: p})
	return q
}

// Where adds an AND-connected predicate. The two-argument form implies
// equality; the three-argument form takes an operator:
//
//	q.Where("views", 100)
//	q.Where("views", ">=", 100)
func (q *Query) Where(column string, args ...any) *Query {
	return q.where(false, column, args...)
}

// OrWhere adds an OR-connected predicate.
func (q *Query) OrWhere(column string, args ...any) *Query {
	return q.where(true, column, args...)
}

// WhereP adds a raw predicate.
func (q *Query) WhereP(p *sql.Predicate) *Query {
	q.preds = append(q.preds, queryPred{p: p})
	return q
}

// OrWhereP adds a raw OR-connected predicate.
func (q *Query) OrWhereP(p *sql.Predicate) *Query {
	q.preds = append(q.preds, queryPred{or: true, p: p})
	return q
}

// WhereIn constrains the column to the given values. An empty list
// matches nothing.
func (q *Query) WhereIn(column string, values ...any) *Query {
	return q.WhereP(sql.In(column, values...))
}

// WhereNotIn constrains the column to values outside the given list.
// An empty list matches everything.
func (q *Query) WhereNotIn(column string, values ...any) *Query {
	return q.WhereP(sql.NotIn(column, values...))
}

// WhereNull constrains the column to NULL.
func (q *Query) WhereNull(column string) *Query {
	return q.WhereP(sql.IsNull(column))
}

// WhereNotNull constrains the column to non-NULL values.
func (q *Query) WhereNotNull(column string) *Query {
	return q.WhereP(sql.NotNull(column))
}

// WhereBetween constrains the column to the inclusive range.
func (q *Query) WhereBetween(column string, from, to any) *Query {
	return q.WhereP(sql.Between(column, from, to))
}

// WhereColumn constrains two columns to be equal.
func (q *Query) WhereColumn(c1, c2 string) *Query {
	return q.WhereP(sql.ColumnsEQ(c1, c2))
}

// WhereGroup collects the predicates added by fn into one
// parenthesized predicate:
//
//	q.Where("status", "published").WhereGroup(func(q *loom.Query) {
//		q.Where("views", ">", 100).OrWhere("featured", true)
//	})
func (q *Query) WhereGroup(fn func(*Query)) *Query {
	return q.whereGroup(false, fn)
}

// OrWhereGroup is WhereGroup with an OR connector.
func (q *Query) OrWhereGroup(fn func(*Query)) *Query {
	return q.whereGroup(true, fn)
}

func (q *Query) whereGroup(or bool, fn func(*Query)) *Query {
	sub := &Query{client: q.client, desc: q.desc}
	fn(sub)
	if sub.err != nil {
		return q.fail(sub.err)
	}
	if p := foldPreds(sub.preds); p != nil {
		q.preds = append(q.preds, queryPred{or: or, p: p})
	}
	return q
}

// foldPreds connects predicates in call order with their AND/OR flags.
func foldPreds(preds []queryPred) *sql.Predicate {
	var p *sql.Predicate
	for _, qp := range preds {
		switch {
		case p == nil:
			p = qp.p
		case qp.or:
			p = sql.Or(p, qp.p)
		default:
			p = sql.And(p, qp.p)
		}
	}
	return p
}

// OrderBy appends an ordering; dir may be "asc" or "desc".
func (q *Query) OrderBy(column string, dir ...string) *Query {
	if len(dir) > 0 && (dir[0] == "desc" || dir[0] == "DESC") {
		column = sql.Desc(column)
	}
	q.orders = append(q.orders, column)
	return q
}

// OrderByDesc appends a descending ordering.
func (q *Query) OrderByDesc(column string) *Query {
	q.orders = append(q.orders, sql.Desc(column))
	return q
}

// Latest orders newest-first by created_at, or the given column.
func (q *Query) Latest(column ...string) *Query {
	col := CreatedAtColumn
	if len(column) > 0 {
		col = column[0]
	}
	return q.OrderByDesc(col)
}

// Oldest orders oldest-first by created_at, or the given column.
func (q *Query) Oldest(column ...string) *Query {
	col := CreatedAtColumn
	if len(column) > 0 {
		col = column[0]
	}
	return q.OrderBy(col)
}

// GroupBy appends grouping columns.
func (q *Query) GroupBy(columns ...string) *Query {
	q.groups = append(q.groups, columns...)
	return q
}

// Having adds a HAVING predicate.
func (q *Query) Having(column, op string, value any) *Query {
	p, err := comparison(column, op, value)
	if err != nil {
		return q.fail(err)
	}
	if q.having == nil {
		q.having = p
	} else {
		q.having = sql.And(q.having, p)
	}
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// Join appends an inner join. The joined table is prefixed like every
// other table; the ON columns are taken as given.
func (q *Query) Join(table, first, second string) *Query {
	prefixed := q.client.prefix + table
	return q.Modify(func(s *sql.Selector) {
		t := sql.Table(prefixed)
		t.SetDialect(s.Dialect())
		s.Join(t).On(first, second)
	})
}

// LeftJoin appends a left join.
func (q *Query) LeftJoin(table, first, second string) *Query {
	prefixed := q.client.prefix + table
	return q.Modify(func(s *sql.Selector) {
		t := sql.Table(prefixed)
		t.SetDialect(s.Dialect())
		s.LeftJoin(t).On(first, second)
	})
}

// With schedules relations for eager loading: one extra query per
// relation regardless of how many rows the main query returns.
func (q *Query) With(relations ...string) *Query {
	q.withs = append(q.withs, relations...)
	return q
}

// WithFn schedules a relation for eager loading with a constraint
// applied to the relation query.
func (q *Query) WithFn(relation string, fn func(*Query)) *Query {
	q.withs = append(q.withs, relation)
	if q.withFns == nil {
		q.withFns = make(map[string]func(*Query))
	}
	q.withFns[relation] = fn
	return q
}

// WithTrashed includes soft-deleted rows.
func (q *Query) WithTrashed() *Query {
	q.trashed = trashInclude
	return q
}

// OnlyTrashed restricts the query to soft-deleted rows.
func (q *Query) OnlyTrashed() *Query {
	q.trashed = trashOnly
	return q
}

// Scope applies named scopes registered on the descriptor.
func (q *Query) Scope(names ...string) *Query {
	for _, name := range names {
		fn, ok := q.desc.Scopes[name]
		if !ok {
			return q.fail(fmt.Errorf("loom: %s has no scope %q", q.desc.Name, name))
		}
		fn(q)
	}
	return q
}

// LockForUpdate acquires an exclusive row lock on the selected rows.
func (q *Query) LockForUpdate() *Query {
	q.lock = lockUpdate
	return q
}

// SharedLock acquires a shared row lock on the selected rows.
func (q *Query) SharedLock() *Query {
	q.lock = lockShare
	return q
}

// Modify registers a callback over the built selector, for clauses the
// fluent surface does not cover.
func (q *Query) Modify(fn func(*sql.Selector)) *Query {
	q.modifiers = append(q.modifiers, fn)
	return q
}

// Remember caches the query's row results for the given TTL. Cached
// reads are skipped inside transactions and invalidated by mutations on
// the table.
func (q *Query) Remember(ttl time.Duration) *Query {
	q.cached = true
	q.cacheTTL = ttl
	return q
}

// softDeletePredicate returns the trash filter for the current mode, or
// nil when the type does not soft-delete.
func (q *Query) softDeletePredicate() *sql.Predicate {
	if !q.desc.SoftDeletes {
		return nil
	}
	switch q.trashed {
	case trashInclude:
		return nil
	case trashOnly:
		return sql.NotNull(DeletedAtColumn)
	default:
		return sql.IsNull(DeletedAtColumn)
	}
}

// selector builds the SELECT statement for the current state.
func (q *Query) selector() (*sql.Selector, error) {
	if q.err != nil {
		return nil, q.err
	}
	s := sql.Dialect(q.client.dialect()).
		Select(q.columns...).
		From(sql.Table(q.client.table(q.desc)))
	for _, qp := range q.preds {
		if qp.or {
			s.Or()
		}
		s.Where(qp.p)
	}
	if p := q.softDeletePredicate(); p != nil {
		s.Where(p)
	}
	if len(q.groups) > 0 {
		s.GroupBy(q.groups...)
	}
	if q.having != nil {
		s.Having(q.having)
	}
	if len(q.orders) > 0 {
		s.OrderBy(q.orders...)
	}
	if q.limit != nil {
		s.Limit(*q.limit)
	}
	if q.offset != nil {
		s.Offset(*q.offset)
	}
	switch q.lock {
	case lockUpdate:
		s.ForUpdate()
	case lockShare:
		s.ForShare()
	}
	for _, fn := range q.modifiers {
		fn(s)
	}
	return s, nil
}

// rows runs the built SELECT and scans the result set, consulting the
// cache when Remember is on.
func (q *Query) rows(ctx context.Context) ([]map[string]any, error) {
	s, err := q.selector()
	if err != nil {
		return nil, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "select", Err: err}
	}
	useCache := q.cached && q.client.cache != nil && q.client.txDepth == 0
	var key string
	if useCache {
		key = cacheKey(q.client.table(q.desc), query, args)
		if data, err := q.client.cache.Get(ctx, key); err == nil && data != nil {
			return decodeRows(data)
		}
	}
	rows := &sql.Rows{}
	if err := q.client.conn.Query(ctx, query, args, rows); err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "select", Err: err}
	}
	defer rows.Close()
	scanned, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "select", Err: err}
	}
	if useCache {
		if data, err := encodeRows(scanned); err == nil {
			if err := q.client.cache.Set(ctx, key, data, q.cacheTTL); err != nil {
				q.client.logger.Warn("cache store failed", "entity", q.desc.Name, "error", err)
			}
		}
	}
	return scanned, nil
}

// Get runs the query and returns the matching entities with any
// scheduled relations loaded.
func (q *Query) Get(ctx context.Context) ([]*Entity, error) {
	scanned, err := q.rows(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*Entity, 0, len(scanned))
	for _, row := range scanned {
		entities = append(entities, hydrate(q.desc, row))
	}
	if len(q.withs) > 0 {
		if err := q.client.loadRelations(ctx, q.desc, entities, q.withs, q.withFns); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

// First returns the first matching entity, or nil when none match.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	c := q.clone().Limit(1)
	entities, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FirstOrFail returns the first matching entity, or a NotFoundError.
func (q *Query) FirstOrFail(ctx context.Context) (*Entity, error) {
	e, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewNotFoundError(q.desc.Name)
	}
	return e, nil
}

// Find returns the entity with the given key, or nil when absent.
func (q *Query) Find(ctx context.Context, id any) (*Entity, error) {
	return q.clone().Where(q.desc.Key(), id).First(ctx)
}

// FindOrFail returns the entity with the given key, or a NotFoundError
// carrying the key.
func (q *Query) FindOrFail(ctx context.Context, id any) (*Entity, error) {
	e, err := q.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, NewNotFoundErrorWithID(q.desc.Name, id)
	}
	return e, nil
}

// Pluck returns the values of one column across the matching rows.
func (q *Query) Pluck(ctx context.Context, column string) ([]any, error) {
	c := q.clone()
	c.columns = []string{column}
	s, err := c.selector()
	if err != nil {
		return nil, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "pluck", Err: err}
	}
	rows := &sql.Rows{}
	if err := q.client.conn.Query(ctx, query, args, rows); err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "pluck", Err: err}
	}
	defer rows.Close()
	return sql.ScanValues(rows)
}

// Value returns one column of the first matching row.
func (q *Query) Value(ctx context.Context, column string) (any, error) {
	values, err := q.clone().Limit(1).Pluck(ctx, column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// Count returns the number of matching rows.
func (q *Query) Count(ctx context.Context) (int64, error) {
	s, err := q.selector()
	if err != nil {
		return 0, err
	}
	cs := s.CountSelection("*")
	query, args := cs.Query()
	if err := cs.Err(); err != nil {
		return 0, &QueryError{Entity: q.desc.Name, Op: "count", Err: err}
	}
	rows := &sql.Rows{}
	if err := q.client.conn.Query(ctx, query, args, rows); err != nil {
		return 0, &QueryError{Entity: q.desc.Name, Op: "count", Err: err}
	}
	defer rows.Close()
	return sql.ScanInt64(rows)
}

// Exists reports whether any row matches.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	n, err := q.clone().Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *Query) aggregateFloat(ctx context.Context, op, expr string) (float64, error) {
	c := q.clone()
	c.columns = []string{expr}
	c.orders = nil
	s, err := c.selector()
	if err != nil {
		return 0, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return 0, &QueryError{Entity: q.desc.Name, Op: op, Err: err}
	}
	rows := &sql.Rows{}
	if err := q.client.conn.Query(ctx, query, args, rows); err != nil {
		return 0, &QueryError{Entity: q.desc.Name, Op: op, Err: err}
	}
	defer rows.Close()
	return sql.ScanFloat64(rows)
}

// Sum returns the sum of the column over the matching rows; NULL sums
// (no rows) come back as zero.
func (q *Query) Sum(ctx context.Context, column string) (float64, error) {
	return q.aggregateFloat(ctx, "sum", "COALESCE("+sql.Sum(column)+", 0)")
}

// Avg returns the average of the column over the matching rows.
func (q *Query) Avg(ctx context.Context, column string) (float64, error) {
	return q.aggregateFloat(ctx, "avg", "COALESCE("+sql.Avg(column)+", 0)")
}

// Min returns the smallest value of the column over the matching rows.
func (q *Query) Min(ctx context.Context, column string) (any, error) {
	return q.aggregateValue(ctx, sql.Min(column))
}

// Max returns the largest value of the column over the matching rows.
func (q *Query) Max(ctx context.Context, column string) (any, error) {
	return q.aggregateValue(ctx, sql.Max(column))
}

func (q *Query) aggregateValue(ctx context.Context, expr string) (any, error) {
	c := q.clone()
	c.columns = []string{expr}
	c.orders = nil
	values, err := c.Pluck(ctx, expr)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[0], nil
}

// Page is one page of a paginated result set.
type Page struct {
	Items       []*Entity
	Total       int64
	PerPage     int
	CurrentPage int
	LastPage    int
}

// Paginate returns the given 1-based page in two round trips: one
// COUNT for the total and one windowed fetch for the items.
func (q *Query) Paginate(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 15
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := q.clone().Limit(perPage).Offset((page - 1) * perPage).Get(ctx)
	if err != nil {
		return nil, err
	}
	last := int(math.Ceil(float64(total) / float64(perPage)))
	if last < 1 {
		last = 1
	}
	return &Page{
		Items:       items,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    last,
	}, nil
}

// Chunk fetches the matching rows in windows of the given size and
// hands each window to fn. Without an explicit ordering, rows are
// chunked in primary-key order so windows are stable.
func (q *Query) Chunk(ctx context.Context, size int, fn func([]*Entity) error) error {
	if size < 1 {
		return fmt.Errorf("loom: chunk size must be positive")
	}
	base := q.clone()
	if len(base.orders) == 0 {
		base.orders = []string{base.desc.Key()}
	}
	for offset := 0; ; offset += size {
		window, err := base.clone().Limit(size).Offset(offset).Get(ctx)
		if err != nil {
			return err
		}
		if len(window) == 0 {
			return nil
		}
		if err := fn(window); err != nil {
			return err
		}
		if len(window) < size {
			return nil
		}
	}
}

// New returns an unsaved entity of the query's type.
func (q *Query) New() *Entity {
	return NewEntity(q.desc)
}

// Create mass-assigns the attributes onto a new entity under the
// fillable/guarded policy and persists it. Attributes outside the
// policy are dropped, not errors.
func (q *Query) Create(ctx context.Context, attrs map[string]any) (*Entity, error) {
	if q.err != nil {
		return nil, q.err
	}
	e := NewEntity(q.desc)
	e.Fill(attrs)
	if err := q.client.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// FirstOrCreate returns the first entity matching the attribute pairs,
// creating one from the pairs plus extras when none exists.
func (q *Query) FirstOrCreate(ctx context.Context, match map[string]any, extra ...map[string]any) (*Entity, error) {
	c := q.clone()
	for _, k := range sortedKeys(match) {
		c.Where(k, match[k])
	}
	e, err := c.First(ctx)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}
	return q.Create(ctx, merged(match, extra...))
}

// UpdateOrCreate updates the first entity matching the attribute pairs
// with the given values, creating one from both maps when none exists.
func (q *Query) UpdateOrCreate(ctx context.Context, match, values map[string]any) (*Entity, error) {
	c := q.clone()
	for _, k := range sortedKeys(match) {
		c.Where(k, match[k])
	}
	e, err := c.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return q.Create(ctx, merged(match, values))
	}
	e.Fill(values)
	if err := q.client.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// updateBuilder starts a bulk UPDATE constrained by the query's
// predicates and trash filter.
func (q *Query) updateBuilder() *sql.UpdateBuilder {
	u := sql.Dialect(q.client.dialect()).Update(q.client.table(q.desc))
	if p := foldPreds(q.preds); p != nil {
		u.Where(p)
	}
	if p := q.softDeletePredicate(); p != nil {
		u.Where(p)
	}
	return u
}

func (q *Query) execUpdate(ctx context.Context, op string, u *sql.UpdateBuilder) (int64, error) {
	query, args := u.Query()
	if err := u.Err(); err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: op, Err: err}
	}
	var res sql.Result
	if err := q.client.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: op, Err: wrapConstraint(err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: op, Err: err}
	}
	q.client.invalidate(ctx, q.client.table(q.desc))
	return n, nil
}

// Update bulk-updates the matching rows with the given column values,
// bypassing the mass-assignment policy the way direct column writes do.
// It returns the number of affected rows.
func (q *Query) Update(ctx context.Context, values map[string]any) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	u := q.updateBuilder()
	for _, col := range sortedKeys(values) {
		if values[col] == nil {
			u.SetNull(col)
		} else {
			u.Set(col, values[col])
		}
	}
	if q.desc.Timestamps {
		if _, ok := values[UpdatedAtColumn]; !ok {
			u.Set(UpdatedAtColumn, nowFunc())
		}
	}
	return q.execUpdate(ctx, "update", u)
}

// Increment atomically adds amount to the column on the matching rows.
func (q *Query) Increment(ctx context.Context, column string, amount int64) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	u := q.updateBuilder().Add(column, amount)
	if q.desc.Timestamps {
		u.Set(UpdatedAtColumn, nowFunc())
	}
	return q.execUpdate(ctx, "increment", u)
}

// Decrement atomically subtracts amount from the column on the
// matching rows.
func (q *Query) Decrement(ctx context.Context, column string, amount int64) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	u := q.updateBuilder().Add(column, -amount)
	if q.desc.Timestamps {
		u.Set(UpdatedAtColumn, nowFunc())
	}
	return q.execUpdate(ctx, "decrement", u)
}

// Delete removes the matching rows: a trash-stamping UPDATE on
// soft-deletable types, a real DELETE otherwise. It returns the number
// of affected rows.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if q.desc.SoftDeletes {
		now := nowFunc()
		u := q.updateBuilder().Set(DeletedAtColumn, now)
		if q.desc.Timestamps {
			u.Set(UpdatedAtColumn, now)
		}
		return q.execUpdate(ctx, "delete", u)
	}
	return q.ForceDelete(ctx)
}

// ForceDelete removes the matching rows for real, trashed ones
// included.
func (q *Query) ForceDelete(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	d := sql.Dialect(q.client.dialect()).Delete(q.client.table(q.desc))
	if p := foldPreds(q.preds); p != nil {
		d.Where(p)
	}
	// Hard deletion ignores the trash filter except in OnlyTrashed mode.
	if q.desc.SoftDeletes && q.trashed == trashOnly {
		d.Where(sql.NotNull(DeletedAtColumn))
	}
	query, args := d.Query()
	if err := d.Err(); err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: "delete", Err: err}
	}
	var res sql.Result
	if err := q.client.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: "delete", Err: wrapConstraint(err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &MutationError{Entity: q.desc.Name, Op: "delete", Err: err}
	}
	q.client.invalidate(ctx, q.client.table(q.desc))
	return n, nil
}

// Restore clears deleted_at on the matching trashed rows.
func (q *Query) Restore(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if !q.desc.SoftDeletes {
		return 0, &MutationError{Entity: q.desc.Name, Op: "restore", Err: fmt.Errorf("entity type does not soft-delete")}
	}
	u := sql.Dialect(q.client.dialect()).Update(q.client.table(q.desc))
	if p := foldPreds(q.preds); p != nil {
		u.Where(p)
	}
	u.Where(sql.NotNull(DeletedAtColumn))
	u.SetNull(DeletedAtColumn)
	if q.desc.Timestamps {
		u.Set(UpdatedAtColumn, nowFunc())
	}
	return q.execUpdate(ctx, "restore", u)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func merged(base map[string]any, extra ...map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for _, m := range extra {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
