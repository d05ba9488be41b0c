package sql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/weavedb/loom/dialect"
)

// Querier wraps the Query method. All statement builders and predicates
// implement it, returning the statement text and its bound arguments.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// querierErr allows chained builders to expose build-time errors.
type querierErr interface {
	Err() error
}

// state wraps the two methods for setting and getting the builder state,
// so nested queriers (predicates, sub-selects) share dialect and the
// placeholder counter with their parent.
type state interface {
	Dialect() string
	SetDialect(string)
	Total() int
	SetTotal(int)
}

// Builder is the base query builder for all SQL statement builders.
type Builder struct {
	sb      *strings.Builder
	dialect string
	args    []any
	total   int // total placeholders.
	errs    []error
}

// Quote quotes the given identifier with the dialect's quote character.
func (b *Builder) Quote(ident string) string {
	quote := "`"
	switch {
	case b.postgres():
		// A table/column may already be quoted by the caller.
		if strings.Contains(ident, `"`) {
			return ident
		}
		quote = `"`
	case strings.Contains(ident, "`"):
		return ident
	}
	return quote + ident + quote
}

// Ident appends the given string as an identifier.
// Malformed identifiers are recorded as build errors (fail fast on build,
// not only on execute).
func (b *Builder) Ident(s string) *Builder {
	switch {
	case len(s) == 0:
		b.AddError(errors.New("invalid empty identifier"))
	case s == "*" || b.isIdent(s) || isFunc(s) || isModifier(s):
		b.WriteString(s)
	case strings.ContainsRune(s, '.'):
		// Qualified identifier (e.g. "users.id").
		for i, p := range strings.Split(s, ".") {
			if i > 0 {
				b.WriteByte('.')
			}
			b.Ident(p)
		}
	case isIdentifier(s):
		b.WriteString(b.Quote(s))
	default:
		b.AddError(fmt.Errorf("invalid identifier %q", s))
	}
	return b
}

// IdentComma calls Ident on all arguments and adds a comma between them.
func (b *Builder) IdentComma(s ...string) *Builder {
	for i := range s {
		if i > 0 {
			b.Comma()
		}
		b.Ident(s[i])
	}
	return b
}

// WriteByte appends the given byte to the query.
func (b *Builder) WriteByte(c byte) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteByte(c)
	return b
}

// WriteString appends the given string to the query.
func (b *Builder) WriteString(s string) *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	b.sb.WriteString(s)
	return b
}

// Len returns the number of accumulated bytes.
func (b *Builder) Len() int {
	if b.sb == nil {
		return 0
	}
	return b.sb.Len()
}

// Reset resets the accumulated query text.
func (b *Builder) Reset() *Builder {
	if b.sb != nil {
		b.sb.Reset()
	}
	return b
}

// AddError appends an error to the builder errors.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns a concatenated error of all errors encountered during
// the query-building, or were added manually by calling AddError.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	br := strings.Builder{}
	for i := range b.errs {
		if i > 0 {
			br.WriteString("; ")
		}
		br.WriteString(b.errs[i].Error())
	}
	return errors.New(br.String())
}

// Comma adds a comma to the query.
func (b *Builder) Comma() *Builder { return b.WriteString(", ") }

// Pad adds a space to the query.
func (b *Builder) Pad() *Builder { return b.WriteByte(' ') }

// Arg appends an input argument to the builder.
func (b *Builder) Arg(a any) *Builder {
	switch v := a.(type) {
	case nil:
		b.WriteString("NULL")
		return b
	case *raw:
		b.WriteString(v.s)
		return b
	case Querier:
		b.Join(v)
		return b
	}
	b.total++
	b.args = append(b.args, a)
	param := "?"
	if b.postgres() {
		param = "$" + strconv.Itoa(b.total)
	}
	b.WriteString(param)
	return b
}

// Args appends a list of input arguments to the builder.
func (b *Builder) Args(a ...any) *Builder {
	for i := range a {
		if i > 0 {
			b.Comma()
		}
		b.Arg(a[i])
	}
	return b
}

// Join joins a list of queriers to the builder, sharing state with them.
func (b *Builder) Join(qs ...Querier) *Builder {
	return b.join(qs, "")
}

// JoinComma joins a list of queriers with a comma separator.
func (b *Builder) JoinComma(qs ...Querier) *Builder {
	return b.join(qs, ", ")
}

func (b *Builder) join(qs []Querier, sep string) *Builder {
	for i, q := range qs {
		if i > 0 {
			b.WriteString(sep)
		}
		st, ok := q.(state)
		if ok {
			st.SetDialect(b.dialect)
			st.SetTotal(b.total)
		}
		query, args := q.Query()
		b.WriteString(query)
		b.args = append(b.args, args...)
		b.total += len(args)
		if ok {
			b.total = st.Total()
		}
		if qe, ok := q.(querierErr); ok {
			b.AddError(qe.Err())
		}
	}
	return b
}

// Wrap gets a callback, and wraps its result with parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	nb := b.clone()
	nb.WriteByte('(')
	f(nb)
	nb.WriteByte(')')
	b.sb.WriteString(nb.sb.String())
	b.args = nb.args
	b.total = nb.total
	b.errs = nb.errs
	return b
}

// clone returns a shallow clone of the builder sharing args state.
func (b *Builder) clone() *Builder {
	if b.sb == nil {
		b.sb = &strings.Builder{}
	}
	return &Builder{dialect: b.dialect, args: b.args, total: b.total, errs: b.errs, sb: &strings.Builder{}}
}

// SetDialect sets the builder dialect. It's used for garnering dialect
// specific SQL.
func (b *Builder) SetDialect(d string) { b.dialect = d }

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// Total returns the total number of arguments so far.
func (b *Builder) Total() int { return b.total }

// SetTotal sets the value of the total arguments.
// Used to pass this information between the queriers.
func (b *Builder) SetTotal(total int) { b.total = total }

// String returns the accumulated query text.
func (b *Builder) String() string {
	if b.sb == nil {
		return ""
	}
	return b.sb.String()
}

func (b *Builder) postgres() bool { return b.dialect == dialect.Postgres }
func (b *Builder) mysql() bool    { return b.dialect == dialect.MySQL }

// isIdent reports if the given string is already a quoted identifier.
func (b *Builder) isIdent(s string) bool {
	if b.postgres() {
		return strings.Contains(s, `"`)
	}
	return strings.Contains(s, "`")
}

// isFunc reports if the given string is a function call (e.g. "COUNT(*)").
func isFunc(s string) bool { return strings.Contains(s, "(") && strings.Contains(s, ")") }

// isModifier reports if the given string is a query modifier rather
// than an identifier (e.g. "DISTINCT `name`").
func isModifier(s string) bool {
	for _, m := range []string{"DISTINCT", "ALL", "WITH ROLLUP"} {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

// DialectBuilder prefixes all root builders with the `Dialect` constructor.
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder with the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{name}
}

// Select creates a Selector for the configured dialect.
//
//	Dialect(dialect.Postgres).
//		Select("id", "name").
//		From(Table("users"))
func (d *DialectBuilder) Select(columns ...string) *Selector {
	s := Select(columns...)
	s.SetDialect(d.dialect)
	return s
}

// Table creates a SelectTable for the configured dialect.
func (d *DialectBuilder) Table(name string) *SelectTable {
	t := Table(name)
	t.SetDialect(d.dialect)
	return t
}

// Insert creates an InsertBuilder for the configured dialect.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	b := Insert(table)
	b.SetDialect(d.dialect)
	return b
}

// Update creates an UpdateBuilder for the configured dialect.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	b := Update(table)
	b.SetDialect(d.dialect)
	return b
}

// Delete creates a DeleteBuilder for the configured dialect.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	b := Delete(table)
	b.SetDialect(d.dialect)
	return b
}

// raw is a raw SQL fragment that is written to the query as-is.
type raw struct{ s string }

func (r *raw) Query() (string, []any) { return r.s, nil }

// Raw returns a raw SQL element that is written to the query as-is.
func Raw(s string) Querier { return &raw{s} }

// expr is a raw expression with bound arguments.
type expr struct {
	expr string
	args []any
}

func (e *expr) Query() (string, []any) { return e.expr, e.args }

// Expr returns a raw SQL expression with (optional) bound arguments.
//
//	Update("users").Set("x", Expr("x + 1"))
func Expr(exp string, args ...any) Querier { return &expr{expr: exp, args: args} }

// exprFunc is an expression function that writes into a shared builder.
type exprFunc struct {
	Builder
	fn func(*Builder)
}

func (e *exprFunc) Query() (string, []any) {
	if e.Len() > 0 || len(e.args) > 0 {
		e.Reset()
		e.args = nil
	}
	e.fn(&e.Builder)
	return e.String(), e.args
}

// ExprFunc returns an expression function that shares the builder state
// (dialect and placeholder offsets) with its parent.
func ExprFunc(fn func(*Builder)) Querier {
	return &exprFunc{fn: fn}
}

// SelectTable is a table selector with an optional alias.
type SelectTable struct {
	Builder
	as     string
	name   string
	schema string
	quote  bool
}

// Table returns a new table selector.
//
//	t1 := Table("users").As("u")
//	return Select(t1.C("name"))
func Table(name string) *SelectTable {
	return &SelectTable{quote: true, name: name}
}

// Schema sets the schema name of the table.
func (s *SelectTable) Schema(name string) *SelectTable {
	s.schema = name
	return s
}

// As adds the AS clause to the table selector.
func (s *SelectTable) As(alias string) *SelectTable {
	s.as = alias
	return s
}

// C returns a formatted string for the table column.
func (s *SelectTable) C(column string) string {
	name := s.name
	if s.as != "" {
		name = s.as
	}
	b := &Builder{dialect: s.dialect}
	if s.quote {
		return b.Quote(name) + "." + b.Quote(column)
	}
	return name + "." + column
}

// Columns returns a list of formatted strings for the table columns.
func (s *SelectTable) Columns(columns ...string) []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, s.C(c))
	}
	return names
}

// Unquote makes the table name to not be quoted in the query.
func (s *SelectTable) Unquote() *SelectTable {
	s.quote = false
	return s
}

// Name returns the table name.
func (s *SelectTable) Name() string { return s.name }

// ref returns the table reference (possibly with schema and alias).
func (s *SelectTable) ref() string {
	b := &Builder{dialect: s.dialect}
	if s.schema != "" {
		b.Ident(s.schema).WriteByte('.')
	}
	switch {
	case !s.quote:
		b.WriteString(s.name)
	default:
		b.Ident(s.name)
	}
	if s.as != "" {
		b.WriteString(" AS ")
		b.Ident(s.as)
	}
	return b.String()
}

// join describes a JOIN clause attached to a Selector.
type join struct {
	on    *Predicate
	kind  string
	table *SelectTable
}

// Selector is a builder for the `SELECT` statement.
type Selector struct {
	Builder
	columns  []string
	from     *SelectTable
	joins    []join
	where    *Predicate
	or       bool
	not      bool
	order    []Querier
	group    []string
	having   *Predicate
	limit    *int
	offset   *int
	distinct bool
	lock     string
}

// Select returns a new selector for the given columns.
//
//	t1 := Table("users")
//	Select(t1.C("id"), t1.C("name")).From(t1)
func Select(columns ...string) *Selector {
	return (&Selector{}).Select(columns...)
}

// Select changes the columns selection of the SELECT statement.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = columns
	return s
}

// SelectedColumns returns the selected columns of the Selector.
func (s *Selector) SelectedColumns() []string { return s.columns }

// AppendSelect appends additional columns to the statement.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// AppendSelectAs appends an aliased column to the statement.
func (s *Selector) AppendSelectAs(column, as string) *Selector {
	b := &Builder{dialect: s.dialect}
	b.Ident(column).WriteString(" AS ").Ident(as)
	s.columns = append(s.columns, b.String())
	s.AddError(b.Err())
	return s
}

// From sets the source table of the SELECT statement.
func (s *Selector) From(t *SelectTable) *Selector {
	s.from = t
	return s
}

// TableName returns the name of the source table, if set.
func (s *Selector) TableName() string {
	if s.from == nil {
		return ""
	}
	return s.from.name
}

// Table returns the source table of the selector.
func (s *Selector) Table() *SelectTable { return s.from }

// Distinct adds the DISTINCT keyword to the SELECT statement.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// Where sets or appends the given predicate to the statement.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.not {
		p = Not(p)
		s.not = false
	}
	switch {
	case s.where == nil:
		s.where = p
	case s.or:
		s.where = Or(s.where, p)
		s.or = false
	default:
		s.where = s.where.merge(p)
	}
	return s
}

// P returns the predicate of the selector (may be nil).
func (s *Selector) P() *Predicate { return s.where }

// SetP sets the predicate of the selector.
func (s *Selector) SetP(p *Predicate) *Selector {
	s.where = p
	return s
}

// Or sets the next coming predicate with OR operator (rather than the
// default AND).
func (s *Selector) Or() *Selector {
	s.or = true
	return s
}

// Not sets the next coming predicate with NOT.
func (s *Selector) Not() *Selector {
	s.not = true
	return s
}

// C returns a formatted string for a selector column.
func (s *Selector) C(column string) string {
	if s.from != nil {
		return s.from.C(column)
	}
	return column
}

// Join appends an INNER JOIN clause to the statement.
func (s *Selector) Join(t *SelectTable) *Selector {
	return s.join("JOIN", t)
}

// LeftJoin appends a LEFT OUTER JOIN clause to the statement.
func (s *Selector) LeftJoin(t *SelectTable) *Selector {
	return s.join("LEFT JOIN", t)
}

// RightJoin appends a RIGHT OUTER JOIN clause to the statement.
func (s *Selector) RightJoin(t *SelectTable) *Selector {
	return s.join("RIGHT JOIN", t)
}

func (s *Selector) join(kind string, t *SelectTable) *Selector {
	s.joins = append(s.joins, join{kind: kind, table: t})
	return s
}

// OnP sets or appends the given predicate for the ON clause of the
// last attached join.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) == 0 {
		s.AddError(errors.New("cannot add ON clause without a join"))
		return s
	}
	j := &s.joins[len(s.joins)-1]
	if j.on == nil {
		j.on = p
	} else {
		j.on = And(j.on, p)
	}
	return s
}

// On sets the ON clause of the last attached join from two columns.
func (s *Selector) On(c1, c2 string) *Selector {
	return s.OnP(ColumnsEQ(c1, c2))
}

// GroupBy appends the GROUP BY clause to the statement.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.group = append(s.group, columns...)
	return s
}

// Having appends the HAVING clause to the statement.
func (s *Selector) Having(p *Predicate) *Selector {
	if s.having == nil {
		s.having = p
	} else {
		s.having = And(s.having, p)
	}
	return s
}

// OrderBy appends the ORDER BY clause to the statement.
// Columns may carry the "DESC" suffix produced by the Desc helper.
func (s *Selector) OrderBy(columns ...string) *Selector {
	for i := range columns {
		s.order = append(s.order, orderColumn(columns[i]))
	}
	return s
}

// OrderExpr appends the ORDER BY clause with a custom expression.
func (s *Selector) OrderExpr(exprs ...Querier) *Selector {
	for i := range exprs {
		s.order = append(s.order, exprs[i])
	}
	return s
}

// ClearOrder clears the ORDER BY clause.
func (s *Selector) ClearOrder() *Selector {
	s.order = nil
	return s
}

// Limit adds the LIMIT clause to the statement.
func (s *Selector) Limit(limit int) *Selector {
	s.limit = &limit
	return s
}

// Offset adds the OFFSET clause to the statement.
func (s *Selector) Offset(offset int) *Selector {
	s.offset = &offset
	return s
}

// ForUpdate appends the FOR UPDATE locking clause (no-op on SQLite,
// where the whole database is locked by the writing transaction).
func (s *Selector) ForUpdate() *Selector {
	if s.dialect != dialect.SQLite {
		s.lock = "FOR UPDATE"
	}
	return s
}

// ForShare appends the shared-lock clause for the dialect.
func (s *Selector) ForShare() *Selector {
	switch s.dialect {
	case dialect.Postgres:
		s.lock = "FOR SHARE"
	case dialect.MySQL:
		s.lock = "LOCK IN SHARE MODE"
	}
	return s
}

// Clone returns a duplicate of the selector, including all associated steps.
// It can be used to prepare common SELECT statements and use them differently
// after the clone is made.
func (s *Selector) Clone() *Selector {
	if s == nil {
		return nil
	}
	c := *s
	c.order = append([]Querier{}, s.order...)
	c.group = append([]string{}, s.group...)
	c.columns = append([]string{}, s.columns...)
	c.joins = append([]join{}, s.joins...)
	c.where = s.where.clone()
	c.having = s.having.clone()
	c.Builder = Builder{dialect: s.dialect}
	return &c
}

// CountSelection replaces the selection with COUNT over the given column
// (or "*"), clearing ordering, limit and offset. Used for count round-trips
// that accompany paginated queries.
func (s *Selector) CountSelection(column string) *Selector {
	c := s.Clone()
	if column == "" {
		column = "*"
	}
	c.columns = []string{"COUNT(" + column + ")"}
	c.order = nil
	c.limit = nil
	c.offset = nil
	return c
}

// Query returns query representation of a `SELECT` statement.
func (s *Selector) Query() (string, []any) {
	b := s.Builder.clone()
	b.args = nil
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) > 0 {
		b.IdentComma(s.columns...)
	} else {
		b.WriteString("*")
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.from.SetDialect(s.dialect)
		b.WriteString(s.from.ref())
	}
	for _, j := range s.joins {
		b.Pad().WriteString(j.kind).Pad()
		j.table.SetDialect(s.dialect)
		b.WriteString(j.table.ref())
		if j.on != nil {
			b.WriteString(" ON ")
			b.Join(j.on)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		b.Join(s.where)
	}
	if len(s.group) > 0 {
		b.WriteString(" GROUP BY ")
		b.IdentComma(s.group...)
	}
	if s.having != nil {
		b.WriteString(" HAVING ")
		b.Join(s.having)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		b.JoinComma(s.order...)
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*s.limit))
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(*s.offset))
	}
	if s.lock != "" {
		b.Pad().WriteString(s.lock)
	}
	s.errs = b.errs
	return b.String(), b.args
}

// orderColumn formats an ORDER BY column, honoring a "DESC"/"ASC" suffix.
func orderColumn(s string) Querier {
	return ExprFunc(func(b *Builder) {
		switch us := strings.ToUpper(s); {
		case strings.HasSuffix(us, " DESC"):
			b.Ident(s[:len(s)-5]).WriteString(" DESC")
		case strings.HasSuffix(us, " ASC"):
			b.Ident(s[:len(s)-4]).WriteString(" ASC")
		default:
			b.Ident(s)
		}
	})
}

// Desc returns the column name with the DESC suffix for ORDER BY clauses.
func Desc(column string) string { return column + " DESC" }

// Asc returns the column name with the ASC suffix for ORDER BY clauses.
func Asc(column string) string { return column + " ASC" }

// Count wraps the column (or "*") with a COUNT aggregation function.
func Count(column string) string { return aggregate("COUNT", column) }

// Sum wraps the column with a SUM aggregation function.
func Sum(column string) string { return aggregate("SUM", column) }

// Avg wraps the column with an AVG aggregation function.
func Avg(column string) string { return aggregate("AVG", column) }

// Min wraps the column with a MIN aggregation function.
func Min(column string) string { return aggregate("MIN", column) }

// Max wraps the column with a MAX aggregation function.
func Max(column string) string { return aggregate("MAX", column) }

func aggregate(fn, column string) string {
	if column == "" {
		column = "*"
	}
	return fn + "(" + column + ")"
}

// InsertBuilder is a builder for the `INSERT INTO` statement.
type InsertBuilder struct {
	Builder
	table     string
	columns   []string
	defaults  bool
	returning []string
	values    [][]any
	conflict  *conflict
}

type conflict struct {
	columns []string
	nothing bool
}

// Insert creates a builder for the `INSERT INTO` statement.
//
//	Insert("users").Columns("name", "age").Values("a8m", 10)
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Columns sets the columns of the insert statement.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = append(i.columns, columns...)
	return i
}

// Values appends a value tuple to the insert statement.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Default sets the default values clause for the insert statement.
func (i *InsertBuilder) Default() *InsertBuilder {
	i.defaults = true
	return i
}

// Returning adds the `RETURNING` clause to the insert statement
// (PostgreSQL and SQLite).
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// OnConflictDoNothing appends an `ON CONFLICT ... DO NOTHING` clause.
// On MySQL it is rendered as `ON DUPLICATE KEY UPDATE col = col`.
func (i *InsertBuilder) OnConflictDoNothing(columns ...string) *InsertBuilder {
	i.conflict = &conflict{columns: columns, nothing: true}
	return i
}

// Query returns query representation of an `INSERT INTO` statement.
func (i *InsertBuilder) Query() (string, []any) {
	b := i.Builder.clone()
	b.args = nil
	b.WriteString("INSERT INTO ")
	b.Ident(i.table).Pad()
	if i.defaults && len(i.columns) == 0 {
		i.writeDefault(b)
	} else {
		b.WriteByte('(').IdentComma(i.columns...).WriteByte(')')
		b.WriteString(" VALUES ")
		for j, v := range i.values {
			if j > 0 {
				b.Comma()
			}
			b.WriteByte('(').Args(v...).WriteByte(')')
		}
	}
	if i.conflict != nil {
		i.writeConflict(b)
	}
	if len(i.returning) > 0 && !b.mysql() {
		b.WriteString(" RETURNING ")
		b.IdentComma(i.returning...)
	}
	i.errs = b.errs
	return b.String(), b.args
}

func (i *InsertBuilder) writeDefault(b *Builder) {
	switch b.dialect {
	case dialect.MySQL:
		b.WriteString("VALUES ()")
	default:
		b.WriteString("DEFAULT VALUES")
	}
}

func (i *InsertBuilder) writeConflict(b *Builder) {
	switch b.dialect {
	case dialect.MySQL:
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
		if len(i.columns) > 0 {
			b.Ident(i.columns[0]).WriteString(" = ").Ident(i.columns[0])
		}
	default:
		b.WriteString(" ON CONFLICT")
		if len(i.conflict.columns) > 0 {
			b.WriteString(" (").IdentComma(i.conflict.columns...).WriteByte(')')
		}
		b.WriteString(" DO NOTHING")
	}
}

// UpdateBuilder is a builder for the `UPDATE` statement.
type UpdateBuilder struct {
	Builder
	table   string
	where   *Predicate
	nulls   []string
	columns []string
	values  []any
}

// Update creates a builder for the `UPDATE` statement.
//
//	Update("users").Set("name", "foo").Where(EQ("id", 1))
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// Set sets a column to the given value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Add adds a numeric value to the column (used by increment/decrement).
func (u *UpdateBuilder) Add(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, ExprFunc(func(b *Builder) {
		b.WriteString("COALESCE(")
		b.Ident(column)
		b.WriteString(", 0) + ")
		b.Arg(v)
	}))
	return u
}

// SetNull sets a column as null value.
func (u *UpdateBuilder) SetNull(column string) *UpdateBuilder {
	u.nulls = append(u.nulls, column)
	return u
}

// Where adds a where predicate for the update statement.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where != nil {
		u.where = u.where.merge(p)
	} else {
		u.where = p
	}
	return u
}

// Empty reports whether this builder does not contain update changes.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0 && len(u.nulls) == 0
}

// Query returns query representation of an `UPDATE` statement.
func (u *UpdateBuilder) Query() (string, []any) {
	b := u.Builder.clone()
	b.args = nil
	b.WriteString("UPDATE ")
	b.Ident(u.table).WriteString(" SET ")
	for i, c := range u.nulls {
		if i > 0 {
			b.Comma()
		}
		b.Ident(c).WriteString(" = NULL")
	}
	if len(u.nulls) > 0 && len(u.columns) > 0 {
		b.Comma()
	}
	for i, c := range u.columns {
		if i > 0 {
			b.Comma()
		}
		b.Ident(c).WriteString(" = ")
		b.Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		b.Join(u.where)
	}
	u.errs = b.errs
	return b.String(), b.args
}

// DeleteBuilder is a builder for the `DELETE` statement.
type DeleteBuilder struct {
	Builder
	table string
	where *Predicate
}

// Delete creates a builder for the `DELETE` statement.
//
//	Delete("users").Where(EQ("id", 1))
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// Where appends a where predicate to the delete statement.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where != nil {
		d.where = d.where.merge(p)
	} else {
		d.where = p
	}
	return d
}

// Query returns query representation of a `DELETE` statement.
func (d *DeleteBuilder) Query() (string, []any) {
	b := d.Builder.clone()
	b.args = nil
	b.WriteString("DELETE FROM ")
	b.Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		b.Join(d.where)
	}
	d.errs = b.errs
	return b.String(), b.args
}

// Predicate is a where predicate. Its functions are applied in insertion
// order, which makes the generated predicate order match the call order.
type Predicate struct {
	Builder
	depth int
	fns   []func(*Builder)
	// ands holds the operands of an And composite, so a chained Where
	// extends it in place instead of nesting it one level down.
	ands []*Predicate
}

// P creates a new predicate.
//
//	P().EQ("name", "a8m").And().EQ("age", 30)
func P(fns ...func(*Builder)) *Predicate {
	return &Predicate{fns: fns}
}

// clone returns a deep-enough copy of the predicate.
func (p *Predicate) clone() *Predicate {
	if p == nil {
		return nil
	}
	return &Predicate{
		fns:  append([]func(*Builder){}, p.fns...),
		ands: append([]*Predicate(nil), p.ands...),
	}
}

func (p *Predicate) append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

// Query returns query representation of the predicate.
func (p *Predicate) Query() (string, []any) {
	if p.Len() > 0 || len(p.args) > 0 {
		p.Reset()
		p.args = nil
	}
	for _, f := range p.fns {
		f(&p.Builder)
	}
	return p.String(), p.args
}

// And combines all given predicates with AND between them.
func And(preds ...*Predicate) *Predicate {
	p := P()
	p.ands = preds
	return p.append(func(b *Builder) {
		p.mayWrap(b, preds, "AND")
	})
}

// merge appends pred to p under AND. When p is already an And
// composite its operand list grows, keeping the top level flat.
func (p *Predicate) merge(pred *Predicate) *Predicate {
	if len(p.ands) > 0 {
		return And(append(append([]*Predicate(nil), p.ands...), pred)...)
	}
	return And(p, pred)
}

// Or combines all given predicates with OR between them.
func Or(preds ...*Predicate) *Predicate {
	p := P()
	return p.append(func(b *Builder) {
		p.mayWrap(b, preds, "OR")
	})
}

// Not wraps the given predicate with the NOT predicate.
func Not(pred *Predicate) *Predicate {
	p := P()
	return p.append(func(b *Builder) {
		b.WriteString("NOT ")
		b.Wrap(func(b *Builder) {
			b.Join(pred)
		})
	})
}

// mayWrap wraps nested composite predicates with parens, so explicit
// grouping survives SQL operator precedence. Top-level composites
// (depth zero) stay unwrapped.
func (p *Predicate) mayWrap(b *Builder, preds []*Predicate, op string) {
	switch n := len(preds); {
	case n == 0:
		return
	case n == 1:
		preds[0].depth = p.depth
		b.Join(preds[0])
		return
	case p.depth != 0:
		b.WriteByte('(')
		defer b.WriteByte(')')
	}
	for i, pred := range preds {
		pred.depth = p.depth + 1
		if i > 0 {
			b.Pad().WriteString(op).Pad()
		}
		if len(pred.fns) > 1 {
			b.Wrap(func(b *Builder) {
				b.Join(pred)
			})
		} else {
			b.Join(pred)
		}
	}
}

// EQ returns a "=" predicate.
func EQ(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" = ").Arg(value)
	})
}

// ColumnsEQ appends a "=" predicate between two columns.
func ColumnsEQ(col1, col2 string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col1).WriteString(" = ").Ident(col2)
	})
}

// NEQ returns a "<>" predicate.
func NEQ(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" <> ").Arg(value)
	})
}

// LT returns a "<" predicate.
func LT(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" < ").Arg(value)
	})
}

// LTE returns a "<=" predicate.
func LTE(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" <= ").Arg(value)
	})
}

// GT returns a ">" predicate.
func GT(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" > ").Arg(value)
	})
}

// GTE returns a ">=" predicate.
func GTE(col string, value any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" >= ").Arg(value)
	})
}

// In returns an "IN" predicate. An empty values list generates a
// constant-false predicate, matching the empty-set semantics.
func In(col string, values ...any) *Predicate {
	return P().append(func(b *Builder) {
		if len(values) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteString(" IN ")
		b.Wrap(func(b *Builder) {
			b.Args(values...)
		})
	})
}

// NotIn returns a "NOT IN" predicate.
func NotIn(col string, values ...any) *Predicate {
	return P().append(func(b *Builder) {
		if len(values) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col).WriteString(" NOT IN ")
		b.Wrap(func(b *Builder) {
			b.Args(values...)
		})
	})
}

// InSelect returns an "IN" predicate with a sub-select.
func InSelect(col string, s *Selector) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" IN ")
		b.Wrap(func(b *Builder) {
			b.Join(s)
		})
	})
}

// Between returns a "BETWEEN" predicate.
func Between(col string, from, to any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" BETWEEN ")
		b.Arg(from).WriteString(" AND ").Arg(to)
	})
}

// IsNull returns an "IS NULL" predicate.
func IsNull(col string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns an "IS NOT NULL" predicate.
func NotNull(col string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// Like returns a "LIKE" predicate.
func Like(col, pattern string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" LIKE ").Arg(pattern)
	})
}

// HasPrefix is a helper predicate that checks prefix using the LIKE predicate.
func HasPrefix(col, prefix string) *Predicate {
	return Like(col, escapeLike(prefix)+"%")
}

// HasSuffix is a helper predicate that checks suffix using the LIKE predicate.
func HasSuffix(col, suffix string) *Predicate {
	return Like(col, "%"+escapeLike(suffix))
}

// Contains is a helper predicate that checks substring using the LIKE predicate.
func Contains(col, sub string) *Predicate {
	return Like(col, "%"+escapeLike(sub)+"%")
}

// ExprP returns a raw-expression predicate with bound arguments.
func ExprP(exp string, args ...any) *Predicate {
	return P().append(func(b *Builder) {
		b.Join(Expr(exp, args...))
	})
}

// escapeLike escapes the LIKE meta characters in the given literal.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isIdentifier reports whether the given string is a valid SQL identifier
// (alphanumeric and underscores, up to 128 chars).
func isIdentifier(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Queries are list of queries join with space between them.
type Queries []Querier

// Query returns query representation of Queriers.
func (n Queries) Query() (string, []any) {
	b := &Builder{}
	for i := range n {
		if i > 0 {
			b.Pad()
		}
		query, args := n[i].Query()
		b.WriteString(query)
		b.args = append(b.args, args...)
	}
	return b.String(), b.args
}
