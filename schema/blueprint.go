package schema

import (
	"github.com/go-openapi/inflect"
)

// ColumnType is the abstract data type of a blueprint column, translated
// to a concrete database type by the dialect grammar.
type ColumnType int

// Blueprint column types.
const (
	TypeIncrements ColumnType = iota // auto-increment integer primary key
	TypeInteger
	TypeBigInt
	TypeString // VARCHAR
	TypeText
	TypeBool
	TypeFloat
	TypeDecimal
	TypeDate
	TypeDateTime
	TypeTimestamp
	TypeUUID
	TypeJSON
)

// String returns the type name.
func (t ColumnType) String() string {
	switch t {
	case TypeIncrements:
		return "increments"
	case TypeInteger:
		return "integer"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// RefAction is a referential action for ON DELETE / ON UPDATE clauses.
type RefAction string

// Referential actions.
const (
	NoAction   RefAction = "NO ACTION"
	Restrict   RefAction = "RESTRICT"
	Cascade    RefAction = "CASCADE"
	SetNull    RefAction = "SET NULL"
	SetDefault RefAction = "SET DEFAULT"
)

// Column is a single column definition in a blueprint. Modifier methods
// return the column to allow chaining:
//
//	t.String("email", 255).Nullable().Unique()
type Column struct {
	name          string
	typ           ColumnType
	size          int
	precision     int
	scale         int
	nullable      bool
	unique        bool
	index         bool
	primary       bool
	autoIncrement bool
	unsigned      bool
	useCurrent    bool
	hasDefault    bool
	def           any
	after         string
	comment       string
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the column type.
func (c *Column) Type() ColumnType { return c.typ }

// Nullable marks the column as accepting NULL values.
func (c *Column) Nullable() *Column {
	c.nullable = true
	return c
}

// Default sets the default value of the column.
func (c *Column) Default(v any) *Column {
	c.def = v
	c.hasDefault = true
	return c
}

// UseCurrent sets CURRENT_TIMESTAMP as the column default.
func (c *Column) UseCurrent() *Column {
	c.useCurrent = true
	return c
}

// Unique adds a unique index on the column.
func (c *Column) Unique() *Column {
	c.unique = true
	return c
}

// Index adds a plain index on the column.
func (c *Column) Index() *Column {
	c.index = true
	return c
}

// Primary marks the column as the primary key.
func (c *Column) Primary() *Column {
	c.primary = true
	return c
}

// Unsigned marks an integer column as unsigned (MySQL only, ignored
// elsewhere).
func (c *Column) Unsigned() *Column {
	c.unsigned = true
	return c
}

// After positions the column after the given one (MySQL only, ignored
// elsewhere).
func (c *Column) After(column string) *Column {
	c.after = column
	return c
}

// Comment sets the column comment (MySQL only, ignored elsewhere).
func (c *Column) Comment(s string) *Column {
	c.comment = s
	return c
}

// IndexDef is a standalone (possibly composite) index definition.
type IndexDef struct {
	name    string
	columns []string
	unique  bool
}

// Name overrides the generated index name.
func (i *IndexDef) Name(name string) *IndexDef {
	i.name = name
	return i
}

// ForeignKey is a foreign-key constraint attached to a blueprint.
type ForeignKey struct {
	column    string
	refTable  string
	refColumn string
	onDelete  RefAction
	onUpdate  RefAction
}

// ForeignIDColumn is the chainable result of Blueprint.ForeignID. Calling
// Constrained attaches the foreign-key constraint.
type ForeignIDColumn struct {
	*Column
	bp *Blueprint
	fk *ForeignKey
}

// Constrained adds a foreign-key constraint for the column. With no
// arguments the referenced table is derived by convention from the column
// name: `category_id` references `categories(id)`. The convention can be
// overridden with an explicit table and column.
func (f *ForeignIDColumn) Constrained(ref ...string) *ForeignIDColumn {
	fk := &ForeignKey{column: f.Column.name, refColumn: "id"}
	switch len(ref) {
	case 0:
		base := f.Column.name
		if n := len(base); n > 3 && base[n-3:] == "_id" {
			base = base[:n-3]
		}
		fk.refTable = inflect.Pluralize(base)
	case 1:
		fk.refTable = ref[0]
	default:
		fk.refTable, fk.refColumn = ref[0], ref[1]
	}
	f.fk = fk
	f.bp.fks = append(f.bp.fks, fk)
	return f
}

// OnDelete sets the ON DELETE referential action.
func (f *ForeignIDColumn) OnDelete(action RefAction) *ForeignIDColumn {
	if f.fk != nil {
		f.fk.onDelete = action
	}
	return f
}

// OnUpdate sets the ON UPDATE referential action.
func (f *ForeignIDColumn) OnUpdate(action RefAction) *ForeignIDColumn {
	if f.fk != nil {
		f.fk.onUpdate = action
	}
	return f
}

// Nullable marks the foreign-id column as nullable.
func (f *ForeignIDColumn) Nullable() *ForeignIDColumn {
	f.Column.Nullable()
	return f
}

// Blueprint is a mutable description of a table's columns, indexes and
// constraints. It is populated by the configuration function passed to
// Builder.Create or Builder.Table and translated into DDL by the dialect
// grammar.
type Blueprint struct {
	name    string
	create  bool
	columns []*Column
	indexes []*IndexDef
	fks     []*ForeignKey

	// alteration commands (Builder.Table only).
	dropColumns   []string
	renameColumns [][2]string
	dropIndexes   []string
}

// Name returns the table name the blueprint targets.
func (t *Blueprint) Name() string { return t.name }

func (t *Blueprint) addColumn(name string, typ ColumnType) *Column {
	c := &Column{name: name, typ: typ}
	t.columns = append(t.columns, c)
	return c
}

// ID adds an auto-incrementing `id` bigint primary key column.
func (t *Blueprint) ID() *Column {
	return t.Increments("id")
}

// Increments adds an auto-incrementing integer primary key column.
func (t *Blueprint) Increments(name string) *Column {
	c := t.addColumn(name, TypeIncrements)
	c.primary = true
	c.autoIncrement = true
	return c
}

// String adds a VARCHAR column. The optional size defaults to 255.
func (t *Blueprint) String(name string, size ...int) *Column {
	c := t.addColumn(name, TypeString)
	c.size = 255
	if len(size) > 0 {
		c.size = size[0]
	}
	return c
}

// Text adds a TEXT column.
func (t *Blueprint) Text(name string) *Column {
	return t.addColumn(name, TypeText)
}

// Integer adds an INTEGER column.
func (t *Blueprint) Integer(name string) *Column {
	return t.addColumn(name, TypeInteger)
}

// BigInteger adds a BIGINT column.
func (t *Blueprint) BigInteger(name string) *Column {
	return t.addColumn(name, TypeBigInt)
}

// Boolean adds a BOOLEAN column.
func (t *Blueprint) Boolean(name string) *Column {
	return t.addColumn(name, TypeBool)
}

// Float adds a floating-point column.
func (t *Blueprint) Float(name string) *Column {
	return t.addColumn(name, TypeFloat)
}

// Decimal adds a fixed-precision DECIMAL column.
func (t *Blueprint) Decimal(name string, precision, scale int) *Column {
	c := t.addColumn(name, TypeDecimal)
	c.precision, c.scale = precision, scale
	return c
}

// Date adds a DATE column.
func (t *Blueprint) Date(name string) *Column {
	return t.addColumn(name, TypeDate)
}

// DateTime adds a DATETIME column.
func (t *Blueprint) DateTime(name string) *Column {
	return t.addColumn(name, TypeDateTime)
}

// Timestamp adds a TIMESTAMP column.
func (t *Blueprint) Timestamp(name string) *Column {
	return t.addColumn(name, TypeTimestamp)
}

// UUID adds a UUID (CHAR(36) on MySQL/SQLite) column.
func (t *Blueprint) UUID(name string) *Column {
	return t.addColumn(name, TypeUUID)
}

// JSON adds a JSON column (TEXT on SQLite).
func (t *Blueprint) JSON(name string) *Column {
	return t.addColumn(name, TypeJSON)
}

// ForeignID adds an unsigned BIGINT column intended to reference another
// table's primary key. Chain Constrained to attach the constraint.
func (t *Blueprint) ForeignID(name string) *ForeignIDColumn {
	c := t.addColumn(name, TypeBigInt)
	c.unsigned = true
	return &ForeignIDColumn{Column: c, bp: t}
}

// Timestamps adds nullable `created_at` and `updated_at` timestamp columns.
func (t *Blueprint) Timestamps() {
	t.Timestamp("created_at").Nullable()
	t.Timestamp("updated_at").Nullable()
}

// SoftDeletes adds a nullable `deleted_at` timestamp column used by the
// soft-delete policy.
func (t *Blueprint) SoftDeletes() *Column {
	return t.Timestamp("deleted_at").Nullable()
}

// Morphs adds the `{name}_type` and `{name}_id` column pair used by
// polymorphic relationships, with a composite index over both.
func (t *Blueprint) Morphs(name string) {
	t.String(name + "_type")
	c := t.addColumn(name+"_id", TypeBigInt)
	c.unsigned = true
	t.IndexColumns(name+"_type", name+"_id")
}

// IndexColumns adds a named composite index over the given columns.
func (t *Blueprint) IndexColumns(columns ...string) *IndexDef {
	idx := &IndexDef{columns: columns, name: indexName(t.name, columns, "index")}
	t.indexes = append(t.indexes, idx)
	return idx
}

// UniqueColumns adds a named composite unique index over the given columns.
func (t *Blueprint) UniqueColumns(columns ...string) *IndexDef {
	idx := &IndexDef{columns: columns, unique: true, name: indexName(t.name, columns, "unique")}
	t.indexes = append(t.indexes, idx)
	return idx
}

// DropColumn removes a column from the table (alteration only).
func (t *Blueprint) DropColumn(names ...string) {
	t.dropColumns = append(t.dropColumns, names...)
}

// RenameColumn renames a column (alteration only).
func (t *Blueprint) RenameColumn(from, to string) {
	t.renameColumns = append(t.renameColumns, [2]string{from, to})
}

// DropIndex removes an index by name (alteration only).
func (t *Blueprint) DropIndex(name string) {
	t.dropIndexes = append(t.dropIndexes, name)
}

// indexName builds the conventional index name: table_col1_col2_suffix.
func indexName(table string, columns []string, suffix string) string {
	name := table
	for _, c := range columns {
		name += "_" + c
	}
	return name + "_" + suffix
}
