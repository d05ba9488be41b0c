package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/weavedb/loom/dialect"
	"github.com/weavedb/loom/dialect/sql"
)

// ColumnInfo describes an existing column as reported by the backend.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
	Primary  bool
}

// TableInfo describes an existing table for schema diffing.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
}

// Tables returns the names of all user tables in the connected database.
func (b *Builder) Tables(ctx context.Context) ([]string, error) {
	var (
		query string
		args  []any
	)
	switch b.drv.Dialect() {
	case dialect.SQLite:
		query = "SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%' ORDER BY `name`"
	case dialect.MySQL:
		query = "SELECT `table_name` FROM `information_schema`.`tables` WHERE `table_schema` = (SELECT DATABASE()) ORDER BY `table_name`"
	case dialect.Postgres:
		query = `SELECT "table_name" FROM "information_schema"."tables" WHERE "table_schema" = CURRENT_SCHEMA() AND "table_type" = 'BASE TABLE' ORDER BY "table_name"`
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", b.drv.Dialect())
	}
	rows := &sql.Rows{}
	if err := b.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	values, err := sql.ScanValues(rows)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		names = append(names, fmt.Sprint(v))
	}
	return names, nil
}

// HasTable reports whether the (prefixed) table exists.
func (b *Builder) HasTable(ctx context.Context, name string) (bool, error) {
	tables, err := b.Tables(ctx)
	if err != nil {
		return false, err
	}
	name = b.prefix + name
	for _, t := range tables {
		if t == name {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns the column layout of the (prefixed) table in definition
// order. It is the introspection primitive used to verify that a
// migration's down step restores the pre-up layout.
func (b *Builder) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	switch b.drv.Dialect() {
	case dialect.SQLite:
		return b.sqliteColumns(ctx, b.prefix+table)
	case dialect.MySQL:
		return b.mysqlColumns(ctx, b.prefix+table)
	case dialect.Postgres:
		return b.postgresColumns(ctx, b.prefix+table)
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", b.drv.Dialect())
	}
}

// HasColumn reports whether the (prefixed) table has the given column.
func (b *Builder) HasColumn(ctx context.Context, table, column string) (bool, error) {
	columns, err := b.Columns(ctx, table)
	if err != nil {
		return false, err
	}
	for _, c := range columns {
		if c.Name == column {
			return true, nil
		}
	}
	return false, nil
}

// Inspect returns the TableInfo of every user table, for use with
// ValidateDiff.
func (b *Builder) Inspect(ctx context.Context) ([]*TableInfo, error) {
	names, err := b.Tables(ctx)
	if err != nil {
		return nil, err
	}
	tables := make([]*TableInfo, 0, len(names))
	for _, name := range names {
		// Columns prefixes the name itself.
		columns, err := b.Columns(ctx, strings.TrimPrefix(name, b.prefix))
		if err != nil {
			return nil, err
		}
		tables = append(tables, &TableInfo{Name: name, Columns: columns})
	}
	return tables, nil
}

func (b *Builder) sqliteColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	// PRAGMA arguments cannot be bound; the identifier is quoted instead.
	query := fmt.Sprintf("PRAGMA table_info(`%s`)", strings.ReplaceAll(table, "`", ""))
	rows := &sql.Rows{}
	if err := b.drv.Query(ctx, query, []any{}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	columns := make([]ColumnInfo, 0, len(maps))
	for _, m := range maps {
		ci := ColumnInfo{
			Name:     fmt.Sprint(m["name"]),
			Type:     strings.ToLower(fmt.Sprint(m["type"])),
			Nullable: asInt(m["notnull"]) == 0,
			Primary:  asInt(m["pk"]) > 0,
		}
		if m["dflt_value"] != nil {
			s := fmt.Sprint(m["dflt_value"])
			ci.Default = &s
		}
		columns = append(columns, ci)
	}
	return columns, nil
}

func (b *Builder) mysqlColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := "SELECT `column_name`, `column_type`, `is_nullable`, `column_default`, `column_key` " +
		"FROM `information_schema`.`columns` WHERE `table_schema` = (SELECT DATABASE()) AND `table_name` = ? " +
		"ORDER BY `ordinal_position`"
	rows := &sql.Rows{}
	if err := b.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	columns := make([]ColumnInfo, 0, len(maps))
	for _, m := range maps {
		ci := ColumnInfo{
			Name:     fmt.Sprint(m["column_name"]),
			Type:     strings.ToLower(fmt.Sprint(m["column_type"])),
			Nullable: fmt.Sprint(m["is_nullable"]) == "YES",
			Primary:  fmt.Sprint(m["column_key"]) == "PRI",
		}
		if m["column_default"] != nil {
			s := fmt.Sprint(m["column_default"])
			ci.Default = &s
		}
		columns = append(columns, ci)
	}
	return columns, nil
}

func (b *Builder) postgresColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := `SELECT c."column_name", c."data_type", c."is_nullable", c."column_default",
EXISTS (
	SELECT 1 FROM "information_schema"."table_constraints" tc
	JOIN "information_schema"."key_column_usage" kcu
		ON tc."constraint_name" = kcu."constraint_name" AND tc."table_schema" = kcu."table_schema"
	WHERE tc."constraint_type" = 'PRIMARY KEY' AND tc."table_name" = c."table_name"
		AND kcu."column_name" = c."column_name" AND tc."table_schema" = c."table_schema"
) AS "is_primary"
FROM "information_schema"."columns" c
WHERE c."table_schema" = CURRENT_SCHEMA() AND c."table_name" = $1
ORDER BY c."ordinal_position"`
	rows := &sql.Rows{}
	if err := b.drv.Query(ctx, query, []any{table}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, err
	}
	columns := make([]ColumnInfo, 0, len(maps))
	for _, m := range maps {
		ci := ColumnInfo{
			Name:     fmt.Sprint(m["column_name"]),
			Type:     strings.ToLower(fmt.Sprint(m["data_type"])),
			Nullable: fmt.Sprint(m["is_nullable"]) == "YES",
			Primary:  asBool(m["is_primary"]),
		}
		if m["column_default"] != nil {
			s := fmt.Sprint(m["column_default"])
			ci.Default = &s
		}
		columns = append(columns, ci)
	}
	return columns, nil
}

func asInt(v any) int {
	switch v := v.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case string:
		if v == "" {
			return 0
		}
		n := 0
		fmt.Sscanf(v, "%d", &n) //nolint:errcheck
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case string:
		return v == "t" || v == "true" || v == "1"
	default:
		return false
	}
}
