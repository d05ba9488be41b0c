package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/weavedb/loom/dialect"
)

// grammar translates a Blueprint into dialect-specific DDL statements.
type grammar struct {
	dialect string
	prefix  string
}

func (g grammar) quote(ident string) string {
	if g.dialect == dialect.Postgres {
		return `"` + ident + `"`
	}
	return "`" + ident + "`"
}

func (g grammar) table(name string) string {
	return g.quote(g.prefix + name)
}

// create compiles the blueprint into a CREATE TABLE statement followed by
// CREATE INDEX statements.
func (g grammar) create(t *Blueprint) ([]string, error) {
	var defs []string
	for _, c := range t.columns {
		def, err := g.columnSQL(c)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	for _, fk := range t.fks {
		defs = append(defs, g.foreignKeySQL(fk))
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", g.table(t.name), strings.Join(defs, ", ")),
	}
	stmts = append(stmts, g.indexStatements(t)...)
	return stmts, nil
}

// alter compiles the blueprint into a sequence of ALTER TABLE and index
// statements. Statement order: renames, drops, additions, indexes.
func (g grammar) alter(t *Blueprint) ([]string, error) {
	var stmts []string
	for _, rc := range t.renameColumns {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			g.table(t.name), g.quote(rc[0]), g.quote(rc[1])))
	}
	for _, name := range t.dropIndexes {
		switch g.dialect {
		case dialect.MySQL:
			stmts = append(stmts, fmt.Sprintf("DROP INDEX %s ON %s", g.quote(name), g.table(t.name)))
		default:
			stmts = append(stmts, fmt.Sprintf("DROP INDEX %s", g.quote(name)))
		}
	}
	for _, name := range t.dropColumns {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", g.table(t.name), g.quote(name)))
	}
	for _, c := range t.columns {
		def, err := g.columnSQL(c)
		if err != nil {
			return nil, err
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", g.table(t.name), def)
		if c.after != "" && g.dialect == dialect.MySQL {
			stmt += " AFTER " + g.quote(c.after)
		}
		stmts = append(stmts, stmt)
	}
	for _, fk := range t.fks {
		if g.dialect == dialect.SQLite {
			return nil, fmt.Errorf("schema: sqlite does not support adding foreign keys to an existing table %q", t.name)
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", g.table(t.name), g.foreignKeySQL(fk)))
	}
	stmts = append(stmts, g.indexStatements(t)...)
	return stmts, nil
}

// indexStatements returns CREATE INDEX statements for per-column and
// composite indexes.
func (g grammar) indexStatements(t *Blueprint) []string {
	var stmts []string
	for _, c := range t.columns {
		if !c.index {
			continue
		}
		name := indexName(g.prefix+t.name, []string{c.name}, "index")
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			g.quote(name), g.table(t.name), g.quote(c.name)))
	}
	for _, idx := range t.indexes {
		unique := ""
		if idx.unique {
			unique = "UNIQUE "
		}
		cols := make([]string, len(idx.columns))
		for i, c := range idx.columns {
			cols[i] = g.quote(c)
		}
		name := idx.name
		if g.prefix != "" && !strings.HasPrefix(name, g.prefix) {
			name = g.prefix + name
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
			unique, g.quote(name), g.table(t.name), strings.Join(cols, ", ")))
	}
	return stmts
}

// columnSQL compiles a single column definition.
func (g grammar) columnSQL(c *Column) (string, error) {
	typ, err := g.typeSQL(c)
	if err != nil {
		return "", err
	}
	b := strings.Builder{}
	b.WriteString(g.quote(c.name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if c.typ == TypeIncrements {
		switch g.dialect {
		case dialect.SQLite:
			b.WriteString(" NOT NULL PRIMARY KEY AUTOINCREMENT")
		case dialect.MySQL:
			b.WriteString(" NOT NULL AUTO_INCREMENT PRIMARY KEY")
		case dialect.Postgres:
			b.WriteString(" NOT NULL PRIMARY KEY")
		}
		return b.String(), nil
	}
	if !c.nullable {
		b.WriteString(" NOT NULL")
	} else {
		b.WriteString(" NULL")
	}
	switch {
	case c.useCurrent:
		b.WriteString(" DEFAULT CURRENT_TIMESTAMP")
	case c.hasDefault:
		lit, err := defaultLiteral(c.def)
		if err != nil {
			return "", fmt.Errorf("schema: column %q: %w", c.name, err)
		}
		b.WriteString(" DEFAULT " + lit)
	}
	if c.primary {
		b.WriteString(" PRIMARY KEY")
	}
	if c.unique {
		b.WriteString(" UNIQUE")
	}
	if c.comment != "" && g.dialect == dialect.MySQL {
		b.WriteString(" COMMENT '" + strings.ReplaceAll(c.comment, "'", "''") + "'")
	}
	return b.String(), nil
}

// typeSQL maps the abstract column type to the dialect's concrete type.
func (g grammar) typeSQL(c *Column) (string, error) {
	switch g.dialect {
	case dialect.SQLite:
		switch c.typ {
		case TypeIncrements, TypeInteger, TypeBigInt:
			return "integer", nil
		case TypeString, TypeText, TypeJSON:
			return "text", nil
		case TypeBool:
			return "bool", nil
		case TypeFloat:
			return "real", nil
		case TypeDecimal:
			return fmt.Sprintf("decimal(%d, %d)", c.precision, c.scale), nil
		case TypeDate:
			return "date", nil
		case TypeDateTime, TypeTimestamp:
			return "datetime", nil
		case TypeUUID:
			return "uuid", nil
		}
	case dialect.MySQL:
		switch c.typ {
		case TypeIncrements:
			return "bigint unsigned", nil
		case TypeInteger:
			return maybeUnsigned(c, "int"), nil
		case TypeBigInt:
			return maybeUnsigned(c, "bigint"), nil
		case TypeString:
			return fmt.Sprintf("varchar(%d)", c.size), nil
		case TypeText:
			return "longtext", nil
		case TypeBool:
			return "bool", nil
		case TypeFloat:
			return "double", nil
		case TypeDecimal:
			return fmt.Sprintf("decimal(%d, %d)", c.precision, c.scale), nil
		case TypeDate:
			return "date", nil
		case TypeDateTime:
			return "datetime", nil
		case TypeTimestamp:
			return "timestamp", nil
		case TypeUUID:
			return "char(36)", nil
		case TypeJSON:
			return "json", nil
		}
	case dialect.Postgres:
		switch c.typ {
		case TypeIncrements:
			return "bigserial", nil
		case TypeInteger:
			return "int", nil
		case TypeBigInt:
			return "bigint", nil
		case TypeString:
			return fmt.Sprintf("varchar(%d)", c.size), nil
		case TypeText:
			return "text", nil
		case TypeBool:
			return "boolean", nil
		case TypeFloat:
			return "double precision", nil
		case TypeDecimal:
			return fmt.Sprintf("numeric(%d, %d)", c.precision, c.scale), nil
		case TypeDate:
			return "date", nil
		case TypeDateTime, TypeTimestamp:
			return "timestamp", nil
		case TypeUUID:
			return "uuid", nil
		case TypeJSON:
			return "jsonb", nil
		}
	default:
		return "", fmt.Errorf("schema: unsupported dialect %q", g.dialect)
	}
	return "", fmt.Errorf("schema: unsupported column type %v", c.typ)
}

func maybeUnsigned(c *Column, typ string) string {
	if c.unsigned {
		return typ + " unsigned"
	}
	return typ
}

// foreignKeySQL compiles an inline FOREIGN KEY constraint.
func (g grammar) foreignKeySQL(fk *ForeignKey) string {
	b := strings.Builder{}
	b.WriteString("FOREIGN KEY (")
	b.WriteString(g.quote(fk.column))
	b.WriteString(") REFERENCES ")
	b.WriteString(g.table(fk.refTable))
	b.WriteString(" (")
	b.WriteString(g.quote(fk.refColumn))
	b.WriteString(")")
	if fk.onDelete != "" {
		b.WriteString(" ON DELETE " + string(fk.onDelete))
	}
	if fk.onUpdate != "" {
		b.WriteString(" ON UPDATE " + string(fk.onUpdate))
	}
	return b.String()
}

// defaultLiteral renders a DDL default value. DDL cannot bind parameters,
// so only a closed set of literal types is accepted.
func defaultLiteral(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	default:
		return "", fmt.Errorf("unsupported default value type %T", v)
	}
}
