package schema

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavedb/loom/dialect"
)

func TestHasTable(t *testing.T) {
	b, mock := mockBuilder(t, dialect.SQLite, WithPrefix("app_"))
	tables := sqlmock.NewRows([]string{"name"}).AddRow("app_books").AddRow("app_categories")
	mock.ExpectQuery("SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%' ORDER BY `name`").
		WillReturnRows(tables)

	ok, err := b.HasTable(context.Background(), "books")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestColumnsSQLite(t *testing.T) {
	b, mock := mockBuilder(t, dialect.SQLite)
	rows := sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
		AddRow(0, "id", "INTEGER", 1, nil, 1).
		AddRow(1, "title", "TEXT", 1, nil, 0).
		AddRow(2, "views", "INTEGER", 1, "0", 0).
		AddRow(3, "deleted_at", "DATETIME", 0, nil, 0)
	mock.ExpectQuery("PRAGMA table_info(`books`)").WillReturnRows(rows)

	columns, err := b.Columns(context.Background(), "books")
	require.NoError(t, err)
	require.Len(t, columns, 4)
	assert.Equal(t, ColumnInfo{Name: "id", Type: "integer", Primary: true}, columns[0])
	assert.True(t, columns[3].Nullable)
	require.NotNil(t, columns[2].Default)
	assert.Equal(t, "0", *columns[2].Default)
}

func TestHasColumn(t *testing.T) {
	b, mock := mockBuilder(t, dialect.SQLite)
	rows := sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
		AddRow(0, "id", "INTEGER", 1, nil, 1)
	mock.ExpectQuery("PRAGMA table_info(`books`)").WillReturnRows(rows)

	ok, err := b.HasColumn(context.Background(), "books", "title")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestColumnsMySQL(t *testing.T) {
	b, mock := mockBuilder(t, dialect.MySQL)
	rows := sqlmock.NewRows([]string{"column_name", "column_type", "is_nullable", "column_default", "column_key"}).
		AddRow("id", "bigint unsigned", "NO", nil, "PRI").
		AddRow("email", "varchar(255)", "YES", nil, "UNI")
	mock.ExpectQuery("SELECT `column_name`, `column_type`, `is_nullable`, `column_default`, `column_key` " +
		"FROM `information_schema`.`columns` WHERE `table_schema` = (SELECT DATABASE()) AND `table_name` = ? " +
		"ORDER BY `ordinal_position`").
		WithArgs("users").
		WillReturnRows(rows)

	columns, err := b.Columns(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.True(t, columns[0].Primary)
	assert.True(t, columns[1].Nullable)
}

func TestInspect(t *testing.T) {
	b, mock := mockBuilder(t, dialect.SQLite)
	mock.ExpectQuery("SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%' ORDER BY `name`").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("books"))
	mock.ExpectQuery("PRAGMA table_info(`books`)").
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "id", "INTEGER", 1, nil, 1))

	tables, err := b.Inspect(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "books", tables[0].Name)
	require.Len(t, tables[0].Columns, 1)
}

func TestAsIntAsBool(t *testing.T) {
	assert.Equal(t, 3, asInt(int64(3)))
	assert.Equal(t, 3, asInt(3))
	assert.Equal(t, 3, asInt("3"))
	assert.Zero(t, asInt(""))
	assert.Zero(t, asInt(nil))
	assert.True(t, asBool(true))
	assert.True(t, asBool(int64(1)))
	assert.True(t, asBool("t"))
	assert.False(t, asBool("f"))
	assert.False(t, asBool(nil))
}
