package sql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavedb/loom/dialect"
)

func queryRows(t *testing.T, rs *sqlmock.Rows) *Rows {
	t.Helper()
	db, m, err := sqlmock.New()
	require.NoError(t, err)
	m.ExpectQuery("SELECT").WillReturnRows(rs)
	drv := OpenDB(dialect.SQLite, db)
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT * FROM t", []any{}, rows))
	t.Cleanup(func() { rows.Close() })
	return rows
}

func TestScanMaps(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"id", "name", "bio"}).
		AddRow(1, "a8m", []byte("hello")).
		AddRow(2, "nati", nil))
	maps, err := ScanMaps(rows)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, int64(1), maps[0]["id"])
	assert.Equal(t, "a8m", maps[0]["name"])
	// Byte slices are copied to strings.
	assert.Equal(t, "hello", maps[0]["bio"])
	assert.Nil(t, maps[1]["bio"])
}

func TestScanOneEmpty(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"n"}))
	var v any
	err := ScanOne(rows, &v)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestScanInt64(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"n"}).AddRow(42))
	n, err := ScanInt64(rows)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestScanInt64Null(t *testing.T) {
	// MAX(batch) over an empty table yields NULL, scanned as zero.
	rows := queryRows(t, sqlmock.NewRows([]string{"n"}).AddRow(nil))
	n, err := ScanInt64(rows)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScanValues(t *testing.T) {
	rows := queryRows(t, sqlmock.NewRows([]string{"name"}).
		AddRow("a").
		AddRow([]byte("b")))
	values, err := ScanValues(rows)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, values)
}

func TestNullableTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := NullableTime(now)
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	got, err = NullableTime(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = NullableTime("2024-06-01 12:00:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(now))

	got, err = NullableTime([]byte("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	_, err = NullableTime("not a time")
	require.Error(t, err)

	_, err = NullableTime(3.14)
	require.Error(t, err)
}
