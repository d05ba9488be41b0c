package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_create_books.up.sql":        {Data: []byte("CREATE TABLE books (id integer primary key, title text);")},
		"0002_create_books.down.sql":      {Data: []byte("DROP TABLE books;")},
		"0001_create_categories.up.sql":   {Data: []byte("CREATE TABLE categories (id integer primary key);")},
		"0001_create_categories.down.sql": {Data: []byte("DROP TABLE categories;")},
		"README.md":                       {Data: []byte("not a migration")},
	}
	migrations, err := LoadFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_create_categories", migrations[0].Name)
	assert.Equal(t, "0002_create_books", migrations[1].Name)
}

func TestLoadFSMissingUp(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_orphan.down.sql": {Data: []byte("DROP TABLE orphan;")},
	}
	_, err := LoadFS(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no up file")
}

func TestLoadFSMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_one_way.up.sql": {Data: []byte("CREATE TABLE one_way (id integer);")},
	}
	migrations, err := LoadFS(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	err = migrations[0].Down(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no down file")
}

func TestLoadFSRoundTrip(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_create_books.up.sql": {Data: []byte(`
-- books holds the catalog.
CREATE TABLE books (
	id integer primary key autoincrement,
	title text not null
);
CREATE INDEX books_title_index ON books (title);
`)},
		"0001_create_books.down.sql": {Data: []byte("DROP TABLE books;")},
	}
	migrations, err := LoadFS(fsys)
	require.NoError(t, err)

	r := newTestRunner(t)
	r.Register(migrations...)
	ran, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0001_create_books"}, ran)

	ok, err := r.Builder().HasColumn(context.Background(), "books", "title")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = r.Rollback(context.Background(), 1)
	require.NoError(t, err)
	ok, err = r.Builder().HasTable(context.Background(), "books")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		script string
		want   []string
	}{
		{"", nil},
		{"SELECT 1;", []string{"SELECT 1"}},
		{"SELECT 1", []string{"SELECT 1"}},
		{
			script: "-- comment\nCREATE TABLE a (n integer);\n\nCREATE TABLE b (n integer);",
			want:   []string{"CREATE TABLE a (n integer)", "CREATE TABLE b (n integer)"},
		},
		{
			// A multi-line statement splits only at the line-ending semicolon.
			script: "CREATE TABLE a (\n\tn integer\n);",
			want:   []string{"CREATE TABLE a (\n\tn integer\n)"},
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitStatements(tt.script), tt.script)
	}
}
