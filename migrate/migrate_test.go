package migrate

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/weavedb/loom/dialect"
	entsql "github.com/weavedb/loom/dialect/sql"
	"github.com/weavedb/loom/schema"
)

func newTestRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	drv, err := entsql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	// An in-memory database exists per connection.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewRunner(drv, opts...)
}

func createTableMigration(name, table string) *Migration {
	return &Migration{
		Name: name,
		Up: func(ctx context.Context, b *schema.Builder) error {
			return b.Create(ctx, table, func(t *schema.Blueprint) {
				t.ID()
				t.String("name")
			})
		},
		Down: func(ctx context.Context, b *schema.Builder) error {
			return b.Drop(ctx, table)
		},
	}
}

func TestRunAppliesInNameOrder(t *testing.T) {
	r := newTestRunner(t)
	// Registered out of order on purpose.
	r.Register(
		createTableMigration("2024_06_02_000000_create_books_table", "books"),
		createTableMigration("2024_06_01_000000_create_categories_table", "categories"),
	)

	ran, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"2024_06_01_000000_create_categories_table",
		"2024_06_02_000000_create_books_table",
	}, ran)

	for _, table := range []string{"categories", "books", "migrations"} {
		ok, err := r.Builder().HasTable(context.Background(), table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}
}

func TestRunIdempotent(t *testing.T) {
	r := newTestRunner(t)
	r.Register(createTableMigration("0001_create_books", "books"))

	ran, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ran, 1)

	ran, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ran)
}

func TestRunResumesAfterFailure(t *testing.T) {
	r := newTestRunner(t)
	boom := &Migration{
		Name: "0002_boom",
		Up: func(ctx context.Context, b *schema.Builder) error {
			return b.Raw(ctx, "THIS IS NOT SQL")
		},
		Down: func(context.Context, *schema.Builder) error { return nil },
	}
	r.Register(createTableMigration("0001_create_books", "books"), boom)

	ran, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0002_boom")
	// The unit applied before the failure stays recorded.
	require.Equal(t, []string{"0001_create_books"}, ran)

	// A fixed migration picks up where the ledger left off.
	r2 := NewRunner(r.drv, WithLogger(r.logger))
	r2.Register(
		createTableMigration("0001_create_books", "books"),
		createTableMigration("0002_boom", "authors"),
	)
	ran, err = r2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0002_boom"}, ran)
}

func TestRollbackReverseOrder(t *testing.T) {
	r := newTestRunner(t)
	r.Register(
		createTableMigration("0001_create_categories", "categories"),
		createTableMigration("0002_create_books", "books"),
	)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	reverted, err := r.Rollback(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"0002_create_books"}, reverted)

	ok, err := r.Builder().HasTable(context.Background(), "books")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.Builder().HasTable(context.Background(), "categories")
	require.NoError(t, err)
	assert.True(t, ok)

	// Rolled-back migrations become pending again.
	statuses, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)
}

func TestRollbackUnknownMigration(t *testing.T) {
	r := newTestRunner(t)
	r.Register(createTableMigration("0001_create_books", "books"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// A runner missing the registration cannot revert the ledger entry.
	r2 := NewRunner(r.drv, WithLogger(r.logger))
	_, err = r2.Rollback(context.Background(), 1)
	require.ErrorIs(t, err, ErrUnknownMigration)
}

func TestResetRevertsEverything(t *testing.T) {
	r := newTestRunner(t)
	r.Register(
		createTableMigration("0001_create_categories", "categories"),
		createTableMigration("0002_create_books", "books"),
	)
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	reverted, err := r.Reset(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"0002_create_books", "0001_create_categories"}, reverted)

	// Reset on an empty ledger is a no-op.
	reverted, err = r.Reset(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reverted)
}

func TestRefresh(t *testing.T) {
	r := newTestRunner(t)
	r.Register(createTableMigration("0001_create_books", "books"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.Refresh(context.Background()))
	ok, err := r.Builder().HasTable(context.Background(), "books")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFresh(t *testing.T) {
	r := newTestRunner(t)
	r.Register(createTableMigration("0001_create_books", "books"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// A stray table not under migration control is dropped too.
	require.NoError(t, r.Builder().Raw(context.Background(), "CREATE TABLE scratch (n integer)"))

	require.NoError(t, r.Fresh(context.Background()))
	ok, err := r.Builder().HasTable(context.Background(), "scratch")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = r.Builder().HasTable(context.Background(), "books")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBatchNumbering(t *testing.T) {
	r := newTestRunner(t)
	r.Register(createTableMigration("0001_create_categories", "categories"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	r.Register(createTableMigration("0002_create_books", "books"))
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	statuses, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, 1, statuses[0].Batch)
	assert.Equal(t, 2, statuses[1].Batch)

	// Rollback peels off the most recent batch entry only.
	reverted, err := r.Rollback(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"0002_create_books"}, reverted)
}

func TestRunnerLedgerTableOverride(t *testing.T) {
	r := newTestRunner(t, WithLedgerTable("schema_history"))
	r.Register(createTableMigration("0001_create_books", "books"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	tables, err := r.Builder().Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "schema_history"}, tables)

	// The override carries through the full ledger lifecycle.
	statuses, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].Applied)

	reverted, err := r.Rollback(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_create_books"}, reverted)
}

func TestRunnerPrefix(t *testing.T) {
	r := newTestRunner(t, WithPrefix("app_"))
	r.Register(createTableMigration("0001_create_books", "books"))
	_, err := r.Run(context.Background())
	require.NoError(t, err)

	tables, err := r.Builder().Tables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app_books", "app_migrations"}, tables)
}
