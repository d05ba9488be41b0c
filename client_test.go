package loom_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loom "github.com/weavedb/loom"
	entsql "github.com/weavedb/loom/dialect/sql"
)

func TestCreateAssignsKeyAndTimestamps(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go"})
	require.NoError(t, err)
	assert.True(t, book.Exists())
	assert.Equal(t, int64(1), book.GetInt("id"))
	assert.True(t, book.Has(loom.CreatedAtColumn))
	assert.True(t, book.Has(loom.UpdatedAtColumn))
	assert.False(t, book.IsDirty())

	// The row round-trips.
	found, err := client.Model("Book").Find(ctx, book.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Go", found.GetString("title"))
	assert.False(t, found.GetTime(loom.CreatedAtColumn).IsZero())
}

func TestCreateDropsGuardedAttributes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	// "id" is not fillable on Book; the backend assigns it.
	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go", "id": 999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), book.GetInt("id"))
}

func TestSaveUpdatesOnlyDirtyColumns(t *testing.T) {
	drv := newTestDriver(t)
	stats := entsql.WithStats(drv)
	client := loom.NewClient(stats, newTestRegistry(t))
	ctx := context.Background()

	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go", "status": "draft"})
	require.NoError(t, err)

	// Saving a clean entity issues no statement.
	stats.ResetStats()
	require.NoError(t, client.Save(ctx, book))
	assert.Zero(t, stats.Stats().TotalExecs)

	book.Set("status", "published")
	require.NoError(t, client.Save(ctx, book))
	assert.Equal(t, int64(1), stats.Stats().TotalExecs)
	assert.False(t, book.IsDirty())

	found, err := client.Model("Book").Find(ctx, book.ID())
	require.NoError(t, err)
	assert.Equal(t, "published", found.GetString("status"))
	assert.Equal(t, "Go", found.GetString("title"))
}

func TestUniqueConstraintSurfaces(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Model("Author").Create(ctx, map[string]any{"name": "a8m", "email": "a8m@example.com"})
	require.NoError(t, err)

	_, err = client.Model("Author").Create(ctx, map[string]any{"name": "impostor", "email": "a8m@example.com"})
	require.Error(t, err)
	assert.True(t, loom.IsConstraintError(err))
	assert.True(t, loom.IsUniqueConstraintError(err))
	assert.True(t, loom.IsMutationError(err))
}

func TestDeleteSoftAndRestore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go"})
	require.NoError(t, err)

	require.NoError(t, client.Delete(ctx, book))
	assert.True(t, book.Trashed())
	// The row still exists; default reads just hide it.
	assert.True(t, book.Exists())

	found, err := client.Model("Book").Find(ctx, book.ID())
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = client.Model("Book").WithTrashed().Find(ctx, book.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Trashed())

	require.NoError(t, client.Restore(ctx, book))
	assert.False(t, book.Trashed())
	found, err = client.Model("Book").Find(ctx, book.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestForceDeleteRemovesRow(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go"})
	require.NoError(t, err)
	require.NoError(t, client.ForceDelete(ctx, book))
	assert.False(t, book.Exists())

	found, err := client.Model("Book").WithTrashed().Find(ctx, book.ID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDeleteHardWithoutSoftDeletes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	cat, err := client.Model("Category").Create(ctx, map[string]any{"name": "go"})
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, cat))
	assert.False(t, cat.Exists())

	// Restore is meaningless without soft deletes.
	err = client.Restore(ctx, cat)
	require.Error(t, err)
}

func TestTouch(t *testing.T) {
	drv := newTestDriver(t)
	stats := entsql.WithStats(drv)
	client := loom.NewClient(stats, newTestRegistry(t))
	ctx := context.Background()

	book, err := client.Model("Book").Create(ctx, map[string]any{"title": "Go"})
	require.NoError(t, err)

	stats.ResetStats()
	require.NoError(t, client.Touch(ctx, book))
	assert.Equal(t, int64(1), stats.Stats().TotalExecs)
	assert.False(t, book.IsDirty())

	// Touch needs a persisted, timestamped entity.
	cat, err := client.Model("Category").Create(ctx, map[string]any{"name": "go"})
	require.NoError(t, err)
	require.Error(t, client.Touch(ctx, cat))
	require.Error(t, client.Touch(ctx, client.Model("Book").New()))
}

func TestTransactionCommit(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.Transaction(ctx, func(ctx context.Context, tx *loom.Client) error {
		_, err := tx.Model("Author").Create(ctx, map[string]any{"name": "a8m"})
		return err
	})
	require.NoError(t, err)

	n, err := client.Model("Author").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTransactionRollback(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := client.Transaction(ctx, func(ctx context.Context, tx *loom.Client) error {
		if _, err := tx.Model("Author").Create(ctx, map[string]any{"name": "a8m"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := client.Model("Author").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransactionNestedSavepoint(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := client.Transaction(ctx, func(ctx context.Context, tx *loom.Client) error {
		if _, err := tx.Model("Author").Create(ctx, map[string]any{"name": "outer"}); err != nil {
			return err
		}
		// The inner failure rolls back to the savepoint only.
		inner := tx.Transaction(ctx, func(ctx context.Context, tx *loom.Client) error {
			if _, err := tx.Model("Author").Create(ctx, map[string]any{"name": "inner"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)

	names, err := client.Model("Author").Pluck(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, []any{"outer"}, names)
}

func TestTransactionPanicRollsBack(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		client.Transaction(ctx, func(ctx context.Context, tx *loom.Client) error { //nolint:errcheck
			if _, err := tx.Model("Author").Create(ctx, map[string]any{"name": "a8m"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	n, err := client.Model("Author").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExplicitTx(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	txc, tx, err := client.Tx(ctx)
	require.NoError(t, err)
	_, err = txc.Model("Author").Create(ctx, map[string]any{"name": "a8m"})
	require.NoError(t, err)

	// A transactional client cannot start another top-level transaction.
	_, _, err = txc.Tx(ctx)
	require.ErrorIs(t, err, loom.ErrTxStarted)

	require.NoError(t, tx.Rollback())
	n, err := client.Model("Author").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHooksFire(t *testing.T) {
	drv := newTestDriver(t)
	var calls []string
	record := func(name string) loom.HookFunc {
		return func(context.Context, *loom.Entity) error {
			calls = append(calls, name)
			return nil
		}
	}
	reg := loom.NewRegistry()
	reg.MustRegister(&loom.Descriptor{
		Name:     "Author",
		Fillable: []string{"name", "email"},
		Hooks: loom.Hooks{
			Saving:   []loom.HookFunc{record("saving")},
			Saved:    []loom.HookFunc{record("saved")},
			Creating: []loom.HookFunc{record("creating")},
			Created:  []loom.HookFunc{record("created")},
			Updating: []loom.HookFunc{record("updating")},
			Updated:  []loom.HookFunc{record("updated")},
			Deleting: []loom.HookFunc{record("deleting")},
			Deleted:  []loom.HookFunc{record("deleted")},
		},
	})
	client := loom.NewClient(drv, reg)
	ctx := context.Background()

	author, err := client.Model("Author").Create(ctx, map[string]any{"name": "a8m"})
	require.NoError(t, err)
	assert.Equal(t, []string{"saving", "creating", "created", "saved"}, calls)

	calls = nil
	author.Set("name", "mashraki")
	require.NoError(t, client.Save(ctx, author))
	assert.Equal(t, []string{"saving", "updating", "updated", "saved"}, calls)

	calls = nil
	require.NoError(t, client.Delete(ctx, author))
	assert.Equal(t, []string{"deleting", "deleted"}, calls)
}

func TestHookAbortsMutation(t *testing.T) {
	drv := newTestDriver(t)
	veto := errors.New("not allowed")
	reg := loom.NewRegistry()
	reg.MustRegister(&loom.Descriptor{
		Name:     "Author",
		Fillable: []string{"name"},
		Hooks: loom.Hooks{
			Creating: []loom.HookFunc{
				func(context.Context, *loom.Entity) error { return veto },
			},
		},
	})
	client := loom.NewClient(drv, reg)
	ctx := context.Background()

	_, err := client.Model("Author").Create(ctx, map[string]any{"name": "a8m"})
	require.ErrorIs(t, err, veto)

	n, err := client.Model("Author").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRawQueries(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	seedAuthorWithBooks(t, client, "a8m", 2)

	rows, err := client.Raw(ctx, "SELECT name FROM authors WHERE name = ?", "a8m")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a8m", rows[0]["name"])

	n, err := client.RawExec(ctx, "UPDATE books SET views = views + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestModelUnknownEntity(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.Model("Ghost").Get(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")

	_, err = client.Model("Ghost").Count(ctx)
	require.Error(t, err)
	_, err = client.Model("Ghost").Create(ctx, map[string]any{})
	require.Error(t, err)
}

func TestLoadRequiresOneType(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	author, books := seedAuthorWithBooks(t, client, "a8m", 1)

	err := client.Load(ctx, []*loom.Entity{author, books[0]}, "books")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one type")

	// Loading nothing is a no-op.
	require.NoError(t, client.Load(ctx, nil, "books"))
}
