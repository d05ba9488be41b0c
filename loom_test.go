package loom_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	loom "github.com/weavedb/loom"
	"github.com/weavedb/loom/dialect"
	entsql "github.com/weavedb/loom/dialect/sql"
	"github.com/weavedb/loom/schema"
)

// newTestDriver opens an in-memory sqlite database with the test schema
// applied.
func newTestDriver(t *testing.T) *entsql.Driver {
	t.Helper()
	drv, err := entsql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	// An in-memory database exists per connection.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	b := schema.NewBuilder(drv)
	require.NoError(t, b.Create(ctx, "authors", func(t *schema.Blueprint) {
		t.ID()
		t.String("name")
		t.String("email").Nullable().Unique()
		t.Timestamps()
	}))
	require.NoError(t, b.Create(ctx, "categories", func(t *schema.Blueprint) {
		t.ID()
		t.String("name")
	}))
	require.NoError(t, b.Create(ctx, "books", func(t *schema.Blueprint) {
		t.ID()
		t.ForeignID("author_id").Constrained("authors").Nullable()
		t.ForeignID("category_id").Constrained("categories").Nullable()
		t.String("title")
		t.String("status").Default("draft")
		t.Boolean("featured").Default(false)
		t.Integer("views").Default(0)
		t.Timestamps()
		t.SoftDeletes()
	}))
	require.NoError(t, b.Create(ctx, "profiles", func(t *schema.Blueprint) {
		t.ID()
		t.ForeignID("author_id").Constrained("authors")
		t.Text("bio")
	}))
	require.NoError(t, b.Create(ctx, "tags", func(t *schema.Blueprint) {
		t.ID()
		t.String("name")
	}))
	require.NoError(t, b.Create(ctx, "book_tag", func(t *schema.Blueprint) {
		t.ForeignID("book_id").Constrained("books")
		t.ForeignID("tag_id").Constrained("tags")
		t.UniqueColumns("book_id", "tag_id")
	}))
	require.NoError(t, b.Create(ctx, "comments", func(t *schema.Blueprint) {
		t.ID()
		t.Morphs("commentable")
		t.Text("body")
	}))
	return drv
}

// newTestRegistry declares the entity types backing the test schema.
func newTestRegistry(t *testing.T) *loom.Registry {
	t.Helper()
	reg := loom.NewRegistry()
	require.NoError(t, reg.Register(
		&loom.Descriptor{
			Name:       "Author",
			Fillable:   []string{"name", "email"},
			Timestamps: true,
			Relations: map[string]loom.Relation{
				"books":   {Kind: loom.HasMany, Entity: "Book"},
				"profile": {Kind: loom.HasOne, Entity: "Profile"},
			},
		},
		&loom.Descriptor{
			Name:     "Category",
			Fillable: []string{"name"},
		},
		&loom.Descriptor{
			Name:        "Book",
			Fillable:    []string{"title", "status", "featured", "views", "author_id", "category_id"},
			Timestamps:  true,
			SoftDeletes: true,
			Relations: map[string]loom.Relation{
				"author":   {Kind: loom.BelongsTo, Entity: "Author"},
				"category": {Kind: loom.BelongsTo, Entity: "Category"},
				"tags":     {Kind: loom.BelongsToMany, Entity: "Tag"},
				"comments": {Kind: loom.MorphMany, Entity: "Comment", Morph: "commentable"},
			},
			Scopes: map[string]func(*loom.Query){
				"published": func(q *loom.Query) { q.Where("status", "published") },
				"popular":   func(q *loom.Query) { q.Where("views", ">=", 100) },
			},
		},
		&loom.Descriptor{
			Name:     "Profile",
			Fillable: []string{"author_id", "bio"},
			Relations: map[string]loom.Relation{
				"author": {Kind: loom.BelongsTo, Entity: "Author"},
			},
		},
		&loom.Descriptor{
			Name:     "Tag",
			Fillable: []string{"name"},
			Relations: map[string]loom.Relation{
				"books": {Kind: loom.BelongsToMany, Entity: "Book"},
			},
		},
		&loom.Descriptor{
			Name:     "Comment",
			Fillable: []string{"body", "commentable_id", "commentable_type"},
		},
	))
	return reg
}

func newTestClient(t *testing.T, opts ...loom.ClientOption) *loom.Client {
	t.Helper()
	return loom.NewClient(newTestDriver(t), newTestRegistry(t), opts...)
}

// seedAuthorWithBooks creates an author with n books and returns both.
func seedAuthorWithBooks(t *testing.T, client *loom.Client, name string, n int) (*loom.Entity, []*loom.Entity) {
	t.Helper()
	ctx := context.Background()
	author, err := client.Model("Author").Create(ctx, map[string]any{"name": name})
	require.NoError(t, err)
	books := make([]*loom.Entity, 0, n)
	for i := 0; i < n; i++ {
		book, err := client.Model("Book").Create(ctx, map[string]any{
			"title":     name + " book",
			"author_id": author.ID(),
			"status":    "published",
		})
		require.NoError(t, err)
		books = append(books, book)
	}
	return author, books
}
