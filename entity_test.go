package loom_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loom "github.com/weavedb/loom"
)

func TestRegistry(t *testing.T) {
	reg := loom.NewRegistry()
	require.NoError(t, reg.Register(&loom.Descriptor{Name: "Book", Fillable: []string{"title"}}))

	desc, err := reg.Lookup("Book")
	require.NoError(t, err)
	assert.Equal(t, "books", desc.TableName())
	assert.Equal(t, "id", desc.Key())

	_, err = reg.Lookup("Ghost")
	require.Error(t, err)

	// Duplicate registration is rejected.
	err = reg.Register(&loom.Descriptor{Name: "Book"})
	require.Error(t, err)

	require.NoError(t, reg.Register(&loom.Descriptor{Name: "Author"}))
	assert.Equal(t, []string{"Author", "Book"}, reg.Names())
}

func TestRegistryRejectsBadDescriptors(t *testing.T) {
	reg := loom.NewRegistry()
	err := reg.Register(&loom.Descriptor{})
	require.Error(t, err)

	err = reg.Register(&loom.Descriptor{
		Name:     "Book",
		Fillable: []string{"title"},
		Guarded:  []string{"id"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	err = reg.Register(&loom.Descriptor{
		Name:      "Post",
		Relations: map[string]loom.Relation{"comments": {Kind: loom.MorphMany, Entity: "Comment"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "morph")

	assert.Panics(t, func() {
		reg.MustRegister(&loom.Descriptor{})
	})
}

func TestDescriptorOverrides(t *testing.T) {
	desc := &loom.Descriptor{Name: "Person", Table: "people_records", PrimaryKey: "uuid"}
	assert.Equal(t, "people_records", desc.TableName())
	assert.Equal(t, "uuid", desc.Key())
}

func TestEntityFillPolicy(t *testing.T) {
	reg := loom.NewRegistry()
	reg.MustRegister(
		&loom.Descriptor{Name: "Book", Fillable: []string{"title", "views"}},
		&loom.Descriptor{Name: "Author", Guarded: []string{"id", "admin"}},
		&loom.Descriptor{Name: "Locked"},
	)

	book, _ := reg.Lookup("Book")
	e := loom.NewEntity(book)
	dropped := e.Fill(map[string]any{"title": "Go", "views": 10, "id": 99, "admin": true})
	assert.Equal(t, []string{"admin", "id"}, dropped)
	assert.Equal(t, "Go", e.Get("title"))
	assert.False(t, e.Has("id"))

	author, _ := reg.Lookup("Author")
	e = loom.NewEntity(author)
	dropped = e.Fill(map[string]any{"name": "a8m", "admin": true})
	assert.Equal(t, []string{"admin"}, dropped)
	assert.Equal(t, "a8m", e.Get("name"))

	// With neither list declared, nothing is mass-assignable.
	locked, _ := reg.Lookup("Locked")
	e = loom.NewEntity(locked)
	dropped = e.Fill(map[string]any{"anything": 1})
	assert.Equal(t, []string{"anything"}, dropped)
	assert.False(t, e.Has("anything"))

	// Set bypasses the policy.
	e.Set("anything", 1)
	assert.True(t, e.Has("anything"))
}

func TestEntityDirtyTracking(t *testing.T) {
	reg := loom.NewRegistry()
	reg.MustRegister(&loom.Descriptor{Name: "Book", Fillable: []string{"title"}})
	desc, _ := reg.Lookup("Book")

	e := loom.NewEntity(desc)
	assert.False(t, e.IsDirty())
	e.Set("title", "Go")
	assert.True(t, e.IsDirty())
	assert.True(t, e.IsDirty("title"))
	assert.False(t, e.IsDirty("views"))
	assert.Equal(t, map[string]any{"title": "Go"}, e.Dirty())
}

func TestEntityAccessorsMutators(t *testing.T) {
	reg := loom.NewRegistry()
	reg.MustRegister(&loom.Descriptor{
		Name:     "User",
		Fillable: []string{"name", "email"},
		Accessors: map[string]func(any) any{
			"name": func(v any) any {
				s, _ := v.(string)
				return strings.ToUpper(s)
			},
		},
		Mutators: map[string]func(any) any{
			"email": func(v any) any {
				s, _ := v.(string)
				return strings.ToLower(s)
			},
		},
	})
	desc, _ := reg.Lookup("User")

	e := loom.NewEntity(desc)
	e.Set("name", "a8m")
	e.Set("email", "A8M@Example.COM")
	assert.Equal(t, "A8M", e.Get("name"))
	// Raw bypasses the accessor.
	assert.Equal(t, "a8m", e.Raw("name"))
	// The mutator ran on write, so the stored value is normalized.
	assert.Equal(t, "a8m@example.com", e.Raw("email"))
	assert.Equal(t, "A8M", e.Attributes()["name"])
}

func TestEntityTrashed(t *testing.T) {
	reg := loom.NewRegistry()
	reg.MustRegister(
		&loom.Descriptor{Name: "Book", SoftDeletes: true},
		&loom.Descriptor{Name: "Category"},
	)
	book, _ := reg.Lookup("Book")
	category, _ := reg.Lookup("Category")

	e := loom.NewEntity(book)
	assert.False(t, e.Trashed())
	e.Set(loom.DeletedAtColumn, time.Now())
	assert.True(t, e.Trashed())

	// Types without soft deletes are never trashed.
	e = loom.NewEntity(category)
	e.Set(loom.DeletedAtColumn, time.Now())
	assert.False(t, e.Trashed())
}

func TestEntityTypedGetters(t *testing.T) {
	reg := loom.NewRegistry()
	reg.MustRegister(&loom.Descriptor{Name: "Row"})
	desc, _ := reg.Lookup("Row")

	e := loom.NewEntity(desc)
	e.Set("s", []byte("hello")).
		Set("n", "42").
		Set("f", []byte("2.5")).
		Set("b", int64(1)).
		Set("t", "2024-06-01 12:00:00")

	assert.Equal(t, "hello", e.GetString("s"))
	assert.Equal(t, "", e.GetString("missing"))
	assert.Equal(t, int64(42), e.GetInt("n"))
	assert.Equal(t, 2.5, e.GetFloat("f"))
	assert.True(t, e.GetBool("b"))
	assert.False(t, e.GetBool("missing"))
	assert.Equal(t, 2024, e.GetTime("t").Year())
	assert.True(t, e.GetTime("missing").IsZero())
}

func TestEntityRelationsAccess(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	author, books := seedAuthorWithBooks(t, client, "a8m", 2)

	// Unloaded relations report nil, not empty.
	assert.False(t, author.RelationLoaded("books"))
	assert.Nil(t, author.RelatedMany("books"))
	assert.Nil(t, books[0].Related("author"))

	require.NoError(t, client.LoadOne(ctx, author, "books"))
	assert.True(t, author.RelationLoaded("books"))
	assert.Len(t, author.RelatedMany("books"), 2)
}
