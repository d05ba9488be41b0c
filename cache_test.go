package loom

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	k1 := cacheKey("books", "SELECT * FROM `books` WHERE `id` = ?", []any{1})
	k2 := cacheKey("books", "SELECT * FROM `books` WHERE `id` = ?", []any{2})
	k3 := cacheKey("books", "SELECT * FROM `books` WHERE `id` = ?", []any{1})

	// Keys share the table prefix for prefix invalidation.
	assert.True(t, strings.HasPrefix(k1, "books:"))
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, k3)
}

func TestEncodeDecodeRows(t *testing.T) {
	rows := []map[string]any{
		{"id": int64(1), "title": "Go", "views": int64(10)},
		{"id": int64(2), "title": "SQL", "deleted_at": nil},
	}
	data, err := encodeRows(rows)
	require.NoError(t, err)

	decoded, err := decodeRows(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, "Go", decoded[0]["title"])
	assert.Equal(t, int64(2), decoded[1]["id"])
	assert.Nil(t, decoded[1]["deleted_at"])

	_, err = decodeRows([]byte("not msgpack"))
	require.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	// Miss returns nil, nil.
	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "books:a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "books:b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "tags:a", []byte("3"), 0))
	assert.Equal(t, 3, c.Len())

	v, err = c.Get(ctx, "books:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, c.Delete(ctx, "books:a"))
	v, err = c.Get(ctx, "books:a")
	require.NoError(t, err)
	assert.Nil(t, v)

	// Prefix invalidation leaves other tables untouched.
	require.NoError(t, c.DeletePrefix(ctx, "books:"))
	assert.Equal(t, 1, c.Len())
	v, err = c.Get(ctx, "tags:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), v)

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	// Expired entries are removed lazily on read.
	assert.Zero(t, c.Len())
}
