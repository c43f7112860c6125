package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("1")))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	require.NoError(t, c.Set(ctx, BooksListPrefix+"x", []byte("1")))
	require.NoError(t, c.Set(ctx, BooksListPrefix+"y", []byte("2")))
	require.NoError(t, c.Set(ctx, "other", []byte("3")))

	require.NoError(t, c.DeletePrefix(ctx, BooksListPrefix))

	_, ok, _ := c.Get(ctx, BooksListPrefix+"x")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "other")
	assert.True(t, ok)
}

func TestBuildBooksListKey_Normalizes(t *testing.T) {
	a := " Hobbit "
	b := "hobbit"
	assert.Equal(t,
		BuildBooksListKey(1, 10, &a, nil, nil),
		BuildBooksListKey(1, 10, &b, nil, nil),
	)
	assert.NotEqual(t,
		BuildBooksListKey(1, 10, &b, nil, nil),
		BuildBooksListKey(2, 10, &b, nil, nil),
	)

	upper, lower := "Tolkien", "tolkien"
	assert.NotEqual(t,
		BuildBooksListKey(1, 10, nil, &upper, nil),
		BuildBooksListKey(1, 10, nil, &lower, nil),
	)
}

func TestBuildBooksListKey_SeparatorsInValues(t *testing.T) {
	crafted := "a:author=b"
	search, craftedAuthor := "a", "b:author="
	assert.NotEqual(t,
		BuildBooksListKey(1, 10, &crafted, nil, nil),
		BuildBooksListKey(1, 10, &search, &craftedAuthor, nil),
	)

	tail := "b:genre=x"
	author, genre := "b", "x"
	assert.NotEqual(t,
		BuildBooksListKey(1, 10, nil, &tail, nil),
		BuildBooksListKey(1, 10, nil, &author, &genre),
	)

	key := BuildBooksListKey(1, 10, &crafted, nil, nil)
	assert.Equal(t, 4, strings.Count(key, ":")-strings.Count(BooksListPrefix, ":"))
	assert.True(t, strings.HasPrefix(key, BooksListPrefix))
}

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping redis cache test")
	}

	ctx := context.Background()
	c := NewRedis(RedisConfig{Addr: addr, TTL: time.Minute})
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, BooksListPrefix+"test", []byte("v")))

	v, ok, err := c.Get(ctx, BooksListPrefix+"test")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	require.NoError(t, c.DeletePrefix(ctx, BooksListPrefix))
	_, ok, err = c.Get(ctx, BooksListPrefix+"test")
	require.NoError(t, err)
	assert.False(t, ok)
}
