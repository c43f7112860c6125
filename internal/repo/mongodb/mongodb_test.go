package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/domain/user"
)

func strPtr(s string) *string { return &s }

func TestListFilter_EscapesSearch(t *testing.T) {
	f := listFilter(book.ListBooksFilter{
		Search: strPtr("c++ (2nd)"),
		Genre:  strPtr(" Fantasy "),
	})

	require.Len(t, f, 2)
	assert.Equal(t, "title", f[0].Key)
	assert.Equal(t, bson.Regex{Pattern: `c\+\+ \(2nd\)`, Options: "i"}, f[0].Value)
	assert.Equal(t, bson.E{Key: "genres", Value: "fantasy"}, f[1])
}

func TestSummaryDoc_KeepsBlockShape(t *testing.T) {
	s := summary.New("book-1", "Notes", summary.Blocks(summary.BlockDocument{
		Blocks: []summary.Block{{
			Type: "list",
			Data: map[string]any{"items": []any{"one", "two"}},
		}},
	}), summary.Projection{PlainText: "one two", ReadingTime: 1})

	doc, err := toSummaryDoc(s)
	require.NoError(t, err)

	back, err := doc.toSummary()
	require.NoError(t, err)
	assert.Equal(t, summary.FormatBlocks, back.Format)
	require.NotNil(t, back.Content.Blocks)
	assert.Equal(t, []any{"one", "two"}, back.Content.Blocks.Blocks[0].Data["items"])
}

// Runs against a replica set when MONGO_TEST_URI is set.
func TestMongo_CascadeAndTokens(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Connect(ctx, uri, "booknotes_test_"+time.Now().Format("150405"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.db.Drop(context.Background())
		_ = db.Close(context.Background())
	})
	require.NoError(t, db.EnsureIndexes(ctx))

	users := db.Users()
	u := user.New("Ada", "ada@example.com", "hash")
	require.NoError(t, users.Create(ctx, u))
	assert.ErrorIs(t, users.Create(ctx, user.New("Ada", "ADA@example.com", "hash")), user.ErrEmailTaken)

	require.NoError(t, users.AddRefreshToken(ctx, u.ID, "d1"))
	ok, err := users.ReplaceRefreshToken(ctx, u.ID, "d1", "d2")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = users.RemoveRefreshToken(ctx, u.ID, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	books := db.Books()
	b := book.NewFromCreateRequest(book.CreateBookRequest{Title: "Dune", Author: "Herbert", ISBN: "123"})
	require.NoError(t, books.Create(ctx, b))
	dup := book.NewFromCreateRequest(book.CreateBookRequest{Title: "Dune 2", Author: "Herbert", ISBN: "123"})
	assert.ErrorIs(t, books.Create(ctx, dup), book.ErrISBNTaken)

	sums := db.Summaries()
	require.NoError(t, sums.Create(ctx, summary.New(b.ID, "", summary.Markdown("# hi"), summary.Projection{PlainText: "hi", ReadingTime: 1})))

	require.NoError(t, books.DeleteWithSummary(ctx, b.ID))
	_, err = sums.GetByBook(ctx, b.ID)
	assert.ErrorIs(t, err, summary.ErrNotFound)
	assert.ErrorIs(t, books.DeleteWithSummary(ctx, b.ID), book.ErrNotFound)
}
