// Package memory is an in-process backend used by tests and STORE_DRIVER=memory.
package memory

import (
	"sync"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/domain/user"
)

// DB holds every collection behind a single lock so multi-collection
// operations such as cascade delete are atomic.
type DB struct {
	mu        sync.RWMutex
	users     map[string]user.User
	books     map[string]book.Book
	summaries map[string]summary.Summary // keyed by book id
}

func New() *DB {
	return &DB{
		users:     make(map[string]user.User),
		books:     make(map[string]book.Book),
		summaries: make(map[string]summary.Summary),
	}
}

func (db *DB) Users() *UsersRepo {
	return &UsersRepo{db: db}
}

func (db *DB) Books() *BooksRepo {
	return &BooksRepo{db: db}
}

func (db *DB) Summaries() *SummariesRepo {
	return &SummariesRepo{db: db}
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
