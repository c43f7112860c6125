package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/geocoder89/booknotes/internal/domain/book"
)

type BooksRepo struct {
	db *DB
}

func cloneBook(b book.Book) book.Book {
	b.Genres = cloneStrings(b.Genres)
	return b
}

// isbnTaken must be called with the lock held.
func (r *BooksRepo) isbnTaken(isbn, excludeID string) bool {
	if isbn == "" {
		return false
	}
	for id, b := range r.db.books {
		if id != excludeID && b.ISBN == isbn {
			return true
		}
	}
	return false
}

func (r *BooksRepo) Create(ctx context.Context, b book.Book) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if r.isbnTaken(b.ISBN, "") {
		return book.ErrISBNTaken
	}

	r.db.books[b.ID] = cloneBook(b)
	return nil
}

func (r *BooksRepo) GetByID(ctx context.Context, id string) (book.Book, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	b, ok := r.db.books[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}
	return cloneBook(b), nil
}

func matches(b book.Book, f book.ListBooksFilter) bool {
	if f.Search != nil && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(*f.Search)) {
		return false
	}
	if f.Author != nil && b.Author != *f.Author {
		return false
	}
	if f.Genre != nil {
		want := book.NormalizeGenre(*f.Genre)
		found := false
		for _, g := range b.Genres {
			if g == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (r *BooksRepo) List(ctx context.Context, f book.ListBooksFilter) ([]book.Book, int, error) {
	r.db.mu.RLock()
	all := make([]book.Book, 0, len(r.db.books))
	for _, b := range r.db.books {
		if matches(b, f) {
			all = append(all, cloneBook(b))
		}
	}
	r.db.mu.RUnlock()

	// newest first, id as tie-breaker for stable pages
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if f.Offset >= total {
		return []book.Book{}, total, nil
	}

	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}

	return all[f.Offset:end], total, nil
}

func (r *BooksRepo) ISBNInUse(ctx context.Context, isbn, excludeID string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	return r.isbnTaken(isbn, excludeID), nil
}

func (r *BooksRepo) Update(ctx context.Context, id string, req book.UpdateBookRequest) (book.Book, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	b, ok := r.db.books[id]
	if !ok {
		return book.Book{}, book.ErrNotFound
	}

	updated := b.Apply(req)
	if r.isbnTaken(updated.ISBN, id) {
		return book.Book{}, book.ErrISBNTaken
	}

	r.db.books[id] = cloneBook(updated)
	return cloneBook(updated), nil
}

func (r *BooksRepo) DeleteWithSummary(ctx context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.books[id]; !ok {
		return book.ErrNotFound
	}

	delete(r.db.summaries, id)
	delete(r.db.books, id)

	return nil
}
