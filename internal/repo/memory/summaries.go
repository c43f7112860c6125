package memory

import (
	"context"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
)

type SummariesRepo struct {
	db *DB
}

func (r *SummariesRepo) Create(ctx context.Context, s summary.Summary) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.books[s.BookID]; !ok {
		return book.ErrNotFound
	}
	if _, ok := r.db.summaries[s.BookID]; ok {
		return summary.ErrExists
	}

	r.db.summaries[s.BookID] = s
	return nil
}

func (r *SummariesRepo) GetByBook(ctx context.Context, bookID string) (summary.Summary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	s, ok := r.db.summaries[bookID]
	if !ok {
		return summary.Summary{}, summary.ErrNotFound
	}
	return s, nil
}

func (r *SummariesRepo) Update(ctx context.Context, bookID string, patch summary.Patch) (summary.Summary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.summaries[bookID]
	if !ok {
		return summary.Summary{}, summary.ErrNotFound
	}

	s = s.Apply(patch)
	r.db.summaries[bookID] = s

	return s, nil
}
