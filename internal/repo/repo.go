// Package repo declares the persistence contracts shared by the postgres,
// mongo and memory backends. Every backend returns the sentinel errors of the
// domain packages so handlers never see driver errors for expected outcomes.
package repo

import (
	"context"
	"time"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/domain/user"
)

type UserStore interface {
	// Create fails with user.ErrEmailTaken when the normalized email exists.
	Create(ctx context.Context, u user.User) error
	// GetByEmail includes the password hash and hidden code fields.
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)

	AddRefreshToken(ctx context.Context, userID, digest string) error
	// RemoveRefreshToken reports whether the digest was present.
	RemoveRefreshToken(ctx context.Context, userID, digest string) (bool, error)
	// ReplaceRefreshToken swaps oldDigest for newDigest only if oldDigest is
	// still active, and reports whether the swap happened.
	ReplaceRefreshToken(ctx context.Context, userID, oldDigest, newDigest string) (bool, error)

	// SetCode stores a fresh code and resets its failed-attempt count.
	SetCode(ctx context.Context, userID string, purpose user.CodePurpose, digest string, expiresAt time.Time) error
	// RecordCodeFailure counts a wrong guess against the purpose's code and
	// clears the code once maxAttempts guesses have failed.
	RecordCodeFailure(ctx context.Context, userID string, purpose user.CodePurpose, maxAttempts int) error
	MarkVerified(ctx context.Context, userID string) error
	// ResetPassword stores the new hash, clears the reset code and revokes
	// every refresh token.
	ResetPassword(ctx context.Context, userID, passwordHash string) error
}

type BookStore interface {
	// Create fails with book.ErrISBNTaken when a non-empty ISBN exists.
	Create(ctx context.Context, b book.Book) error
	GetByID(ctx context.Context, id string) (book.Book, error)
	List(ctx context.Context, filter book.ListBooksFilter) ([]book.Book, int, error)
	// ISBNInUse reports whether another book (excluding excludeID) holds isbn.
	ISBNInUse(ctx context.Context, isbn, excludeID string) (bool, error)
	Update(ctx context.Context, id string, req book.UpdateBookRequest) (book.Book, error)
	// DeleteWithSummary removes the book and its summary atomically.
	DeleteWithSummary(ctx context.Context, id string) error
}

type SummaryStore interface {
	// Create fails with summary.ErrExists when the book already has one. The
	// postgres and memory backends also return book.ErrNotFound for a missing
	// book.
	Create(ctx context.Context, s summary.Summary) error
	GetByBook(ctx context.Context, bookID string) (summary.Summary, error)
	Update(ctx context.Context, bookID string, patch summary.Patch) (summary.Summary, error)
}

// Store is the handle opened at process start and closed at shutdown.
type Store struct {
	Driver    string
	Users     UserStore
	Books     BookStore
	Summaries SummaryStore

	Ping  func(ctx context.Context) error
	Close func(ctx context.Context) error
}
