package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/observability"
)

type BooksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewBooksRepo(pool *pgxpool.Pool, prom *observability.Prom) *BooksRepo {
	return &BooksRepo{pool: pool, prom: prom}
}

const bookColumns = `id, title, author, description, cover_image, published_date, isbn, genres,
	average_rating, created_at, updated_at`

func scanBook(row pgx.Row, extra ...any) (book.Book, error) {
	var b book.Book

	dest := []any{
		&b.ID,
		&b.Title,
		&b.Author,
		&b.Description,
		&b.CoverImage,
		&b.PublishedDate,
		&b.ISBN,
		&b.Genres,
		&b.AverageRating,
		&b.CreatedAt,
		&b.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if b.Genres == nil {
		b.Genres = []string{}
	}
	return b, err
}

func (r *BooksRepo) Create(ctx context.Context, b book.Book) error {
	err := r.prom.ObserveStore(driver, "books.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO books (id, title, author, description, cover_image, published_date, isbn, genres, average_rating, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			b.ID, b.Title, b.Author, b.Description, b.CoverImage, b.PublishedDate, b.ISBN, genresOrEmpty(b.Genres),
			b.AverageRating, b.CreatedAt, b.UpdatedAt,
		)
		return err
	})

	if isUniqueViolation(err, "books_isbn_key") {
		return book.ErrISBNTaken
	}
	return err
}

func (r *BooksRepo) GetByID(ctx context.Context, id string) (book.Book, error) {
	var b book.Book

	err := r.prom.ObserveStore(driver, "books.get", func() error {
		var err error
		b, err = scanBook(r.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return book.Book{}, book.ErrNotFound
		}
		return book.Book{}, err
	}
	return b, nil
}

func (r *BooksRepo) List(ctx context.Context, f book.ListBooksFilter) ([]book.Book, int, error) {
	var conds []string
	var args []any

	argsPosition := 1

	if f.Search != nil {
		conds = append(conds, fmt.Sprintf(`title ILIKE $%d ESCAPE '\'`, argsPosition))
		args = append(args, likePattern(*f.Search))
		argsPosition++
	}

	if f.Author != nil {
		conds = append(conds, fmt.Sprintf("author = $%d", argsPosition))
		args = append(args, *f.Author)
		argsPosition++
	}

	if f.Genre != nil {
		conds = append(conds, fmt.Sprintf("$%d = ANY(genres)", argsPosition))
		args = append(args, book.NormalizeGenre(*f.Genre))
		argsPosition++
	}

	query := `SELECT ` + bookColumns + `, COUNT(*) OVER() AS total FROM books`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// newest first, id breaks ties so pages stay stable
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)
	args = append(args, f.Limit, f.Offset)

	output := make([]book.Book, 0, f.Limit)
	total := 0

	err := r.prom.ObserveStore(driver, "books.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			b, err := scanBook(rows, &t)
			if err != nil {
				return err
			}
			total = t
			output = append(output, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	// OFFSET past the end yields no rows and therefore no window count
	if len(output) == 0 && f.Offset > 0 {
		err = r.prom.ObserveStore(driver, "books.count", func() error {
			countQuery := `SELECT COUNT(*) FROM books`
			if len(conds) > 0 {
				countQuery += " WHERE " + strings.Join(conds, " AND ")
			}
			return r.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total)
		})
		if err != nil {
			return nil, 0, err
		}
	}

	return output, total, nil
}

func (r *BooksRepo) ISBNInUse(ctx context.Context, isbn, excludeID string) (bool, error) {
	if isbn == "" {
		return false, nil
	}

	var exists bool
	err := r.prom.ObserveStore(driver, "books.isbn_in_use", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1 AND id::text <> $2)`,
			isbn, excludeID,
		).Scan(&exists)
	})
	return exists, err
}

func (r *BooksRepo) Update(ctx context.Context, id string, req book.UpdateBookRequest) (book.Book, error) {
	var out book.Book

	err := r.prom.ObserveStore(driver, "books.update", func() error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			current, err := scanBook(tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return err
			}

			next := current.Apply(req)

			out, err = scanBook(tx.QueryRow(ctx, `
				UPDATE books
				SET title = $2,
					author = $3,
					description = $4,
					cover_image = $5,
					published_date = $6,
					isbn = $7,
					genres = $8,
					average_rating = $9,
					updated_at = $10
				WHERE id = $1
				RETURNING `+bookColumns,
				id, next.Title, next.Author, next.Description, next.CoverImage, next.PublishedDate, next.ISBN,
				genresOrEmpty(next.Genres), next.AverageRating, next.UpdatedAt,
			))
			return err
		})
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return book.Book{}, book.ErrNotFound
		}
		if isUniqueViolation(err, "books_isbn_key") {
			return book.Book{}, book.ErrISBNTaken
		}
		return book.Book{}, err
	}
	return out, nil
}

// DeleteWithSummary removes the summary and then the book in one
// transaction.
func (r *BooksRepo) DeleteWithSummary(ctx context.Context, id string) error {
	return r.prom.ObserveStore(driver, "books.delete", func() error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM summaries WHERE book_id = $1`, id); err != nil {
				return err
			}

			tag, err := tx.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
			if err != nil {
				return err
			}

			if tag.RowsAffected() == 0 {
				return book.ErrNotFound
			}
			return nil
		})
	})
}

func genresOrEmpty(g []string) []string {
	if g == nil {
		return []string{}
	}
	return g
}
