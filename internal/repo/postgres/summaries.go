package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/observability"
)

type SummariesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSummariesRepo(pool *pgxpool.Pool, prom *observability.Prom) *SummariesRepo {
	return &SummariesRepo{pool: pool, prom: prom}
}

const summaryColumns = `id, book_id, title, format, content, plain_text, reading_time, created_at, updated_at`

func scanSummary(row pgx.Row) (summary.Summary, error) {
	var (
		s      summary.Summary
		format string
		raw    []byte
	)

	err := row.Scan(&s.ID, &s.BookID, &s.Title, &format, &raw, &s.PlainText, &s.ReadingTime, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return summary.Summary{}, err
	}

	s.Format = summary.Format(format)
	s.Content, err = summary.ParseContent(s.Format, raw)
	if err != nil {
		return summary.Summary{}, err
	}
	return s, nil
}

func (r *SummariesRepo) Create(ctx context.Context, s summary.Summary) error {
	content, err := json.Marshal(s.Content)
	if err != nil {
		return err
	}

	err = r.prom.ObserveStore(driver, "summaries.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO summaries (id, book_id, title, format, content, plain_text, reading_time, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			s.ID, s.BookID, s.Title, string(s.Format), content, s.PlainText, s.ReadingTime, s.CreatedAt, s.UpdatedAt,
		)
		return err
	})

	switch {
	case isUniqueViolation(err, "summaries_book_id_key"):
		return summary.ErrExists
	case isForeignKeyViolation(err):
		return book.ErrNotFound
	}
	return err
}

func (r *SummariesRepo) GetByBook(ctx context.Context, bookID string) (summary.Summary, error) {
	var s summary.Summary

	err := r.prom.ObserveStore(driver, "summaries.get", func() error {
		var err error
		s, err = scanSummary(r.pool.QueryRow(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE book_id = $1`, bookID))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return summary.Summary{}, summary.ErrNotFound
		}
		return summary.Summary{}, err
	}
	return s, nil
}

func (r *SummariesRepo) Update(ctx context.Context, bookID string, patch summary.Patch) (summary.Summary, error) {
	var out summary.Summary

	err := r.prom.ObserveStore(driver, "summaries.update", func() error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			current, err := scanSummary(tx.QueryRow(ctx,
				`SELECT `+summaryColumns+` FROM summaries WHERE book_id = $1 FOR UPDATE`, bookID))
			if err != nil {
				return err
			}

			next := current.Apply(patch)
			content, err := json.Marshal(next.Content)
			if err != nil {
				return err
			}

			out, err = scanSummary(tx.QueryRow(ctx, `
				UPDATE summaries
				SET title = $2, format = $3, content = $4, plain_text = $5, reading_time = $6, updated_at = $7
				WHERE book_id = $1
				RETURNING `+summaryColumns,
				bookID, next.Title, string(next.Format), content, next.PlainText, next.ReadingTime, next.UpdatedAt,
			))
			return err
		})
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return summary.Summary{}, summary.ErrNotFound
		}
		return summary.Summary{}, err
	}
	return out, nil
}
