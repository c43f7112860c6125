// Package postgres implements the repo contracts on PostgreSQL through pgx.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
)

const driver = "postgres"

func New(pool *pgxpool.Pool, prom *observability.Prom) (*UsersRepo, *BooksRepo, *SummariesRepo) {
	return NewUsersRepo(pool, prom), NewBooksRepo(pool, prom), NewSummariesRepo(pool, prom)
}

var (
	_ repo.UserStore    = (*UsersRepo)(nil)
	_ repo.BookStore    = (*BooksRepo)(nil)
	_ repo.SummaryStore = (*SummariesRepo)(nil)
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring pattern for ILIKE with wildcards escaped.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
