package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocoder89/booknotes/internal/domain/user"
	"github.com/geocoder89/booknotes/internal/observability"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

const userColumns = `id, name, email, profile_pic, password_hash, is_verified,
	verification_code_hash, verification_expires_at, reset_code_hash, reset_expires_at,
	verification_attempts, reset_attempts, refresh_tokens, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.ProfilePic,
		&u.PasswordHash,
		&u.IsVerified,
		&u.VerificationCodeHash,
		&u.VerificationExpiresAt,
		&u.ResetCodeHash,
		&u.ResetExpiresAt,
		&u.VerificationAttempts,
		&u.ResetAttempts,
		&u.RefreshTokens,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if u.RefreshTokens == nil {
		u.RefreshTokens = []string{}
	}
	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	tokens := u.RefreshTokens
	if tokens == nil {
		tokens = []string{}
	}

	err := r.prom.ObserveStore(driver, "users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, profile_pic, password_hash, is_verified, refresh_tokens, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			u.ID, u.Name, u.Email, u.ProfilePic, u.PasswordHash, u.IsVerified, tokens, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if isUniqueViolation(err, "users_email_key") {
		return user.ErrEmailTaken
	}
	return err
}

func (r *UsersRepo) getBy(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.prom.ObserveStore(driver, op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_email", "email = $1", user.NormalizeEmail(email))
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getBy(ctx, "users.get_by_id", "id = $1", id)
}

// exec runs an UPDATE against a single user and maps a missing row to
// user.ErrNotFound.
func (r *UsersRepo) exec(ctx context.Context, op, query string, args ...any) error {
	return r.prom.ObserveStore(driver, op, func() error {
		tag, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return user.ErrNotFound
		}
		return nil
	})
}

func (r *UsersRepo) AddRefreshToken(ctx context.Context, userID, digest string) error {
	return r.exec(ctx, "users.add_refresh_token", `
		UPDATE users
		SET refresh_tokens = array_append(refresh_tokens, $2::text), updated_at = NOW()
		WHERE id = $1
	`, userID, digest)
}

func (r *UsersRepo) RemoveRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	return r.swapToken(ctx, "users.remove_refresh_token", `
		WITH prev AS (
			SELECT refresh_tokens FROM users WHERE id = $1 FOR UPDATE
		)
		UPDATE users u
		SET refresh_tokens = array_remove(u.refresh_tokens, $2::text),
			updated_at = CASE WHEN $2::text = ANY(prev.refresh_tokens) THEN NOW() ELSE u.updated_at END
		FROM prev
		WHERE u.id = $1
		RETURNING $2::text = ANY(prev.refresh_tokens)
	`, userID, digest)
}

func (r *UsersRepo) ReplaceRefreshToken(ctx context.Context, userID, oldDigest, newDigest string) (bool, error) {
	return r.swapToken(ctx, "users.replace_refresh_token", `
		WITH prev AS (
			SELECT refresh_tokens FROM users WHERE id = $1 FOR UPDATE
		)
		UPDATE users u
		SET refresh_tokens = CASE
				WHEN $2::text = ANY(prev.refresh_tokens)
				THEN array_append(array_remove(u.refresh_tokens, $2::text), $3::text)
				ELSE u.refresh_tokens
			END,
			updated_at = NOW()
		FROM prev
		WHERE u.id = $1
		RETURNING $2::text = ANY(prev.refresh_tokens)
	`, userID, oldDigest, newDigest)
}

// swapToken runs a token-list UPDATE whose CTE locks the row and keeps the
// previous list, so the statement reports whether the digest was active.
func (r *UsersRepo) swapToken(ctx context.Context, op, query string, args ...any) (bool, error) {
	var hit bool

	err := r.prom.ObserveStore(driver, op, func() error {
		return r.pool.QueryRow(ctx, query, args...).Scan(&hit)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, user.ErrNotFound
		}
		return false, err
	}
	return hit, nil
}

func (r *UsersRepo) SetCode(ctx context.Context, userID string, purpose user.CodePurpose, digest string, expiresAt time.Time) error {
	query := `UPDATE users SET verification_code_hash = $2, verification_expires_at = $3, verification_attempts = 0, updated_at = NOW() WHERE id = $1`
	if purpose == user.CodePasswordReset {
		query = `UPDATE users SET reset_code_hash = $2, reset_expires_at = $3, reset_attempts = 0, updated_at = NOW() WHERE id = $1`
	}

	return r.exec(ctx, "users.set_code", query, userID, digest, expiresAt)
}

func (r *UsersRepo) RecordCodeFailure(ctx context.Context, userID string, purpose user.CodePurpose, maxAttempts int) error {
	// right-hand sides see the row as it was before the update
	query := `
		UPDATE users
		SET verification_attempts = verification_attempts + 1,
			verification_code_hash = CASE WHEN verification_attempts + 1 >= $2 THEN '' ELSE verification_code_hash END,
			verification_expires_at = CASE WHEN verification_attempts + 1 >= $2 THEN NULL ELSE verification_expires_at END,
			updated_at = NOW()
		WHERE id = $1`
	if purpose == user.CodePasswordReset {
		query = `
		UPDATE users
		SET reset_attempts = reset_attempts + 1,
			reset_code_hash = CASE WHEN reset_attempts + 1 >= $2 THEN '' ELSE reset_code_hash END,
			reset_expires_at = CASE WHEN reset_attempts + 1 >= $2 THEN NULL ELSE reset_expires_at END,
			updated_at = NOW()
		WHERE id = $1`
	}

	return r.exec(ctx, "users.record_code_failure", query, userID, maxAttempts)
}

func (r *UsersRepo) MarkVerified(ctx context.Context, userID string) error {
	return r.exec(ctx, "users.mark_verified", `
		UPDATE users
		SET is_verified = TRUE, verification_code_hash = '', verification_expires_at = NULL,
			verification_attempts = 0, updated_at = NOW()
		WHERE id = $1
	`, userID)
}

func (r *UsersRepo) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	return r.exec(ctx, "users.reset_password", `
		UPDATE users
		SET password_hash = $2, reset_code_hash = '', reset_expires_at = NULL, reset_attempts = 0,
			refresh_tokens = '{}', updated_at = NOW()
		WHERE id = $1
	`, userID, passwordHash)
}
