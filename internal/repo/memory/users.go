package memory

import (
	"context"
	"time"

	"github.com/geocoder89/booknotes/internal/domain/user"
)

type UsersRepo struct {
	db *DB
}

func cloneUser(u user.User) user.User {
	u.RefreshTokens = cloneStrings(u.RefreshTokens)
	return u
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.users {
		if existing.Email == u.Email {
			return user.ErrEmailTaken
		}
	}

	r.db.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, u := range r.db.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return cloneUser(u), nil
}

// mutate runs fn on the stored user under the write lock.
func (r *UsersRepo) mutate(id string, fn func(u *user.User)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return user.ErrNotFound
	}

	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	r.db.users[id] = u

	return nil
}

func (r *UsersRepo) AddRefreshToken(ctx context.Context, userID, digest string) error {
	return r.mutate(userID, func(u *user.User) {
		u.RefreshTokens = append(cloneStrings(u.RefreshTokens), digest)
	})
}

func (r *UsersRepo) RemoveRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	removed := false

	err := r.mutate(userID, func(u *user.User) {
		kept := make([]string, 0, len(u.RefreshTokens))
		for _, t := range u.RefreshTokens {
			if t == digest {
				removed = true
				continue
			}
			kept = append(kept, t)
		}
		u.RefreshTokens = kept
	})

	return removed, err
}

func (r *UsersRepo) ReplaceRefreshToken(ctx context.Context, userID, oldDigest, newDigest string) (bool, error) {
	replaced := false

	err := r.mutate(userID, func(u *user.User) {
		if !u.HasRefreshToken(oldDigest) {
			return
		}
		kept := make([]string, 0, len(u.RefreshTokens))
		for _, t := range u.RefreshTokens {
			if t != oldDigest {
				kept = append(kept, t)
			}
		}
		u.RefreshTokens = append(kept, newDigest)
		replaced = true
	})

	return replaced, err
}

func (r *UsersRepo) SetCode(ctx context.Context, userID string, purpose user.CodePurpose, digest string, expiresAt time.Time) error {
	return r.mutate(userID, func(u *user.User) {
		exp := expiresAt
		if purpose == user.CodePasswordReset {
			u.ResetCodeHash = digest
			u.ResetExpiresAt = &exp
			u.ResetAttempts = 0
			return
		}
		u.VerificationCodeHash = digest
		u.VerificationExpiresAt = &exp
		u.VerificationAttempts = 0
	})
}

func (r *UsersRepo) RecordCodeFailure(ctx context.Context, userID string, purpose user.CodePurpose, maxAttempts int) error {
	return r.mutate(userID, func(u *user.User) {
		if purpose == user.CodePasswordReset {
			u.ResetAttempts++
			if u.ResetAttempts >= maxAttempts {
				u.ResetCodeHash = ""
				u.ResetExpiresAt = nil
			}
			return
		}
		u.VerificationAttempts++
		if u.VerificationAttempts >= maxAttempts {
			u.VerificationCodeHash = ""
			u.VerificationExpiresAt = nil
		}
	})
}

func (r *UsersRepo) MarkVerified(ctx context.Context, userID string) error {
	return r.mutate(userID, func(u *user.User) {
		u.IsVerified = true
		u.VerificationCodeHash = ""
		u.VerificationExpiresAt = nil
		u.VerificationAttempts = 0
	})
}

func (r *UsersRepo) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	return r.mutate(userID, func(u *user.User) {
		u.PasswordHash = passwordHash
		u.ResetCodeHash = ""
		u.ResetExpiresAt = nil
		u.ResetAttempts = 0
		u.RefreshTokens = []string{}
	})
}
