package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
)

type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profilePic"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// never expose credentials in JSON
	PasswordHash          string     `json:"-"`
	VerificationCodeHash  string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetCodeHash         string     `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
	VerificationAttempts  int        `json:"-"`
	ResetAttempts         int        `json:"-"`
	RefreshTokens         []string   `json:"-"`
}

// Summary is the outward view returned by the auth endpoints.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, IsVerified: u.IsVerified}
}

// HasRefreshToken reports whether digest is in the active list.
func (u User) HasRefreshToken(digest string) bool {
	for _, t := range u.RefreshTokens {
		if t == digest {
			return true
		}
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func New(name, email, passwordHash string) User {
	now := time.Now().UTC()

	return User{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(name),
		Email:         NormalizeEmail(email),
		PasswordHash:  passwordHash,
		RefreshTokens: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CodePurpose selects which one-time code slot a code is stored in.
type CodePurpose string

const (
	CodeVerification  CodePurpose = "verification"
	CodePasswordReset CodePurpose = "password_reset"
)

// Code returns the stored digest and expiry for purpose.
func (u User) Code(purpose CodePurpose) (string, *time.Time) {
	if purpose == CodePasswordReset {
		return u.ResetCodeHash, u.ResetExpiresAt
	}
	return u.VerificationCodeHash, u.VerificationExpiresAt
}
