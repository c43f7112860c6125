package notifications

import (
	"context"
	"time"
)

type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify_email"
	PurposePasswordReset Purpose = "password_reset"
)

// CodeMessage carries a one-time code to a user. Code is the plain value;
// it is never persisted.
type CodeMessage struct {
	Email     string
	Name      string
	Purpose   Purpose
	Code      string
	ExpiresAt time.Time
}

type Notifier interface {
	SendCode(ctx context.Context, msg CodeMessage) error
}
