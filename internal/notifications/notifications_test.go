package notifications

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) SendCode(ctx context.Context, msg CodeMessage) error {
	s.calls++
	return s.err
}

func TestLogNotifier_WritesCode(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.SendCode(context.Background(), CodeMessage{
		Email:     "ada@example.com",
		Purpose:   PurposeVerifyEmail,
		Code:      "123456",
		ExpiresAt: time.Now().Add(15 * time.Minute),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"code":"123456"`)
	assert.Contains(t, buf.String(), `"purpose":"verify_email"`)
}

func TestLogNotifier_Fail(t *testing.T) {
	n := NewLogNotifier(nil)
	n.Fail = true
	assert.ErrorIs(t, n.SendCode(context.Background(), CodeMessage{}), ErrProviderDown)
}

func TestProtectedNotifier_OpensAndRecovers(t *testing.T) {
	inner := &stubNotifier{err: errors.New("down")}
	p := NewProtectedNotifier(inner, ProtectedNotifierConfig{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	assert.Error(t, p.SendCode(ctx, CodeMessage{}))
	assert.Error(t, p.SendCode(ctx, CodeMessage{}))

	// open: inner is not called
	assert.ErrorIs(t, p.SendCode(ctx, CodeMessage{}), ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)

	now = now.Add(2 * time.Minute)
	inner.err = nil
	require.NoError(t, p.SendCode(ctx, CodeMessage{}))
	require.NoError(t, p.SendCode(ctx, CodeMessage{}))
	assert.Equal(t, 4, inner.calls)
}
