package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "prod")

	ctx := WithRequestID(context.Background(), "req-123")
	log.InfoContext(ctx, "hello", "k", "v")
	log.DebugContext(ctx, "dropped at info level")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))

	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-123", rec["request_id"])
	assert.Equal(t, "v", rec["k"])
	assert.Equal(t, "booknotes", rec["service"])
	assert.Equal(t, "prod", rec["env"])
}

func TestClassifyStoreErr(t *testing.T) {
	assert.Equal(t, "unique_violation", ClassifyStoreErr(&pgconn.PgError{Code: "23505"}))
	assert.Equal(t, "pg_42P01", ClassifyStoreErr(&pgconn.PgError{Code: "42P01"}))
	assert.Equal(t, "timeout", ClassifyStoreErr(context.DeadlineExceeded))
	assert.Equal(t, "connection", ClassifyStoreErr(errors.New("connection refused")))
	assert.Equal(t, "unknown", ClassifyStoreErr(errors.New("boom")))
}

func TestObserveStore(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	require.NoError(t, p.ObserveStore("postgres", "books.get", func() error { return nil }))
	err := p.ObserveStore("postgres", "books.create", func() error { return &pgconn.PgError{Code: "23505"} })
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.StoreErrorsTotal.WithLabelValues("postgres", "books.create", "unique_violation")))

	var nilProm *Prom
	assert.NoError(t, nilProm.ObserveStore("memory", "x", func() error { return nil }))
	nilProm.AuthOutcome("login", "ok")
}
