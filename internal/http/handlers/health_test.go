package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/http/handlers"
)

func TestReadyz(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	tests := []struct {
		name   string
		checks map[string]handlers.Pinger
		want   int
	}{
		{"all up", map[string]handlers.Pinger{"store": up, "cache": up}, http.StatusOK},
		{"cache down", map[string]handlers.Pinger{"store": up, "cache": down}, http.StatusServiceUnavailable},
		{"no checks", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(nil, tt.checks)

			r := gin.New()
			r.GET("/healthz", h.Healthz)
			r.GET("/readyz", h.Readyz)

			w := doJSON(t, r, http.MethodGet, "/healthz", "")
			wantStatus(t, w, http.StatusOK)

			w = doJSON(t, r, http.MethodGet, "/readyz", "")
			wantStatus(t, w, tt.want)

			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			decode(t, w, &resp)

			for name := range tt.checks {
				if resp.Checks[name] == "" {
					t.Fatalf("missing check %q in %+v", name, resp.Checks)
				}
			}
			if tt.want != http.StatusOK && resp.Checks["cache"] != "down" {
				t.Fatalf("expected cache down, got %+v", resp.Checks)
			}
		})
	}
}
