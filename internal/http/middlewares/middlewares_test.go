package middlewares

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/geocoder89/booknotes/internal/auth"
)

type fakeVerifier struct {
	claims *auth.Claims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(string) (*auth.Claims, error) {
	return f.claims, f.err
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		header   string
		verifier fakeVerifier
		want     int
	}{
		{"missing header", "", fakeVerifier{}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", fakeVerifier{}, http.StatusUnauthorized},
		{"empty token", "Bearer  ", fakeVerifier{}, http.StatusUnauthorized},
		{"invalid token", "Bearer abc", fakeVerifier{err: errors.New("bad")}, http.StatusUnauthorized},
		{"ok", "Bearer abc", fakeVerifier{claims: &auth.Claims{UserID: "u1", Email: "a@b.c"}}, http.StatusOK},
		{"lowercase scheme", "bearer abc", fakeVerifier{claims: &auth.Claims{UserID: "u1"}}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			r.GET("/me", NewAuthMiddleware(tc.verifier).RequireAuth(), func(c *gin.Context) {
				id, _ := UserIDFromContext(c)
				c.String(http.StatusOK, id)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Fatalf("got %d want %d body=%s", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusOK && w.Body.String() != "u1" {
				t.Fatalf("user id not stashed, got %q", w.Body.String())
			}
			if tc.want == http.StatusUnauthorized {
				var resp struct {
					Error struct {
						Code      string `json:"code"`
						RequestID string `json:"requestId"`
					} `json:"error"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("bad json: %v", err)
				}
				if resp.Error.Code != "unauthorized" || resp.Error.RequestID == "" {
					t.Fatalf("unexpected envelope: %s", w.Body.String())
				}
			}
		})
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	expired := fakeVerifier{err: fmt.Errorf("%w: %w", auth.ErrInvalidToken, jwt.ErrTokenExpired)}

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(expired).RequireAuth(), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"token_expired"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/auth/login", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := do()
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
		if got, want := w.Header().Get("X-RateLimit-Remaining"), strconv.Itoa(1-i); got != want {
			t.Fatalf("request %d: remaining %q want %q", i, got, want)
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}

	now = now.Add(61 * time.Second)
	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("after window: got %d", w.Code)
	}
}

func TestJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/book", JSONBody(16), func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.DELETE("/book", JSONBody(16), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"form body", http.MethodPost, "application/x-www-form-urlencoded", "title=x", http.StatusUnsupportedMediaType},
		{"missing content type", http.MethodPost, "", "{}", http.StatusUnsupportedMediaType},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", "{}", http.StatusCreated},
		{"declared length over cap", http.MethodPost, "application/json", `{"title":"far too long"}`, http.StatusBadRequest},
		{"delete without body", http.MethodDelete, "", "", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/book", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("got %d want %d", w.Code, tc.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(origins ...string) *gin.Engine {
		r := gin.New()
		r.Use(CORSMiddleware(origins))
		r.GET("/book", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.PATCH("/book/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	r := newRouter("http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "/book/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: got %d want 204", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Fatalf("PATCH not allowed: %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials for a listed origin")
	}

	req = httptest.NewRequest(http.MethodGet, "/book", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin allowed: %q", got)
	}

	r = newRouter("*")
	req = httptest.NewRequest(http.MethodGet, "/book", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" || w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("wildcard: %v", w.Header())
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, hsts := range []bool{false, true} {
		r := gin.New()
		r.Use(SecurityHeaders(hsts))
		r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if w.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("missing nosniff")
		}
		if got := w.Header().Get("Strict-Transport-Security") != ""; got != hsts {
			t.Fatalf("hsts=%v but header present=%v", hsts, got)
		}
	}
}
