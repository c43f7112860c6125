package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/http/handlers"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter(strict bool) *gin.Engine {
	r := gin.New()
	r.POST("/books", func(ctx *gin.Context) {
		var req book.CreateBookRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	r.PATCH("/books", func(ctx *gin.Context) {
		var req book.UpdateBookRequest
		bind := handlers.BindJSON
		if strict {
			bind = handlers.BindJSONStrict
		}
		if !bind(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})
	return r
}

func postBind(t *testing.T, r *gin.Engine, method, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(method, "/books", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp bindErrorResponse
	if w.Code == http.StatusBadRequest {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
		}
	}
	return w, resp
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	r := bindRouter(false)

	w, resp := postBind(t, r, http.MethodPost, `{"title":"   ","averageRating":7}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	wantRules := map[string]string{
		"title":         "notblank",
		"author":        "required",
		"averageRating": "max",
	}

	found := map[string]handlers.FieldError{}
	for _, fieldErr := range resp.Error.Details.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Error.Details.Fields)
		}
		if fieldErr.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fieldErr.Rule, rule)
		}
		if fieldErr.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	r := bindRouter(false)

	w, resp := postBind(t, r, http.MethodPost, `{"title":"Dune","author":"Frank Herbert","averageRating":"five"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Error.Details.JSON)
	}
	if resp.Error.Details.Field != "averageRating" {
		t.Fatalf("expected detail field to be averageRating, got %q", resp.Error.Details.Field)
	}
	if len(resp.Error.Details.Fields) == 0 {
		t.Fatalf("expected at least one field error in details.fields")
	}

	fieldErr := resp.Error.Details.Fields[0]
	if fieldErr.Rule != "type" {
		t.Fatalf("expected fields[0].rule=type, got %q", fieldErr.Rule)
	}
}

func TestBindJSON_SyntaxAndEmptyBody(t *testing.T) {
	r := bindRouter(false)

	w, resp := postBind(t, r, http.MethodPost, `{"title":}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got status %d", w.Code)
	}
	if resp.Error.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("expected invalid_json_syntax, got %q", resp.Error.Details.JSON)
	}

	w, resp = postBind(t, r, http.MethodPost, ``)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty body: got status %d", w.Code)
	}
	if resp.Error.Details.JSON != "empty_body" {
		t.Fatalf("expected empty_body, got %q", resp.Error.Details.JSON)
	}
}

func TestBindJSONStrict_RejectsUnknownFields(t *testing.T) {
	lenient := bindRouter(false)
	w, _ := postBind(t, lenient, http.MethodPatch, `{"title":"New","createdAt":"2020-01-01T00:00:00Z"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("lenient bind should ignore unknown keys, got %d", w.Code)
	}

	strict := bindRouter(true)
	w, resp := postBind(t, strict, http.MethodPatch, `{"title":"New","createdAt":"2020-01-01T00:00:00Z"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}
	if resp.Error.Details.JSON != "unknown_field" || resp.Error.Details.Field != "createdAt" {
		t.Fatalf("unexpected details: %+v", resp.Error.Details)
	}

	w, resp = postBind(t, strict, http.MethodPatch, `{"title":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank title: got status %d", w.Code)
	}
	if len(resp.Error.Details.Fields) != 1 || resp.Error.Details.Fields[0].Rule != "notblank" {
		t.Fatalf("expected notblank on title, got %+v", resp.Error.Details.Fields)
	}
}
