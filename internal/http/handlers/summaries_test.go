package handlers_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/http/handlers"
	"github.com/geocoder89/booknotes/internal/repo/memory"
)

type summaryResp struct {
	ID          string          `json:"id"`
	BookID      string          `json:"bookId"`
	Title       string          `json:"title"`
	Format      string          `json:"format"`
	Content     json.RawMessage `json:"content"`
	PlainText   string          `json:"plainText"`
	ReadingTime int             `json:"readingTime"`
}

func newCatalogRouter(format summary.Format) *gin.Engine {
	db := memory.New()
	books := handlers.NewBooksHandler(db.Books(), nil, nil, nil)
	summaries := handlers.NewSummariesHandler(db.Books(), db.Summaries(), format, nil)

	r := gin.New()
	r.POST("/book", books.CreateBook)
	r.DELETE("/book/:id", books.DeleteBook)
	r.GET("/book/:id/summary", summaries.GetSummary)
	r.POST("/book/:id/summary", summaries.CreateSummary)
	r.PATCH("/book/:id/summary", summaries.UpdateSummary)
	return r
}

func jsonString(t *testing.T, s string) string {
	t.Helper()

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestSummary_CreateGetUpdate_Markdown(t *testing.T) {
	r := newCatalogRouter(summary.FormatMarkdown)
	b := createBook(t, r, `{"title":"Dune","author":"Frank Herbert"}`)
	path := "/book/" + b.ID + "/summary"

	w := doJSON(t, r, http.MethodGet, path, "")
	wantStatus(t, w, http.StatusNotFound)

	body := `{"title":"Notes","content":` + jsonString(t, "# Arrakis\n\nThe **spice** must [flow](https://example.com).") + `}`
	w = doJSON(t, r, http.MethodPost, path, body)
	wantStatus(t, w, http.StatusCreated)

	var created summaryResp
	decode(t, w, &created)
	if created.BookID != b.ID || created.Format != "markdown" || created.ReadingTime != 1 {
		t.Fatalf("unexpected summary: %+v", created)
	}
	if strings.ContainsAny(created.PlainText, "#*[]") || !strings.Contains(created.PlainText, "spice must flow") {
		t.Fatalf("plain text still has markup: %q", created.PlainText)
	}

	w = doJSON(t, r, http.MethodPost, path, body)
	wantStatus(t, w, http.StatusConflict)
	if code := errorCode(t, w); code != "summary_exists" {
		t.Fatalf("expected summary_exists, got %q", code)
	}

	// title-only patch leaves the derived fields alone
	w = doJSON(t, r, http.MethodPatch, path, `{"title":"Better notes"}`)
	wantStatus(t, w, http.StatusOK)
	var renamed summaryResp
	decode(t, w, &renamed)
	if renamed.Title != "Better notes" || renamed.PlainText != created.PlainText || renamed.ID != created.ID {
		t.Fatalf("unexpected rename result: %+v", renamed)
	}

	// 401 words is three minutes of reading
	long := strings.TrimSpace(strings.Repeat("word ", 401))
	w = doJSON(t, r, http.MethodPatch, path, `{"content":`+jsonString(t, long)+`}`)
	wantStatus(t, w, http.StatusOK)
	var rewritten summaryResp
	decode(t, w, &rewritten)
	if rewritten.ReadingTime != 3 || rewritten.Title != "Better notes" {
		t.Fatalf("unexpected rewrite result: %+v", rewritten)
	}

	w = doJSON(t, r, http.MethodGet, path, "")
	wantStatus(t, w, http.StatusOK)
	var fetched summaryResp
	decode(t, w, &fetched)
	if fetched.ReadingTime != 3 {
		t.Fatalf("stored projection not updated: %+v", fetched)
	}
}

func TestSummary_RejectsBadInput(t *testing.T) {
	r := newCatalogRouter(summary.FormatMarkdown)
	b := createBook(t, r, `{"title":"Dune","author":"Frank Herbert"}`)
	path := "/book/" + b.ID + "/summary"

	cases := map[string]string{
		"blocks content in markdown deployment": `{"title":"Notes","content":{"blocks":[{"type":"paragraph","data":{"text":"hi"}}]}}`,
		"blank markdown":                        `{"title":"Notes","content":"   "}`,
		"missing title":                         `{"content":"hello"}`,
		"missing content":                       `{"title":"Notes"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, path, body)
			wantStatus(t, w, http.StatusBadRequest)
		})
	}

	w := doJSON(t, r, http.MethodPost, "/book/"+uuid.NewString()+"/summary", `{"title":"Notes","content":"hello"}`)
	wantStatus(t, w, http.StatusNotFound)

	w = doJSON(t, r, http.MethodPost, "/book/nope/summary", `{"title":"Notes","content":"hello"}`)
	wantStatus(t, w, http.StatusBadRequest)

	w = doJSON(t, r, http.MethodPatch, path, `{}`)
	wantStatus(t, w, http.StatusBadRequest)

	w = doJSON(t, r, http.MethodPatch, path, `{"readingTime":9}`)
	wantStatus(t, w, http.StatusBadRequest)

	w = doJSON(t, r, http.MethodPatch, path, `{"title":"Notes"}`)
	wantStatus(t, w, http.StatusNotFound)
}

func TestSummary_Blocks(t *testing.T) {
	r := newCatalogRouter(summary.FormatBlocks)
	b := createBook(t, r, `{"title":"Dune","author":"Frank Herbert"}`)
	path := "/book/" + b.ID + "/summary"

	w := doJSON(t, r, http.MethodPost, path, `{"title":"Notes","content":"# markdown"}`)
	wantStatus(t, w, http.StatusBadRequest)

	body := `{"title":"Notes","content":{"blocks":[
		{"type":"header","data":{"text":"Arrakis","level":2}},
		{"type":"paragraph","data":{"text":"The <b>spice</b> must flow."}}
	]}}`
	w = doJSON(t, r, http.MethodPost, path, body)
	wantStatus(t, w, http.StatusCreated)

	var created summaryResp
	decode(t, w, &created)
	if created.Format != "blocks" || created.PlainText != "Arrakis The spice must flow." {
		t.Fatalf("unexpected blocks summary: %+v", created)
	}

	var doc summary.BlockDocument
	if err := json.Unmarshal(created.Content, &doc); err != nil || len(doc.Blocks) != 2 {
		t.Fatalf("content not echoed as a block document: %s", created.Content)
	}
}

func TestDeleteBook_CascadesToSummary(t *testing.T) {
	r := newCatalogRouter(summary.FormatMarkdown)
	b := createBook(t, r, `{"title":"Dune","author":"Frank Herbert"}`)
	path := "/book/" + b.ID + "/summary"

	w := doJSON(t, r, http.MethodPost, path, `{"title":"Notes","content":"hello"}`)
	wantStatus(t, w, http.StatusCreated)

	w = doJSON(t, r, http.MethodDelete, "/book/"+b.ID, "")
	wantStatus(t, w, http.StatusOK)

	w = doJSON(t, r, http.MethodGet, path, "")
	wantStatus(t, w, http.StatusNotFound)
}
