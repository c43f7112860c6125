package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/geocoder89/booknotes/internal/cache"
	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/repo"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type BooksHandler struct {
	books repo.BookStore
	cache cache.Cache
	prom  *observability.Prom
	log   *slog.Logger
}

// NewBooksHandler builds the catalog handler. A nil cache disables list
// caching.
func NewBooksHandler(books repo.BookStore, c cache.Cache, prom *observability.Prom, log *slog.Logger) *BooksHandler {
	if log == nil {
		log = slog.Default()
	}
	return &BooksHandler{books: books, cache: c, prom: prom, log: log}
}

type BookListResponse struct {
	Items      []book.Book `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

// parseID validates the :id path parameter, answering 400 when it is not a
// UUID.
func parseID(ctx *gin.Context) (string, bool) {
	raw := strings.TrimSpace(ctx.Param("id"))

	id, err := uuid.Parse(raw)
	if err != nil {
		RespondInvalidID(ctx)
		return "", false
	}
	return id.String(), true
}

func optionalQuery(ctx *gin.Context, key string) *string {
	v := strings.TrimSpace(ctx.Query(key))
	if v == "" {
		return nil
	}
	return &v
}

// parsePaging never rejects a request: malformed or out-of-range values fall
// back to page 1 and a limit clamped to [1, maxPageSize].
func parsePaging(ctx *gin.Context) (page, limit int) {
	page, limit = 1, defaultPageSize

	if n, err := strconv.Atoi(ctx.Query("page")); err == nil && n > 1 {
		page = n
	}

	if n, err := strconv.Atoi(ctx.Query("limit")); err == nil {
		limit = min(max(n, 1), maxPageSize)
	}

	return page, limit
}

func (h *BooksHandler) ListBooks(ctx *gin.Context) {
	page, limit := parsePaging(ctx)

	filter := book.ListBooksFilter{
		Search: optionalQuery(ctx, "search"),
		Author: optionalQuery(ctx, "author"),
		Genre:  optionalQuery(ctx, "genre"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	key := cache.BuildBooksListKey(page, limit, filter.Search, filter.Author, filter.Genre)

	if h.cache != nil {
		body, hit, err := h.cache.Get(cctx, key)
		if err != nil {
			h.log.WarnContext(cctx, "book list cache read failed", "err", err)
		}
		h.prom.CacheLookup(hit)
		if hit {
			RespondJSONBytesWithETag(ctx, http.StatusOK, body)
			return
		}
	}

	items, total, err := h.books.List(cctx, filter)
	if err != nil {
		h.log.ErrorContext(cctx, "list books failed", "err", err)
		RespondStoreError(ctx, err, "Could not list books")
		return
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	body, err := json.Marshal(BookListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	})
	if err != nil {
		h.log.ErrorContext(cctx, "encode book list failed", "err", err)
		RespondStoreError(ctx, err, "Could not list books")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(cctx, key, body); err != nil {
			h.log.WarnContext(cctx, "book list cache write failed", "err", err)
		}
	}

	RespondJSONBytesWithETag(ctx, http.StatusOK, body)
}

func (h *BooksHandler) GetBook(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	b, err := h.books.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			RespondNotFound(ctx, "Book not found")
			return
		}
		h.log.ErrorContext(cctx, "get book failed", "err", err, "book_id", id)
		RespondStoreError(ctx, err, "Could not fetch book")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, b)
}

func (h *BooksHandler) CreateBook(ctx *gin.Context) {
	var req book.CreateBookRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	b := book.NewFromCreateRequest(req)

	if !h.isbnAvailable(ctx, cctx, b.ISBN, "") {
		return
	}

	if err := h.books.Create(cctx, b); err != nil {
		if errors.Is(err, book.ErrISBNTaken) {
			RespondConflict(ctx, "isbn_taken", "A book with this ISBN already exists.")
			return
		}
		h.log.ErrorContext(cctx, "create book failed", "err", err)
		RespondStoreError(ctx, err, "Could not create book")
		return
	}

	h.invalidateLists(cctx)
	ctx.JSON(http.StatusCreated, b)
}

func (h *BooksHandler) UpdateBook(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	var req book.UpdateBookRequest

	if !BindJSONStrict(ctx, &req) {
		return
	}

	if req.Empty() {
		RespondBadRequest(ctx, "No updatable fields supplied", nil)
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if req.ISBN != nil && !h.isbnAvailable(ctx, cctx, book.NormalizeISBN(*req.ISBN), id) {
		return
	}

	updated, err := h.books.Update(cctx, id, req)
	if err != nil {
		switch {
		case errors.Is(err, book.ErrNotFound):
			RespondNotFound(ctx, "Book not found")
		case errors.Is(err, book.ErrISBNTaken):
			RespondConflict(ctx, "isbn_taken", "A book with this ISBN already exists.")
		default:
			h.log.ErrorContext(cctx, "update book failed", "err", err, "book_id", id)
			RespondStoreError(ctx, err, "Could not update book")
		}
		return
	}

	h.invalidateLists(cctx)
	ctx.JSON(http.StatusOK, updated)
}

// DeleteBook removes the book together with its summary.
func (h *BooksHandler) DeleteBook(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.books.DeleteWithSummary(cctx, id); err != nil {
		if errors.Is(err, book.ErrNotFound) {
			RespondNotFound(ctx, "Book not found")
			return
		}
		h.log.ErrorContext(cctx, "delete book failed", "err", err, "book_id", id)
		RespondStoreError(ctx, err, "Could not delete book")
		return
	}

	h.invalidateLists(cctx)
	ctx.JSON(http.StatusOK, gin.H{"message": "Book and its summary deleted"})
}

func (h *BooksHandler) isbnAvailable(ctx *gin.Context, cctx context.Context, isbn, excludeID string) bool {
	if isbn == "" {
		return true
	}

	taken, err := h.books.ISBNInUse(cctx, isbn, excludeID)
	if err != nil {
		h.log.ErrorContext(cctx, "isbn check failed", "err", err)
		RespondStoreError(ctx, err, "Could not save book")
		return false
	}
	if taken {
		RespondConflict(ctx, "isbn_taken", "A book with this ISBN already exists.")
		return false
	}
	return true
}

func (h *BooksHandler) invalidateLists(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.DeletePrefix(ctx, cache.BooksListPrefix); err != nil {
		h.log.WarnContext(ctx, "book list cache invalidation failed", "err", err)
	}
}
