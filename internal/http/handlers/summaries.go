package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/domain/book"
	"github.com/geocoder89/booknotes/internal/domain/summary"
	"github.com/geocoder89/booknotes/internal/projection"
	"github.com/geocoder89/booknotes/internal/repo"
)

type BookReader interface {
	GetByID(ctx context.Context, id string) (book.Book, error)
}

type SummariesHandler struct {
	books     BookReader
	summaries repo.SummaryStore
	format    summary.Format
	log       *slog.Logger
}

// NewSummariesHandler serves summaries in a single deployment-wide format.
func NewSummariesHandler(books BookReader, summaries repo.SummaryStore, format summary.Format, log *slog.Logger) *SummariesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SummariesHandler{books: books, summaries: summaries, format: format, log: log}
}

type CreateSummaryRequest struct {
	Title   string          `json:"title" binding:"required,notblank,max=200"`
	Content json.RawMessage `json:"content" binding:"required"`
}

type UpdateSummaryRequest struct {
	Title   *string         `json:"title" binding:"omitnil,notblank,max=200"`
	Content json.RawMessage `json:"content"`
}

// parseContent decodes content for the deployment format and derives its
// plain-text projection. It writes a 400 on failure.
func (h *SummariesHandler) parseContent(ctx *gin.Context, raw json.RawMessage) (summary.Content, summary.Projection, bool) {
	content, err := summary.ParseContent(h.format, raw)
	if err != nil {
		details := gin.H{"field": "content", "format": string(h.format)}
		if errors.Is(err, summary.ErrFormatMismatch) {
			RespondBadRequest(ctx, "Content does not match the "+string(h.format)+" summary format", details)
			return summary.Content{}, summary.Projection{}, false
		}
		RespondBadRequest(ctx, "Invalid summary content", details)
		return summary.Content{}, summary.Projection{}, false
	}

	return content, projection.Derive(content), true
}

// requireBook answers 404 when the book is missing.
func (h *SummariesHandler) requireBook(ctx *gin.Context, cctx context.Context, bookID string) bool {
	if _, err := h.books.GetByID(cctx, bookID); err != nil {
		if errors.Is(err, book.ErrNotFound) {
			RespondNotFound(ctx, "Book not found")
			return false
		}
		h.log.ErrorContext(cctx, "get book failed", "err", err, "book_id", bookID)
		RespondStoreError(ctx, err, "Could not fetch book")
		return false
	}
	return true
}

func (h *SummariesHandler) CreateSummary(ctx *gin.Context) {
	bookID, ok := parseID(ctx)
	if !ok {
		return
	}

	var req CreateSummaryRequest
	if !BindJSON(ctx, &req) {
		return
	}

	content, p, ok := h.parseContent(ctx, req.Content)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	if !h.requireBook(ctx, cctx, bookID) {
		return
	}

	s := summary.New(bookID, req.Title, content, p)

	if err := h.summaries.Create(cctx, s); err != nil {
		switch {
		case errors.Is(err, summary.ErrExists):
			RespondConflict(ctx, "summary_exists", "This book already has a summary.")
			return
		case errors.Is(err, book.ErrNotFound):
			RespondNotFound(ctx, "Book not found")
			return
		}
		h.log.ErrorContext(cctx, "create summary failed", "err", err, "book_id", bookID)
		RespondStoreError(ctx, err, "Could not create summary")
		return
	}

	ctx.JSON(http.StatusCreated, s)
}

func (h *SummariesHandler) GetSummary(ctx *gin.Context) {
	bookID, ok := parseID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if !h.requireBook(ctx, cctx, bookID) {
		return
	}

	s, err := h.summaries.GetByBook(cctx, bookID)
	if err != nil {
		if errors.Is(err, summary.ErrNotFound) {
			RespondNotFound(ctx, "Summary not found")
			return
		}
		h.log.ErrorContext(cctx, "get summary failed", "err", err, "book_id", bookID)
		RespondStoreError(ctx, err, "Could not fetch summary")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, s)
}

// UpdateSummary changes the title and/or content. The projection is
// recomputed only when content is supplied.
func (h *SummariesHandler) UpdateSummary(ctx *gin.Context) {
	bookID, ok := parseID(ctx)
	if !ok {
		return
	}

	var req UpdateSummaryRequest
	if !BindJSONStrict(ctx, &req) {
		return
	}

	if req.Title == nil && len(req.Content) == 0 {
		RespondBadRequest(ctx, "No updatable fields supplied", nil)
		return
	}

	patch := summary.Patch{Title: req.Title}

	if len(req.Content) > 0 {
		content, p, ok := h.parseContent(ctx, req.Content)
		if !ok {
			return
		}
		patch.Content = &content
		patch.Projection = &p
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	updated, err := h.summaries.Update(cctx, bookID, patch)
	if err != nil {
		if errors.Is(err, summary.ErrNotFound) {
			RespondNotFound(ctx, "Summary not found")
			return
		}
		h.log.ErrorContext(cctx, "update summary failed", "err", err, "book_id", bookID)
		RespondStoreError(ctx, err, "Could not update summary")
		return
	}

	ctx.JSON(http.StatusOK, updated)
}
