package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/config"
	"github.com/geocoder89/booknotes/internal/observability"
	"github.com/geocoder89/booknotes/internal/storage"
)

// sniffLen is how many leading bytes are inspected to detect the image type.
const sniffLen = 3072

type UploadHandler struct {
	host     storage.ImageHost
	maxBytes int64
	prom     *observability.Prom
	log      *slog.Logger
}

func NewUploadHandler(host storage.ImageHost, maxBytes int64, prom *observability.Prom, log *slog.Logger) *UploadHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &UploadHandler{host: host, maxBytes: maxBytes, prom: prom, log: log}
}

// UploadImage accepts a multipart "file" field and forwards it to the image
// host, answering with the public URL.
func (h *UploadHandler) UploadImage(ctx *gin.Context) {
	// room for the multipart envelope around the file
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, h.maxBytes+64<<10)

	fh, err := ctx.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(ctx)
			return
		}
		RespondBadRequest(ctx, "A file is required", gin.H{"field": "file"})
		return
	}

	if fh.Size > h.maxBytes {
		h.tooLarge(ctx)
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "open upload failed", "err", err)
		RespondInternal(ctx, "Could not read upload")
		return
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.log.ErrorContext(ctx.Request.Context(), "read upload failed", "err", err)
		RespondInternal(ctx, "Could not read upload")
		return
	}
	head = head[:n]

	contentType, ext, err := storage.Sniff(head)
	if err != nil {
		RespondBadRequest(ctx, "File must be a JPEG, PNG, GIF or WebP image", gin.H{"field": "file"})
		return
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "rewind upload failed", "err", err)
		RespondInternal(ctx, "Could not read upload")
		return
	}

	cctx, cancel := config.WithTimeout(ctx.Request.Context(), 30*time.Second)
	defer cancel()

	url, err := h.host.UploadImage(cctx, f, fh.Size, contentType, ext)
	if err != nil {
		h.log.ErrorContext(cctx, "image upload failed", "err", err, "size", fh.Size)
		RespondInternal(ctx, "Could not upload image")
		return
	}

	h.prom.Uploaded(fh.Size)
	ctx.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *UploadHandler) tooLarge(ctx *gin.Context) {
	RespondBadRequest(ctx, "File is too large", gin.H{
		"field":    "file",
		"maxBytes": strconv.FormatInt(h.maxBytes, 10),
	})
}
