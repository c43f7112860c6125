package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/geocoder89/booknotes/internal/http/handlers"
)

type fakeImageHost struct {
	gotType string
	gotExt  string
	gotBody []byte
	err     error
}

func (f *fakeImageHost) UploadImage(_ context.Context, body io.Reader, size int64, contentType, ext string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.gotBody, f.gotType, f.gotExt = b, contentType, ext
	return "https://cdn.example.com/book-covers/x" + ext, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newUploadRouter(host *fakeImageHost, maxBytes int64) *gin.Engine {
	h := handlers.NewUploadHandler(host, maxBytes, nil, nil)

	r := gin.New()
	r.POST("/upload", h.UploadImage)
	return r
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage_ForwardsImage(t *testing.T) {
	host := &fakeImageHost{}
	r := newUploadRouter(host, 1<<20)

	content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 4096)...)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "file", "cover.bin", content))
	wantStatus(t, w, http.StatusOK)

	var resp struct {
		URL string `json:"url"`
	}
	decode(t, w, &resp)

	if !strings.HasSuffix(resp.URL, ".png") {
		t.Fatalf("unexpected url %q", resp.URL)
	}
	if host.gotType != "image/png" || host.gotExt != ".png" {
		t.Fatalf("detected %q %q, want image/png .png", host.gotType, host.gotExt)
	}
	// the sniffed prefix must not be lost
	if !bytes.Equal(host.gotBody, content) {
		t.Fatalf("forwarded %d bytes, want %d", len(host.gotBody), len(content))
	}
}

func TestUploadImage_Rejects(t *testing.T) {
	t.Run("not an image", func(t *testing.T) {
		r := newUploadRouter(&fakeImageHost{}, 1<<20)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "file", "cover.png", []byte("just some text pretending to be a png")))
		wantStatus(t, w, http.StatusBadRequest)
	})

	t.Run("missing file field", func(t *testing.T) {
		r := newUploadRouter(&fakeImageHost{}, 1<<20)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "image", "cover.png", pngHeader))
		wantStatus(t, w, http.StatusBadRequest)
	})

	t.Run("too large", func(t *testing.T) {
		r := newUploadRouter(&fakeImageHost{}, 1024)

		content := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "file", "cover.png", content))
		wantStatus(t, w, http.StatusBadRequest)
	})

	t.Run("host failure", func(t *testing.T) {
		r := newUploadRouter(&fakeImageHost{err: errors.New("s3 down")}, 1<<20)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "file", "cover.png", pngHeader))
		wantStatus(t, w, http.StatusInternalServerError)
	})
}
