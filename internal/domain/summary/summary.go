package summary

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("summary not found")
	ErrExists         = errors.New("summary already exists")
	ErrFormatMismatch = errors.New("content does not match the configured summary format")
	ErrInvalidContent = errors.New("invalid summary content")
)

type Summary struct {
	ID          string    `json:"id"`
	BookID      string    `json:"bookId"`
	Title       string    `json:"title"`
	Format      Format    `json:"format"`
	Content     Content   `json:"content"`
	PlainText   string    `json:"plainText"`
	ReadingTime int       `json:"readingTime"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Projection is the plain-text view derived from Content.
type Projection struct {
	PlainText   string
	ReadingTime int
}

func New(bookID, title string, content Content, p Projection) Summary {
	now := time.Now().UTC()

	return Summary{
		ID:          uuid.NewString(),
		BookID:      bookID,
		Title:       strings.TrimSpace(title),
		Format:      content.Format,
		Content:     content,
		PlainText:   p.PlainText,
		ReadingTime: p.ReadingTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Patch carries the fields of a summary update. Projection is set only when
// Content is.
type Patch struct {
	Title      *string
	Content    *Content
	Projection *Projection
}

func (s Summary) Apply(p Patch) Summary {
	if p.Title != nil {
		s.Title = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil && p.Projection != nil {
		s.Content = *p.Content
		s.Format = p.Content.Format
		s.PlainText = p.Projection.PlainText
		s.ReadingTime = p.Projection.ReadingTime
	}
	s.UpdatedAt = time.Now().UTC()

	return s
}
