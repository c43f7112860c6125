package book

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewFromCreateRequest(req CreateBookRequest) Book {
	now := time.Now().UTC()

	return Book{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(req.Title),
		Author:        strings.TrimSpace(req.Author),
		Description:   req.Description,
		CoverImage:    req.CoverImage,
		PublishedDate: req.PublishedDate,
		ISBN:          NormalizeISBN(req.ISBN),
		Genres:        NormalizeGenres(req.Genres),
		AverageRating: req.AverageRating,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Apply copies the non-nil patch fields onto b.
func (b Book) Apply(req UpdateBookRequest) Book {
	if req.Title != nil {
		b.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		b.Author = strings.TrimSpace(*req.Author)
	}
	if req.Description != nil {
		b.Description = *req.Description
	}
	if req.CoverImage != nil {
		b.CoverImage = *req.CoverImage
	}
	if req.PublishedDate != nil {
		b.PublishedDate = req.PublishedDate
	}
	if req.ISBN != nil {
		b.ISBN = NormalizeISBN(*req.ISBN)
	}
	if req.Genres != nil {
		b.Genres = NormalizeGenres(*req.Genres)
	}
	if req.AverageRating != nil {
		b.AverageRating = *req.AverageRating
	}
	b.UpdatedAt = time.Now().UTC()

	return b
}

// NormalizeGenres trims and lower-cases tags, dropping blanks and duplicates.
func NormalizeGenres(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))

	for _, g := range in {
		g = NormalizeGenre(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}

	return out
}

func NormalizeGenre(g string) string {
	return strings.ToLower(strings.TrimSpace(g))
}

func NormalizeISBN(isbn string) string {
	return strings.TrimSpace(isbn)
}
