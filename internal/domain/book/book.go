package book

import (
	"errors"
	"time"
)

type Book struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Author        string     `json:"author"`
	Description   string     `json:"description,omitempty"`
	CoverImage    string     `json:"coverImage"`
	PublishedDate *time.Time `json:"publishedDate,omitempty"`
	ISBN          string     `json:"isbn,omitempty"`
	Genres        []string   `json:"genres"`
	AverageRating float64    `json:"averageRating"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

var (
	ErrNotFound  = errors.New("book not found")
	ErrISBNTaken = errors.New("isbn already in use")
)

// with pointers if optional, it will be nil
type ListBooksFilter struct {
	Search *string
	Author *string
	Genre  *string
	Limit  int
	Offset int
}

type CreateBookRequest struct {
	Title         string     `json:"title" binding:"required,notblank,max=200"`
	Author        string     `json:"author" binding:"required,notblank,max=100"`
	Description   string     `json:"description" binding:"omitempty,max=2000"`
	CoverImage    string     `json:"coverImage" binding:"omitempty,max=2048"`
	PublishedDate *time.Time `json:"publishedDate"`
	ISBN          string     `json:"isbn" binding:"omitempty,max=32"`
	Genres        []string   `json:"genres" binding:"omitempty,max=20,dive,max=50"`
	AverageRating float64    `json:"averageRating" binding:"omitempty,min=0,max=5"`
}

// UpdateBookRequest is the PATCH allow-list. Fields left nil are not touched.
type UpdateBookRequest struct {
	Title         *string    `json:"title" binding:"omitnil,notblank,max=200"`
	Author        *string    `json:"author" binding:"omitnil,notblank,max=100"`
	Description   *string    `json:"description" binding:"omitnil,max=2000"`
	CoverImage    *string    `json:"coverImage" binding:"omitnil,max=2048"`
	PublishedDate *time.Time `json:"publishedDate"`
	ISBN          *string    `json:"isbn" binding:"omitnil,max=32"`
	Genres        *[]string  `json:"genres" binding:"omitnil,max=20,dive,max=50"`
	AverageRating *float64   `json:"averageRating" binding:"omitnil,min=0,max=5"`
}

func (r UpdateBookRequest) Empty() bool {
	return r.Title == nil && r.Author == nil && r.Description == nil && r.CoverImage == nil &&
		r.PublishedDate == nil && r.ISBN == nil && r.Genres == nil && r.AverageRating == nil
}
