package cache

import (
	"net/url"
	"strconv"
	"strings"
)

// BooksListPrefix namespaces every cached book list; a write to any book
// drops the whole namespace.
const BooksListPrefix = "books:list:v1:"

// BuildBooksListKey escapes filter values so one that contains the ':' or
// 'name=' separators cannot spell out another combination's key.
func BuildBooksListKey(page, limit int, search, author, genre *string) string {
	return BooksListPrefix + "page=" + strconv.Itoa(page) +
		":limit=" + strconv.Itoa(limit) +
		":q=" + fold(search) +
		":author=" + trim(author) +
		":genre=" + fold(genre)
}

// fold is for filters that match case-insensitively; author matches exactly.
func fold(v *string) string {
	return url.QueryEscape(strings.ToLower(strings.TrimSpace(deref(v))))
}

func trim(v *string) string {
	return url.QueryEscape(strings.TrimSpace(deref(v)))
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
