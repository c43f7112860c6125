// Package projection derives the plain-text view and reading time of summary
// content. Every function here is pure.
package projection

import (
	"regexp"
	"strings"

	"github.com/geocoder89/booknotes/internal/domain/summary"
)

const WordsPerMinute = 200

var (
	mdImage   = regexp.MustCompile(`!\[.*?\]\(.*?\)`)
	mdLink    = regexp.MustCompile(`\[([^\]]+)\]\((.*?)\)`)
	mdSymbols = regexp.MustCompile("[#>*`~\\-]")
)

// Derive dispatches on the content format.
func Derive(c summary.Content) summary.Projection {
	var text string

	switch c.Format {
	case summary.FormatBlocks:
		text = BlocksText(c.Blocks)
	default:
		text = MarkdownText(c.Markdown)
	}

	return summary.Projection{
		PlainText:   text,
		ReadingTime: ReadingTime(text),
	}
}

func MarkdownText(md string) string {
	out := mdImage.ReplaceAllString(md, "")
	out = mdLink.ReplaceAllString(out, "$1")
	out = mdSymbols.ReplaceAllString(out, "")

	return collapseSpace(out)
}

// BlocksText joins the textual payload of each block in order, without markup.
func BlocksText(doc *summary.BlockDocument) string {
	if doc == nil {
		return ""
	}

	parts := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		t := blockText(b)
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}

	return collapseSpace(StripTags(strings.Join(parts, " ")))
}

func blockText(b summary.Block) string {
	if s, ok := b.Data["text"].(string); ok {
		return strings.TrimSpace(s)
	}

	// list blocks carry their text as items
	items, ok := b.Data["items"].([]any)
	if !ok {
		return ""
	}

	return strings.Join(listItems(items, nil), " ")
}

// listItems flattens list items depth-first. An item is either a string or,
// in nested lists, an object with its own content and child items.
func listItems(items []any, out []string) []string {
	for _, it := range items {
		switch v := it.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s, ok := v["content"].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
			if children, ok := v["items"].([]any); ok {
				out = listItems(children, out)
			}
		}
	}
	return out
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// ReadingTime is max(1, ceil(words/WordsPerMinute)).
func ReadingTime(text string) int {
	words := WordCount(text)
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute

	if minutes < 1 {
		return 1
	}
	return minutes
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
