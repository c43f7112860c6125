package summary

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatBlocks   Format = "blocks"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMarkdown:
		return FormatMarkdown, nil
	case FormatBlocks:
		return FormatBlocks, nil
	default:
		return "", fmt.Errorf("unknown summary format %q", s)
	}
}

// BlockDocument is the block editor document shape.
type BlockDocument struct {
	Time    int64   `json:"time,omitempty"`
	Version string  `json:"version,omitempty"`
	Blocks  []Block `json:"blocks"`
}

type Block struct {
	ID   string         `json:"id,omitempty"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Content is raw summary content: exactly one of Markdown or Blocks is used,
// selected by Format.
type Content struct {
	Format   Format
	Markdown string
	Blocks   *BlockDocument
}

func Markdown(text string) Content {
	return Content{Format: FormatMarkdown, Markdown: text}
}

func Blocks(doc BlockDocument) Content {
	return Content{Format: FormatBlocks, Blocks: &doc}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Format == FormatBlocks {
		if c.Blocks == nil {
			return []byte("null"), nil
		}
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Markdown)
}

// ParseContent decodes raw JSON content for the given deployment format.
// Markdown deployments take a JSON string, block deployments a document with
// at least one block.
func ParseContent(format Format, raw json.RawMessage) (Content, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Content{}, ErrInvalidContent
	}

	isString := raw[0] == '"'

	switch format {
	case FormatMarkdown:
		if !isString {
			return Content{}, ErrFormatMismatch
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Content{}, ErrInvalidContent
		}
		if strings.TrimSpace(text) == "" {
			return Content{}, ErrInvalidContent
		}
		return Markdown(text), nil

	case FormatBlocks:
		if raw[0] != '{' {
			return Content{}, ErrFormatMismatch
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()

		var doc BlockDocument
		if err := dec.Decode(&doc); err != nil {
			return Content{}, ErrInvalidContent
		}
		if len(doc.Blocks) == 0 {
			return Content{}, ErrInvalidContent
		}
		for _, b := range doc.Blocks {
			if strings.TrimSpace(b.Type) == "" {
				return Content{}, ErrInvalidContent
			}
		}
		return Blocks(doc), nil
	}

	return Content{}, fmt.Errorf("unknown summary format %q", format)
}
