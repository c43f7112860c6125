package projection

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// tags that separate words when removed
var breakingTags = map[string]struct{}{
	"br": {}, "p": {}, "div": {}, "li": {}, "ul": {}, "ol": {}, "blockquote": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
}

// a '<' only opens markup when a complete tag follows it
var tagAhead = regexp.MustCompile(`^<(/?[A-Za-z]|!)[^<>]*>`)

// StripTags drops markup and keeps text nodes with entities decoded.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(escapeStrayLT(s)))

	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String()
			}
			return s
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if _, ok := breakingTags[string(name)]; ok {
				b.WriteByte(' ')
			}
		}
	}
}

// escapeStrayLT turns each '<' that does not start a tag into an entity, so a
// literal comparison like "x<y" survives tokenizing instead of swallowing the
// rest of the text as an unterminated tag.
func escapeStrayLT(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !tagAhead.MatchString(s[i:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
