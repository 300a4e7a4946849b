package htmltext

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Strip removes HTML tags and collapses whitespace, returning plain text.
// Feed content is untrusted input; it is parsed, never executed.
func Strip(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Fall back to a crude tag scan when the document cannot be parsed
		return collapse(stripTags(html))
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}

// Excerpt returns the first max runes of the stripped text
func Excerpt(html string, max int) string {
	text := Strip(html)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}

// collapse joins all whitespace runs into single spaces
func collapse(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

// stripTags drops everything between < and >
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
