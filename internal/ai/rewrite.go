package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// rewriteExcerptBudget bounds the amount of original content embedded in
// the rewrite prompt.
const rewriteExcerptBudget = 5000

// TaggedResponse is the parse outcome of a TITLE:/CONTENT: formatted reply.
// A field that failed to parse stays empty with its Has flag false, so
// callers handle the per-field fallback explicitly instead of relying on
// empty-string fallthrough. Raw always carries the full reply for logging.
type TaggedResponse struct {
	Title      string
	Content    string
	HasTitle   bool
	HasContent bool
	Raw        string
}

// ParseTagged tolerantly extracts the TITLE and CONTENT fields from a
// model reply. Either field may be missing independently.
func ParseTagged(raw string) TaggedResponse {
	res := TaggedResponse{Raw: raw}

	titlePart := raw
	if idx := strings.Index(raw, "CONTENT:"); idx >= 0 {
		titlePart = raw[:idx]
		if content := strings.TrimSpace(raw[idx+len("CONTENT:"):]); content != "" {
			res.Content = content
			res.HasContent = true
		}
	}

	if idx := strings.Index(titlePart, "TITLE:"); idx >= 0 {
		title := strings.TrimSpace(titlePart[idx+len("TITLE:"):])
		// Title is a single line by contract
		if nl := strings.IndexByte(title, '\n'); nl >= 0 {
			title = strings.TrimSpace(title[:nl])
		}
		if title != "" {
			res.Title = title
			res.HasTitle = true
		}
	}

	return res
}

// Rewrite asks the model to rewrite an article and returns the new title
// and content. The pipeline must never lose an article to the AI layer:
// on transport failure the originals are returned unchanged, and on a
// malformed reply each unparsed field falls back to its original.
func (c *Client) Rewrite(ctx context.Context, title, contentHTML, lang string) (string, string) {
	prompt := fmt.Sprintf(RewriteUserPrompt, languageName(lang), title, truncate(contentHTML, rewriteExcerptBudget))

	response, err := c.Complete(ctx, RewriteSystemPrompt, prompt)
	if err != nil {
		c.log.Warn().Err(err).Str("title", title).Msg("Rewrite failed, keeping original")
		return title, contentHTML
	}

	parsed := ParseTagged(response)
	newTitle, newContent := title, contentHTML
	if parsed.HasTitle {
		newTitle = parsed.Title
	}
	if parsed.HasContent {
		newContent = parsed.Content
	}
	if !parsed.HasTitle || !parsed.HasContent {
		c.log.Warn().
			Bool("has_title", parsed.HasTitle).
			Bool("has_content", parsed.HasContent).
			Msg("Rewrite reply partially unparseable, falling back per field")
	}

	return newTitle, newContent
}

// Translation is a translated article
type Translation struct {
	Title   string
	Content string
}

// Translate translates a post into the target language. Transport/API
// failure is returned to the caller; a malformed reply degrades to the
// original fields instead.
func (c *Client) Translate(ctx context.Context, lang, title, excerpt, contentHTML string) (*Translation, error) {
	prompt := fmt.Sprintf(TranslateUserPrompt, languageName(lang), title, excerpt, contentHTML)

	response, err := c.Complete(ctx, TranslateSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("translation failed: %w", err)
	}

	parsed := ParseTagged(response)
	tr := &Translation{Title: title, Content: contentHTML}
	if parsed.HasTitle {
		tr.Title = parsed.Title
	}
	if parsed.HasContent {
		tr.Content = parsed.Content
	}
	return tr, nil
}

// truncate bounds s to max bytes, backing off to a rune boundary
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// languageName maps a language code to the name used in prompts
func languageName(code string) string {
	switch code {
	case "vi":
		return "Vietnamese"
	case "en":
		return "English"
	default:
		return code
	}
}
