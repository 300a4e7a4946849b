package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

// NormalizedItem is a feed entry reduced to the fields the pipeline stores
type NormalizedItem struct {
	Title       string
	Link        string
	ContentHTML string
	PublishedAt time.Time
	ImageURL    string
}

// Fetcher retrieves and normalizes RSS/Atom feeds. Parsing is pure: no
// side effects on the source record.
type Fetcher struct {
	parser           *gofeed.Parser
	maxItems         int
	placeholderImage string
	rateLimiter      *ratelimit.MultiLimiter
	log              *logger.Logger
}

// NewFetcher creates a new feed fetcher
func NewFetcher(maxItems int, placeholderImage string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Fetcher {
	if maxItems <= 0 {
		maxItems = 10
	}
	return &Fetcher{
		parser:           gofeed.NewParser(),
		maxItems:         maxItems,
		placeholderImage: placeholderImage,
		rateLimiter:      limiter,
		log:              log.WithComponent("feed"),
	}
}

// Fetch retrieves the feed for a source and returns a bounded prefix of
// its items, normalized.
func (f *Fetcher) Fetch(ctx context.Context, source *models.FeedSource) ([]*NormalizedItem, error) {
	if err := f.rateLimiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	f.log.Debug().Str("url", source.URL).Msg("Fetching feed")

	parsed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", source.Name, err)
	}

	items := make([]*NormalizedItem, 0, f.maxItems)
	for _, item := range parsed.Items {
		if len(items) >= f.maxItems {
			break
		}
		if item.Link == "" {
			continue
		}

		publishedAt := time.Now()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}

		items = append(items, &NormalizedItem{
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			ContentHTML: content,
			PublishedAt: publishedAt,
			ImageURL:    f.extractImage(item, content),
		})
	}

	f.log.Info().
		Uint("source_id", source.ID).
		Str("feed", source.Name).
		Int("count", len(items)).
		Msg("Fetched feed items")

	return items, nil
}

// extractImage resolves an item image: feed item image, then an image
// enclosure, then the first <img> in the content, then the placeholder.
func (f *Fetcher) extractImage(item *gofeed.Item, contentHTML string) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}

	if src := firstImageSrc(contentHTML); src != "" {
		return src
	}

	return f.placeholderImage
}

// firstImageSrc returns the src of the first <img> tag in the HTML, if any
func firstImageSrc(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}
