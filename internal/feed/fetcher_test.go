package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/pkg/logger"
	"github.com/cms-engine/pkg/ratelimit"
)

func testFetcher(maxItems int) *Fetcher {
	limiter := ratelimit.NewMultiLimiter()
	limiter.AddLimiter(ratelimit.LimiterRSS, 1000, 1000)
	log := logger.New(logger.Config{Level: "disabled", Format: "json"})
	return NewFetcher(maxItems, "/images/placeholder.jpg", limiter, log)
}

func rssServer(t *testing.T, items string) *httptest.Server {
	t.Helper()
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Test Feed</title>
<link>https://example.com</link>
<description>test</description>
` + items + `
</channel>
</rss>`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feed)
	}))
}

func TestFetchCapsItems(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, `<item><title>Item %d</title><link>https://example.com/%d</link><description>body</description></item>`, i, i)
	}
	srv := rssServer(t, b.String())
	defer srv.Close()

	f := testFetcher(10)
	items, err := f.Fetch(context.Background(), &models.FeedSource{Name: "test", URL: srv.URL})

	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, "Item 0", items[0].Title)
	assert.Equal(t, "https://example.com/0", items[0].Link)
}

func TestFetchSkipsItemsWithoutLink(t *testing.T) {
	srv := rssServer(t, `
<item><title>No link</title><description>body</description></item>
<item><title>Has link</title><link>https://example.com/a</link><description>body</description></item>`)
	defer srv.Close()

	f := testFetcher(10)
	items, err := f.Fetch(context.Background(), &models.FeedSource{Name: "test", URL: srv.URL})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Has link", items[0].Title)
}

func TestFetchContentFallsBackToDescription(t *testing.T) {
	srv := rssServer(t, `<item><title>A</title><link>https://example.com/a</link><description>&lt;p&gt;desc body&lt;/p&gt;</description></item>`)
	defer srv.Close()

	f := testFetcher(10)
	items, err := f.Fetch(context.Background(), &models.FeedSource{Name: "test", URL: srv.URL})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "<p>desc body</p>", items[0].ContentHTML)
}

func TestFetchImageFallbackChain(t *testing.T) {
	srv := rssServer(t, `
<item>
  <title>enclosure image</title>
  <link>https://example.com/1</link>
  <enclosure url="https://example.com/enc.jpg" type="image/jpeg" length="1000"/>
  <description>&lt;img src="https://example.com/inline.jpg"/&gt;</description>
</item>
<item>
  <title>inline image</title>
  <link>https://example.com/2</link>
  <description>&lt;p&gt;text&lt;/p&gt;&lt;img src="https://example.com/inline.jpg"/&gt;</description>
</item>
<item>
  <title>no image at all</title>
  <link>https://example.com/3</link>
  <description>plain text</description>
</item>`)
	defer srv.Close()

	f := testFetcher(10)
	items, err := f.Fetch(context.Background(), &models.FeedSource{Name: "test", URL: srv.URL})

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "https://example.com/enc.jpg", items[0].ImageURL)
	assert.Equal(t, "https://example.com/inline.jpg", items[1].ImageURL)
	assert.Equal(t, "/images/placeholder.jpg", items[2].ImageURL)
}

func TestFetchBadFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not xml at all")
	}))
	defer srv.Close()

	f := testFetcher(10)
	_, err := f.Fetch(context.Background(), &models.FeedSource{Name: "broken", URL: srv.URL})

	assert.Error(t, err)
}

func TestFirstImageSrc(t *testing.T) {
	assert.Equal(t, "a.jpg", firstImageSrc(`<p>x</p><img src="a.jpg"><img src="b.jpg">`))
	assert.Equal(t, "", firstImageSrc(`<p>no images</p>`))
	assert.Equal(t, "", firstImageSrc(""))
}
