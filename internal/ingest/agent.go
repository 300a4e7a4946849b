package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/internal/feed"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/logger"
)

// Rewriter rewrites an article title and body in the target language.
// Implementations must degrade to the originals rather than fail.
type Rewriter interface {
	Rewrite(ctx context.Context, title, contentHTML, lang string) (string, string)
}

// Agent runs the fetch → dedup → rewrite → store pipeline
type Agent struct {
	fetcher    *feed.Fetcher
	rewriter   Rewriter
	repository storage.Repository
	config     config.IngestConfig
	log        *logger.Logger
}

// NewAgent creates a new ingest agent
func NewAgent(
	fetcher *feed.Fetcher,
	rewriter Rewriter,
	repository storage.Repository,
	cfg config.IngestConfig,
	log *logger.Logger,
) *Agent {
	return &Agent{
		fetcher:    fetcher,
		rewriter:   rewriter,
		repository: repository,
		config:     cfg,
		log:        log.WithComponent("ingest"),
	}
}

// SourceResult is the per-source outcome of a run. A source failure is
// recorded here, never raised to the caller.
type SourceResult struct {
	SourceID   uint   `json:"source_id"`
	SourceName string `json:"source_name"`
	Fetched    int    `json:"fetched"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// RunResult contains the results of a full fetch cycle
type RunResult struct {
	TotalFetched  int            `json:"total_fetched"`
	TotalImported int            `json:"total_imported"`
	PerSource     []SourceResult `json:"per_source_results"`
	Duration      time.Duration  `json:"-"`
}

// Run fetches all active sources sequentially. One source failing does
// not abort the run for the others.
func (a *Agent) Run(ctx context.Context) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{}

	sources, err := a.repository.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	a.log.Info().Int("sources", len(sources)).Msg("Starting fetch run")

	for _, source := range sources {
		sr := a.runSource(ctx, source)
		result.TotalFetched += sr.Fetched
		result.TotalImported += sr.Imported
		result.PerSource = append(result.PerSource, sr)
	}

	result.Duration = time.Since(startTime)

	a.log.Info().
		Int("total_fetched", result.TotalFetched).
		Int("total_imported", result.TotalImported).
		Dur("duration", result.Duration).
		Msg("Fetch run completed")

	return result, nil
}

// RunSource fetches a single source by id
func (a *Agent) RunSource(ctx context.Context, sourceID uint) (*RunResult, error) {
	source, err := a.repository.GetSourceByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source not found: %w", err)
	}

	startTime := time.Now()
	sr := a.runSource(ctx, source)
	return &RunResult{
		TotalFetched:  sr.Fetched,
		TotalImported: sr.Imported,
		PerSource:     []SourceResult{sr},
		Duration:      time.Since(startTime),
	}, nil
}

func (a *Agent) runSource(ctx context.Context, source *models.FeedSource) SourceResult {
	log := a.log.WithSource(source.ID, source.Name)
	sr := SourceResult{SourceID: source.ID, SourceName: source.Name}

	items, err := a.fetcher.Fetch(ctx, source)
	if err != nil {
		log.Warn().Err(err).Msg("Source fetch failed")
		sr.Error = err.Error()
		return sr
	}
	sr.Fetched = len(items)

	for i, item := range items {
		// Fixed inter-item wait keeps us under the upstream API limits
		if i > 0 && a.config.ItemDelay > 0 {
			select {
			case <-time.After(a.config.ItemDelay):
			case <-ctx.Done():
				sr.Error = ctx.Err().Error()
				return sr
			}
		}

		imported, err := a.importItem(ctx, source, item)
		if err != nil {
			log.Warn().Err(err).Str("link", item.Link).Msg("Failed to import item")
			sr.Skipped++
			continue
		}
		if imported {
			sr.Imported++
		} else {
			sr.Skipped++
		}
	}

	if err := a.repository.MarkSourceFetched(ctx, source.ID, sr.Imported); err != nil {
		log.Warn().Err(err).Msg("Failed to update source fetch stats")
	}

	log.Info().
		Int("fetched", sr.Fetched).
		Int("imported", sr.Imported).
		Int("skipped", sr.Skipped).
		Msg("Source processed")

	return sr
}

// importItem runs one item through the dedup gate and the rewriter, then
// stores it as a pending import. The dedup check runs before the rewrite
// call so duplicates never spend AI budget.
func (a *Agent) importItem(ctx context.Context, source *models.FeedSource, item *feed.NormalizedItem) (bool, error) {
	exists, err := a.repository.ImportExistsByURL(ctx, item.Link)
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	if exists {
		return false, nil
	}

	title, content := a.rewriter.Rewrite(ctx, item.Title, item.ContentHTML, a.config.RewriteLanguage)

	article := &models.ImportedArticle{
		SourceID:        source.ID,
		OriginalURL:     item.Link,
		OriginalTitle:   item.Title,
		OriginalContent: item.ContentHTML,
		FeaturedImage:   item.ImageURL,
		SourceName:      source.Name,
		Status:          models.ImportStatusPending,
	}
	if title != item.Title {
		article.AIRewrittenTitle = title
	}
	if content != item.ContentHTML {
		article.AIRewrittenContent = content
	}

	if err := a.repository.CreateImport(ctx, article); err != nil {
		return false, fmt.Errorf("failed to store import: %w", err)
	}
	return true, nil
}
