package search

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/cms-engine/internal/embedding"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/logger"
)

// Embedder embeds query text with the same model and dimension used at
// ingestion time.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Retriever embeds a query and delegates nearest-neighbor ranking to the
// vector store. It is a thin adapter: no distance computation of its own,
// and no staleness guarantee relative to posts edited after ingestion.
type Retriever struct {
	embedder   Embedder
	repository storage.Repository
	log        *logger.Logger
}

// NewRetriever creates a new similarity retriever
func NewRetriever(embedder Embedder, repository storage.Repository, log *logger.Logger) *Retriever {
	return &Retriever{
		embedder:   embedder,
		repository: repository,
		log:        log.WithComponent("search"),
	}
}

// Search returns the limit nearest chunks to the query text
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]*models.ChunkMatch, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > 20 {
		limit = 20
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if dim := r.embedder.Dimension(); dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("%w: want %d, got %d", embedding.ErrDimensionMismatch, dim, len(vec))
	}

	matches, err := r.repository.SearchChunks(ctx, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	r.log.Debug().
		Str("query", query).
		Int("matches", len(matches)).
		Msg("Similarity search completed")

	return matches, nil
}
