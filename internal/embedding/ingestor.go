package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/htmltext"
	"github.com/cms-engine/pkg/logger"
)

// ErrNotPublished is returned when ingestion is requested for a post that
// is not published and force was not set.
var ErrNotPublished = errors.New("post is not published")

// Ingestor turns a post's text into embedded chunks
type Ingestor struct {
	client        *Client
	repository    storage.Repository
	chunkTokens   int
	overlapTokens int
	log           *logger.Logger
}

// NewIngestor creates a new embedding ingestor
func NewIngestor(client *Client, repository storage.Repository, chunkTokens, overlapTokens int, log *logger.Logger) *Ingestor {
	if chunkTokens <= 0 {
		chunkTokens = 500
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &Ingestor{
		client:        client,
		repository:    repository,
		chunkTokens:   chunkTokens,
		overlapTokens: overlapTokens,
		log:           log.WithComponent("ingestor"),
	}
}

// IngestResult reports one ingestion run
type IngestResult struct {
	Chunks       int `json:"chunks"`
	FailedChunks int `json:"failed_chunks"`
	Tokens       int `json:"tokens"`
}

// Ingest chunks and embeds a post's normalized text, replacing any prior
// chunk generation for the post in one transaction. A batch that fails to
// embed is dropped from the insert set and counted; the run continues
// with the remaining batches.
func (ing *Ingestor) Ingest(ctx context.Context, postID uint, force bool) (*IngestResult, error) {
	post, err := ing.repository.GetPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("post not found: %w", err)
	}
	if !post.IsPublished() && !force {
		return nil, ErrNotPublished
	}

	log := ing.log.WithPostID(postID)

	plain := htmltext.Strip(post.ContentHTML)
	text := fmt.Sprintf("Title: %s\nExcerpt: %s\n\n%s", post.Title, post.Excerpt, plain)

	pieces := Chunk(text, ing.chunkTokens, ing.overlapTokens)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("post %d has no text to ingest", postID)
	}

	result := &IngestResult{}
	var chunks []*models.EmbeddingChunk

	batchSize := ing.client.MaxBatchSize()
	for start := 0; start < len(pieces); start += batchSize {
		end := start + batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		vectors, tokens, err := ing.client.EmbedBatch(ctx, batch)
		if err != nil {
			log.Warn().
				Err(err).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("Batch embedding failed, dropping batch")
			result.FailedChunks += len(batch)
			continue
		}

		for i, vec := range vectors {
			chunks = append(chunks, &models.EmbeddingChunk{
				PostID:     postID,
				ChunkIndex: start + i,
				Content:    batch[i],
				Embedding:  pgvector.NewVector(vec),
				TokenCount: EstimateTokens(batch[i]),
			})
		}
		result.Tokens += tokens
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("all %d chunks failed to embed", len(pieces))
	}

	// Replace-then-insert in one transaction: no stale generation survives
	if err := ing.repository.ReplaceChunks(ctx, postID, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}
	result.Chunks = len(chunks)

	log.Info().
		Int("chunks", result.Chunks).
		Int("failed_chunks", result.FailedChunks).
		Int("tokens", result.Tokens).
		Msg("Post ingested")

	return result, nil
}
