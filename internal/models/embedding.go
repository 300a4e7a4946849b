package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingChunk is one bounded slice of a post's normalized text together
// with its embedding vector. (post_id, chunk_index) is unique; re-ingesting
// a post replaces all of its chunks in a single transaction so no stale
// generation ever mixes with a new one.
type EmbeddingChunk struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	PostID     uint            `gorm:"uniqueIndex:idx_post_chunk;not null" json:"post_id"`
	ChunkIndex int             `gorm:"uniqueIndex:idx_post_chunk;not null" json:"chunk_index"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	TokenCount int             `json:"token_count"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// ChunkMatch is a nearest-neighbor search result
type ChunkMatch struct {
	PostID     uint    `json:"post_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
