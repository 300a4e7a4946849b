package storage

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/cms-engine/internal/models"
)

// ErrVectorSearchUnsupported is returned when nearest-neighbor search is
// requested on a database driver without a native vector operator.
var ErrVectorSearchUnsupported = errors.New("vector search requires the postgres driver")

// Repository defines the interface for data persistence
type Repository interface {
	// Feed source operations
	CreateSource(ctx context.Context, source *models.FeedSource) error
	GetSourceByID(ctx context.Context, id uint) (*models.FeedSource, error)
	ListSources(ctx context.Context, activeOnly bool) ([]*models.FeedSource, error)
	UpdateSource(ctx context.Context, source *models.FeedSource) error
	DeleteSource(ctx context.Context, id uint) error
	// MarkSourceFetched records a completed fetch run: sets last_fetched_at
	// and increments articles_count by imported.
	MarkSourceFetched(ctx context.Context, id uint, imported int) error

	// Imported article operations
	CreateImport(ctx context.Context, article *models.ImportedArticle) error
	GetImportByID(ctx context.Context, id uint) (*models.ImportedArticle, error)
	ListImports(ctx context.Context, filter ImportFilter) ([]*models.ImportedArticle, error)
	// ImportExistsByURL is the dedup gate: exact match on original_url,
	// any status.
	ImportExistsByURL(ctx context.Context, url string) (bool, error)
	UpdateImport(ctx context.Context, article *models.ImportedArticle) error
	DeleteImport(ctx context.Context, id uint) error
	// ApproveImport promotes an imported article into a post and removes the
	// import row in one transaction; neither side is visible alone.
	ApproveImport(ctx context.Context, importID uint, post *models.Post) error

	// Post operations
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id uint) (*models.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*models.Post, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]*models.Post, error)
	UpdatePost(ctx context.Context, post *models.Post) error
	DeletePost(ctx context.Context, id uint) error

	// Translation cache
	GetTranslation(ctx context.Context, postID uint, language string) (*models.PostTranslation, error)
	SaveTranslation(ctx context.Context, tr *models.PostTranslation) error

	// Embedding chunks
	// ReplaceChunks deletes all existing chunks for the post and inserts the
	// new set in one transaction.
	ReplaceChunks(ctx context.Context, postID uint, chunks []*models.EmbeddingChunk) error
	CountChunks(ctx context.Context, postID uint) (int64, error)
	SearchChunks(ctx context.Context, embedding pgvector.Vector, limit int) ([]*models.ChunkMatch, error)

	// Chat, analytics, contact
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error
	ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error)
	CreateTrackingEvent(ctx context.Context, event *models.TrackingEvent) error
	CreateContactMessage(ctx context.Context, msg *models.ContactMessage) error
	ListContactMessages(ctx context.Context, limit, offset int) ([]*models.ContactMessage, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key, value string) error

	// Maintenance
	Close() error
	Migrate() error
}

// ImportFilter defines filtering options for imported articles
type ImportFilter struct {
	Status    *models.ImportStatus
	SourceID  *uint
	Limit     int
	Offset    int
	OrderBy   string // "fetched_at"
	OrderDesc bool
}

// PostFilter defines filtering options for posts
type PostFilter struct {
	Status    *models.PostStatus
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}

// DefaultImportFilter returns a filter with sensible defaults
func DefaultImportFilter() ImportFilter {
	return ImportFilter{
		Limit:     50,
		OrderBy:   "fetched_at",
		OrderDesc: true,
	}
}

// DefaultPostFilter returns a filter with sensible defaults
func DefaultPostFilter() PostFilter {
	return PostFilter{
		Limit:     50,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}
