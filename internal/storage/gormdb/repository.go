package gormdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
)

// Repository implements storage.Repository on gorm, against either
// postgres (production, with pgvector) or sqlite (development and tests,
// no vector search).
type Repository struct {
	db       *gorm.DB
	postgres bool
}

// New creates a new repository for the given driver and DSN
func New(driver, dsn string) (*Repository, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite", "":
		// Ensure directory exists
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db, postgres: driver == "postgres"}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	if r.postgres {
		if err := r.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector extension: %w", err)
		}
	}
	return r.db.AutoMigrate(
		&models.FeedSource{},
		&models.ImportedArticle{},
		&models.Post{},
		&models.PostTranslation{},
		&models.EmbeddingChunk{},
		&models.ChatMessage{},
		&models.TrackingEvent{},
		&models.ContactMessage{},
		&models.Setting{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Feed source operations

func (r *Repository) CreateSource(ctx context.Context, source *models.FeedSource) error {
	return r.db.WithContext(ctx).Create(source).Error
}

func (r *Repository) GetSourceByID(ctx context.Context, id uint) (*models.FeedSource, error) {
	var source models.FeedSource
	if err := r.db.WithContext(ctx).First(&source, id).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *Repository) ListSources(ctx context.Context, activeOnly bool) ([]*models.FeedSource, error) {
	var sources []*models.FeedSource
	query := r.db.WithContext(ctx).Model(&models.FeedSource{}).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *Repository) UpdateSource(ctx context.Context, source *models.FeedSource) error {
	return r.db.WithContext(ctx).Save(source).Error
}

func (r *Repository) DeleteSource(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.FeedSource{}, id).Error
}

func (r *Repository) MarkSourceFetched(ctx context.Context, id uint, imported int) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.FeedSource{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_fetched_at": now,
			"articles_count":  gorm.Expr("articles_count + ?", imported),
		}).Error
}

// Imported article operations

func (r *Repository) CreateImport(ctx context.Context, article *models.ImportedArticle) error {
	return r.db.WithContext(ctx).Create(article).Error
}

func (r *Repository) GetImportByID(ctx context.Context, id uint) (*models.ImportedArticle, error) {
	var article models.ImportedArticle
	if err := r.db.WithContext(ctx).Preload("Source").First(&article, id).Error; err != nil {
		return nil, err
	}
	return &article, nil
}

func (r *Repository) ListImports(ctx context.Context, filter storage.ImportFilter) ([]*models.ImportedArticle, error) {
	var articles []*models.ImportedArticle
	query := r.db.WithContext(ctx).Model(&models.ImportedArticle{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.SourceID != nil {
		query = query.Where("source_id = ?", *filter.SourceID)
	}

	orderCol := "fetched_at"
	if filter.OrderBy != "" {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (r *Repository) ImportExistsByURL(ctx context.Context, url string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ImportedArticle{}).
		Where("original_url = ?", url).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) UpdateImport(ctx context.Context, article *models.ImportedArticle) error {
	return r.db.WithContext(ctx).Save(article).Error
}

func (r *Repository) DeleteImport(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.ImportedArticle{}, id).Error
}

func (r *Repository) ApproveImport(ctx context.Context, importID uint, post *models.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}
		res := tx.Delete(&models.ImportedArticle{}, importID)
		if res.Error != nil {
			return fmt.Errorf("failed to remove import: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("import %d no longer exists", importID)
		}
		return nil
	})
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *Repository) GetPostByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *Repository) ListPosts(ctx context.Context, filter storage.PostFilter) ([]*models.Post, error) {
	var posts []*models.Post
	query := r.db.WithContext(ctx).Model(&models.Post{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	orderCol := "created_at"
	if filter.OrderBy != "" {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *Repository) UpdatePost(ctx context.Context, post *models.Post) error {
	return r.db.WithContext(ctx).Save(post).Error
}

func (r *Repository) DeletePost(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.EmbeddingChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PostTranslation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Post{}, id).Error
	})
}

// Translation cache

func (r *Repository) GetTranslation(ctx context.Context, postID uint, language string) (*models.PostTranslation, error) {
	var tr models.PostTranslation
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND language = ?", postID, language).
		First(&tr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

func (r *Repository) SaveTranslation(ctx context.Context, tr *models.PostTranslation) error {
	// Upsert - update if a row for (post, language) exists, create if not
	var existing models.PostTranslation
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND language = ?", tr.PostID, tr.Language).
		First(&existing).Error
	if err == nil {
		tr.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(tr).Error
}

// Embedding chunks

func (r *Repository) ReplaceChunks(ctx context.Context, postID uint, chunks []*models.EmbeddingChunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.EmbeddingChunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete existing chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
		return nil
	})
}

func (r *Repository) CountChunks(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EmbeddingChunk{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	return count, err
}

func (r *Repository) SearchChunks(ctx context.Context, embedding pgvector.Vector, limit int) ([]*models.ChunkMatch, error) {
	if !r.postgres {
		return nil, storage.ErrVectorSearchUnsupported
	}
	var matches []*models.ChunkMatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT post_id, chunk_index, content, 1 - (embedding <=> ?) AS similarity
		FROM embedding_chunks
		ORDER BY embedding <=> ?
		LIMIT ?`, embedding, embedding, limit).
		Scan(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// Chat, analytics, contact

func (r *Repository) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *Repository) ListChatMessages(ctx context.Context, sessionID string, limit int) ([]*models.ChatMessage, error) {
	var msgs []*models.ChatMessage
	query := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repository) CreateTrackingEvent(ctx context.Context, event *models.TrackingEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *Repository) CreateContactMessage(ctx context.Context, msg *models.ContactMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *Repository) ListContactMessages(ctx context.Context, limit, offset int) ([]*models.ContactMessage, error) {
	var msgs []*models.ContactMessage
	query := r.db.WithContext(ctx).Model(&models.ContactMessage{}).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Settings

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	var existing models.Setting
	setting := models.Setting{Key: key, Value: value}
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&existing).Error; err == nil {
		setting.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(&setting).Error
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
