package gormdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	repo, err := New("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, repo.Migrate())
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("oracle", "dsn")
	assert.Error(t, err)
}

func TestImportDedupByURL(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	article := &models.ImportedArticle{
		SourceID:      1,
		OriginalURL:   "https://example.com/a",
		OriginalTitle: "A",
		Status:        models.ImportStatusPending,
	}
	require.NoError(t, repo.CreateImport(ctx, article))

	exists, err := repo.ImportExistsByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ImportExistsByURL(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.False(t, exists)

	// The unique index backs the dedup gate
	dup := &models.ImportedArticle{
		SourceID:      2,
		OriginalURL:   "https://example.com/a",
		OriginalTitle: "A again",
		Status:        models.ImportStatusPending,
	}
	assert.Error(t, repo.CreateImport(ctx, dup))
}

func TestDedupSurvivesRejection(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	article := &models.ImportedArticle{
		SourceID:      1,
		OriginalURL:   "https://example.com/a",
		OriginalTitle: "A",
		Status:        models.ImportStatusRejected,
	}
	require.NoError(t, repo.CreateImport(ctx, article))

	exists, err := repo.ImportExistsByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, exists, "rejected imports still block re-import")
}

func TestApproveImportMovesRow(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	article := &models.ImportedArticle{
		SourceID:      1,
		OriginalURL:   "https://example.com/a",
		OriginalTitle: "A",
		Status:        models.ImportStatusPending,
	}
	require.NoError(t, repo.CreateImport(ctx, article))

	post := &models.Post{Title: "A", Slug: "a-1", Status: models.PostStatusPublished}
	require.NoError(t, repo.ApproveImport(ctx, article.ID, post))

	assert.NotZero(t, post.ID)

	_, err := repo.GetImportByID(ctx, article.ID)
	assert.Error(t, err, "import row is removed on approval")

	got, err := repo.GetPostBySlug(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title)
}

func TestApproveImportMissingRowRollsBack(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	post := &models.Post{Title: "Ghost", Slug: "ghost-9", Status: models.PostStatusPublished}
	err := repo.ApproveImport(ctx, 999, post)
	require.Error(t, err)

	// The transaction rolled the post back
	_, err = repo.GetPostBySlug(ctx, "ghost-9")
	assert.Error(t, err)
}

func TestMarkSourceFetched(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	source := &models.FeedSource{Name: "feed", URL: "https://example.com/rss", FetchIntervalMinutes: 60}
	require.NoError(t, repo.CreateSource(ctx, source))

	require.NoError(t, repo.MarkSourceFetched(ctx, source.ID, 3))
	require.NoError(t, repo.MarkSourceFetched(ctx, source.ID, 2))

	got, err := repo.GetSourceByID(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ArticlesCount)
	assert.NotNil(t, got.LastFetchedAt)
}

func TestListImportsFilters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for i, status := range []models.ImportStatus{
		models.ImportStatusPending,
		models.ImportStatusPending,
		models.ImportStatusRejected,
	} {
		require.NoError(t, repo.CreateImport(ctx, &models.ImportedArticle{
			SourceID:      1,
			OriginalURL:   "https://example.com/" + string(rune('a'+i)),
			OriginalTitle: "t",
			Status:        status,
		}))
	}

	pending := models.ImportStatusPending
	filter := storage.DefaultImportFilter()
	filter.Status = &pending

	got, err := repo.ListImports(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTranslationUpsert(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	tr, err := repo.GetTranslation(ctx, 1, "en")
	require.NoError(t, err)
	assert.Nil(t, tr, "missing translation is nil, not an error")

	require.NoError(t, repo.SaveTranslation(ctx, &models.PostTranslation{
		PostID: 1, Language: "en", Title: "v1", ContentHTML: "<p>v1</p>",
	}))
	require.NoError(t, repo.SaveTranslation(ctx, &models.PostTranslation{
		PostID: 1, Language: "en", Title: "v2", ContentHTML: "<p>v2</p>",
	}))

	tr, err = repo.GetTranslation(ctx, 1, "en")
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "v2", tr.Title)

	var count int64
	repo.db.Model(&models.PostTranslation{}).Where("post_id = ?", 1).Count(&count)
	assert.Equal(t, int64(1), count, "upsert must not duplicate rows")
}

func TestReplaceChunks(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first := []*models.EmbeddingChunk{
		{PostID: 1, ChunkIndex: 0, Content: "old a", Embedding: pgvector.NewVector([]float32{1, 2})},
		{PostID: 1, ChunkIndex: 1, Content: "old b", Embedding: pgvector.NewVector([]float32{3, 4})},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, 1, first))

	count, err := repo.CountChunks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	second := []*models.EmbeddingChunk{
		{PostID: 1, ChunkIndex: 0, Content: "new a", Embedding: pgvector.NewVector([]float32{5, 6})},
	}
	require.NoError(t, repo.ReplaceChunks(ctx, 1, second))

	count, err = repo.CountChunks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "replacement removes the old generation")
}

func TestSearchChunksUnsupportedOnSQLite(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.SearchChunks(context.Background(), pgvector.NewVector([]float32{1, 2}), 5)

	assert.ErrorIs(t, err, storage.ErrVectorSearchUnsupported)
}

func TestSettingsRoundTrip(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	v, err := repo.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, repo.SaveSetting(ctx, "chat_system_prompt", "first"))
	require.NoError(t, repo.SaveSetting(ctx, "chat_system_prompt", "second"))

	v, err = repo.GetSetting(ctx, "chat_system_prompt")
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestDeletePostRemovesDependents(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	post := &models.Post{Title: "p", Slug: "p-1", Status: models.PostStatusPublished}
	require.NoError(t, repo.CreatePost(ctx, post))
	require.NoError(t, repo.SaveTranslation(ctx, &models.PostTranslation{
		PostID: post.ID, Language: "en", ContentHTML: "<p>x</p>",
	}))
	require.NoError(t, repo.ReplaceChunks(ctx, post.ID, []*models.EmbeddingChunk{
		{PostID: post.ID, ChunkIndex: 0, Content: "c", Embedding: pgvector.NewVector([]float32{1})},
	}))

	require.NoError(t, repo.DeletePost(ctx, post.ID))

	count, err := repo.CountChunks(ctx, post.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	tr, err := repo.GetTranslation(ctx, post.ID, "en")
	require.NoError(t, err)
	assert.Nil(t, tr)
}
