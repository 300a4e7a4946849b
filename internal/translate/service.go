package translate

import (
	"context"
	"fmt"

	"github.com/cms-engine/internal/ai"
	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/htmltext"
	"github.com/cms-engine/pkg/logger"
)

// Translator produces a translated title/content pair for a post
type Translator interface {
	Translate(ctx context.Context, lang, title, excerpt, contentHTML string) (*ai.Translation, error)
}

// Service serves post translations, produced lazily on first request for
// a language and cached per (post, language) thereafter. Translations are
// never pre-computed for all languages up front.
type Service struct {
	translator Translator
	repository storage.Repository
	log        *logger.Logger
}

// NewService creates a translation service
func NewService(translator Translator, repository storage.Repository, log *logger.Logger) *Service {
	return &Service{
		translator: translator,
		repository: repository,
		log:        log.WithComponent("translate"),
	}
}

// Translate returns the cached translation for (postID, language) when
// present and non-empty; otherwise it generates, persists and returns one.
// An empty cached body is treated as "not yet translated" and regenerated.
func (s *Service) Translate(ctx context.Context, postID uint, language string) (*models.PostTranslation, error) {
	if language == "" {
		return nil, fmt.Errorf("language is required")
	}

	cached, err := s.repository.GetTranslation(ctx, postID, language)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation cache: %w", err)
	}
	if cached.IsUsable() {
		return cached, nil
	}

	post, err := s.repository.GetPostByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("post not found: %w", err)
	}

	translated, err := s.translator.Translate(ctx, language, post.Title, post.Excerpt, post.ContentHTML)
	if err != nil {
		return nil, err
	}

	tr := &models.PostTranslation{
		PostID:      postID,
		Language:    language,
		Title:       translated.Title,
		Excerpt:     htmltext.Excerpt(translated.Content, 200),
		ContentHTML: translated.Content,
	}
	if err := s.repository.SaveTranslation(ctx, tr); err != nil {
		return nil, fmt.Errorf("failed to cache translation: %w", err)
	}

	s.log.Info().
		Uint("post_id", postID).
		Str("language", language).
		Msg("Translation generated and cached")

	return tr, nil
}
