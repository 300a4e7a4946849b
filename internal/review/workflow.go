package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosimple/slug"

	"github.com/cms-engine/internal/models"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/pkg/htmltext"
	"github.com/cms-engine/pkg/logger"
)

// Action is a review decision applied to an imported article
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ErrInvalidTransition is returned when an action is not legal from the
// article's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Transition returns the status an action leads to from the current one.
// Only pending articles accept review actions; approved and rejected are
// terminal and not re-enterable from one another.
func Transition(current models.ImportStatus, action Action) (models.ImportStatus, error) {
	if current != models.ImportStatusPending {
		return current, fmt.Errorf("%w: %s article cannot be %sd", ErrInvalidTransition, current, action)
	}
	switch action {
	case ActionApprove:
		return models.ImportStatusApproved, nil
	case ActionReject:
		return models.ImportStatusRejected, nil
	default:
		return current, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
}

// Workflow applies review decisions to imported articles
type Workflow struct {
	repository storage.Repository
	log        *logger.Logger
}

// NewWorkflow creates a review workflow
func NewWorkflow(repository storage.Repository, log *logger.Logger) *Workflow {
	return &Workflow{
		repository: repository,
		log:        log.WithComponent("review"),
	}
}

// Approve promotes a pending import into a published post and removes the
// import row. Both writes happen in one transaction: a partial failure
// leaves the import pending and no post behind.
func (w *Workflow) Approve(ctx context.Context, importID uint) (*models.Post, error) {
	article, err := w.repository.GetImportByID(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("import not found: %w", err)
	}

	if _, err := Transition(article.Status, ActionApprove); err != nil {
		return nil, err
	}

	title := article.Title()
	content := article.Content()
	now := time.Now()

	post := &models.Post{
		Title:         title,
		Slug:          uniqueSlug(title, importID),
		Excerpt:       htmltext.Excerpt(content, 200),
		ContentHTML:   content,
		FeaturedImage: article.FeaturedImage,
		Status:        models.PostStatusPublished,
		PublishedAt:   &now,
	}

	if err := w.repository.ApproveImport(ctx, importID, post); err != nil {
		return nil, fmt.Errorf("failed to approve import: %w", err)
	}

	w.log.Info().
		Uint("import_id", importID).
		Uint("post_id", post.ID).
		Str("slug", post.Slug).
		Msg("Import approved and published")

	return post, nil
}

// Reject marks a pending import rejected. The row is retained for audit;
// re-import of the same URL stays blocked by the dedup gate until the row
// is deleted.
func (w *Workflow) Reject(ctx context.Context, importID uint) error {
	article, err := w.repository.GetImportByID(ctx, importID)
	if err != nil {
		return fmt.Errorf("import not found: %w", err)
	}

	next, err := Transition(article.Status, ActionReject)
	if err != nil {
		return err
	}

	article.Status = next
	if err := w.repository.UpdateImport(ctx, article); err != nil {
		return fmt.Errorf("failed to reject import: %w", err)
	}

	w.log.Info().Uint("import_id", importID).Msg("Import rejected")
	return nil
}

// Delete removes an import in any state
func (w *Workflow) Delete(ctx context.Context, importID uint) error {
	if err := w.repository.DeleteImport(ctx, importID); err != nil {
		return fmt.Errorf("failed to delete import: %w", err)
	}
	w.log.Info().Uint("import_id", importID).Msg("Import deleted")
	return nil
}

// uniqueSlug derives a slug from the title, suffixed with the import id to
// keep it collision-free without an extra lookup.
func uniqueSlug(title string, importID uint) string {
	base := slug.Make(title)
	if base == "" {
		base = "bai-viet"
	}
	return fmt.Sprintf("%s-%d", base, importID)
}
