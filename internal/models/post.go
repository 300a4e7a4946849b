package models

import (
	"time"
)

// PostStatus represents the publication state of a post
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
)

// Post represents a published (or draft) content record
type Post struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Title         string            `gorm:"size:1024;not null" json:"title"`
	Slug          string            `gorm:"size:512;uniqueIndex;not null" json:"slug"`
	Excerpt       string            `gorm:"type:text" json:"excerpt"`
	ContentHTML   string            `gorm:"type:text" json:"content_html"`
	FeaturedImage string            `gorm:"size:2048" json:"featured_image"`
	Status        PostStatus        `gorm:"size:20;default:'draft';index" json:"status"`
	PublishedAt   *time.Time        `json:"published_at"`
	Translations  []PostTranslation `gorm:"foreignKey:PostID" json:"translations,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPublished returns true if the post is visible to readers
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// PostTranslation holds a lazily produced translation of a post.
// One row per (post, language); an empty ContentHTML is treated as
// "not yet translated" and regenerated on next request.
type PostTranslation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PostID      uint      `gorm:"uniqueIndex:idx_post_lang;not null" json:"post_id"`
	Language    string    `gorm:"size:10;uniqueIndex:idx_post_lang;not null" json:"language"`
	Title       string    `gorm:"size:1024" json:"title"`
	Excerpt     string    `gorm:"type:text" json:"excerpt"`
	ContentHTML string    `gorm:"type:text" json:"content_html"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsUsable reports whether the cached translation can be trusted
func (t *PostTranslation) IsUsable() bool {
	return t != nil && t.ContentHTML != ""
}
