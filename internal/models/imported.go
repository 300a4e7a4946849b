package models

import (
	"time"
)

// ImportStatus represents the review state of an imported article
type ImportStatus string

const (
	ImportStatusPending  ImportStatus = "pending"
	ImportStatusApproved ImportStatus = "approved"
	ImportStatusRejected ImportStatus = "rejected"
)

// ImportedArticle represents a feed item fetched and rewritten, awaiting review.
// OriginalURL is the system-wide dedup key: at most one row per URL regardless
// of source or status. The match is exact, no URL normalization.
type ImportedArticle struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	SourceID           uint         `gorm:"index;not null" json:"source_id"`
	Source             *FeedSource  `gorm:"foreignKey:SourceID" json:"source,omitempty"`
	OriginalURL        string       `gorm:"size:2048;uniqueIndex;not null" json:"original_url"`
	OriginalTitle      string       `gorm:"size:1024;not null" json:"original_title"`
	OriginalContent    string       `gorm:"type:text" json:"original_content"`
	AIRewrittenTitle   string       `gorm:"size:1024" json:"ai_rewritten_title"`
	AIRewrittenContent string       `gorm:"type:text" json:"ai_rewritten_content"`
	FeaturedImage      string       `gorm:"size:2048" json:"featured_image"`
	SourceName         string       `gorm:"size:255" json:"source_name"`
	Status             ImportStatus `gorm:"size:20;default:'pending';index" json:"status"`
	FetchedAt          time.Time    `gorm:"autoCreateTime" json:"fetched_at"`
	UpdatedAt          time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// Title returns the rewritten title when present, otherwise the original
func (a *ImportedArticle) Title() string {
	if a.AIRewrittenTitle != "" {
		return a.AIRewrittenTitle
	}
	return a.OriginalTitle
}

// Content returns the rewritten content when present, otherwise the original
func (a *ImportedArticle) Content() string {
	if a.AIRewrittenContent != "" {
		return a.AIRewrittenContent
	}
	return a.OriginalContent
}
