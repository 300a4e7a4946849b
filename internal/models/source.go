package models

import (
	"fmt"
	"time"
)

// MinFetchIntervalMinutes is the lowest allowed fetch interval for a feed source.
const MinFetchIntervalMinutes = 15

// FeedSource represents an RSS/Atom feed registered by an operator
type FeedSource struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Name                 string     `gorm:"size:255;not null" json:"name"`
	URL                  string     `gorm:"size:2048;not null" json:"url"`
	CategoryID           *uint      `gorm:"index" json:"category_id"`
	IsActive             bool       `gorm:"default:true" json:"is_active"`
	FetchIntervalMinutes int        `gorm:"default:60" json:"fetch_interval_minutes"`
	LastFetchedAt        *time.Time `json:"last_fetched_at"`
	ArticlesCount        int        `gorm:"default:0" json:"articles_count"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Validate checks operator-supplied fields before create/update
func (s *FeedSource) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if s.URL == "" {
		return fmt.Errorf("source url is required")
	}
	if s.FetchIntervalMinutes == 0 {
		s.FetchIntervalMinutes = 60
	}
	if s.FetchIntervalMinutes < MinFetchIntervalMinutes {
		return fmt.Errorf("fetch_interval_minutes must be at least %d", MinFetchIntervalMinutes)
	}
	return nil
}
