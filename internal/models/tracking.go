package models

import (
	"time"
)

// ChatMessage is one persisted turn of a chat exchange. SessionID is a
// client-generated identifier, untrusted for authorization and used only
// for correlation and rate-limit bucketing.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;index" json:"session_id"`
	Role      string    `gorm:"size:20" json:"role"` // user or assistant
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TrackingEvent is a client-reported analytics event
type TrackingEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:64;index" json:"session_id"`
	EventType string    `gorm:"size:50;index" json:"event_type"`
	Path      string    `gorm:"size:2048" json:"path"`
	Referrer  string    `gorm:"size:2048" json:"referrer"`
	Metadata  JSON      `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ContactMessage is a submitted contact-form entry
type ContactMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Subject   string    `gorm:"size:512" json:"subject"`
	Body      string    `gorm:"type:text;not null" json:"body"`
	Handled   bool      `gorm:"default:false" json:"handled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Setting is an operator-tunable key/value read through a TTL cache
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:255;uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
