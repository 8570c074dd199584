package entities

import (
	"time"

	"gorm.io/gorm"
)

type ScrapeKind string

const (
	ScrapeKindContacts ScrapeKind = "contacts"
	ScrapeKindGroups   ScrapeKind = "groups"
)

type ScrapeStatus string

const (
	ScrapeStatusInProgress ScrapeStatus = "in_progress"
	ScrapeStatusCompleted  ScrapeStatus = "completed"
	ScrapeStatusFailed     ScrapeStatus = "failed"
)

// ScrapingLog is an append-only audit row per scraping attempt, used for
// quota enforcement and operator diagnostics.
type ScrapingLog struct {
	gorm.Model
	UserID       uint         `json:"user_id" gorm:"index:idx_scrape_owner;not null"`
	SessionID    string       `json:"session_id" gorm:"type:varchar(64);index:idx_scrape_owner;not null"`
	Kind         ScrapeKind   `json:"kind" gorm:"type:varchar(10);default:contacts"`
	Status       ScrapeStatus `json:"status" gorm:"type:varchar(15);default:in_progress"`
	TotalScraped int          `json:"total_scraped" gorm:"default:0"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Error        string       `json:"error,omitempty" gorm:"type:text"`
}

func (ScrapingLog) TableName() string { return "scraping_logs" }
