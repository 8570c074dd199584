package dtos

import "time"

type ScrapeResultDTO struct {
	SessionID    string `json:"session_id"`
	Kind         string `json:"kind"`
	TotalScraped int    `json:"total_scraped"`
	LogID        uint   `json:"log_id"`
}

type ScrapeStatusDTO struct {
	ScrapesToday      int        `json:"scrapes_today"`
	MaxScrapesPerDay  int        `json:"max_scrapes_per_day"`
	CooldownRemaining int64      `json:"cooldown_remaining_ms"`
	LastCompletedAt   *time.Time `json:"last_completed_at,omitempty"`
	CanScrape         bool       `json:"can_scrape"`
}
