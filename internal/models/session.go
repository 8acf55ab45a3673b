package models

import "time"

// Crawl session states. running is the only non-terminal state.
const (
	SessionStatusRunning   = "running"
	SessionStatusCompleted = "completed"
	SessionStatusAborted   = "aborted"
	SessionStatusFailed    = "failed"
)

// IsTerminalSessionStatus reports whether a session status is final
func IsTerminalSessionStatus(status string) bool {
	return status == SessionStatusCompleted || status == SessionStatusAborted || status == SessionStatusFailed
}

// CrawlSession represents one execution of a site's crawl
type CrawlSession struct {
	ID     string `json:"id" badgerhold:"key"` // sess_{uuid}
	SiteID string `json:"site_id" badgerhold:"index"`
	Status string `json:"status" badgerhold:"index"`

	ConfigSnapshot map[string]interface{} `json:"config_snapshot,omitempty"`
	Stats          SessionStats           `json:"stats"`

	WorkerID    string `json:"worker_id,omitempty"`
	AbortReason string `json:"abort_reason,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastUpdate  time.Time  `json:"last_update"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStats holds the aggregate counters for a crawl session
type SessionStats struct {
	PagesDiscovered int        `json:"pages_discovered"`
	PagesCrawled    int        `json:"pages_crawled"`
	PagesFailed     int        `json:"pages_failed"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	ErrorsCount     int        `json:"errors_count"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// SessionProgress carries the five counters replaced on a progress update
type SessionProgress struct {
	PagesDiscovered int   `json:"pages_discovered"`
	PagesCrawled    int   `json:"pages_crawled"`
	PagesFailed     int   `json:"pages_failed"`
	BytesDownloaded int64 `json:"bytes_downloaded"`
	ErrorsCount     int   `json:"errors_count"`
}
