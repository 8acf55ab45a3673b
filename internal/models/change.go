package models

import "time"

// Content change types
const (
	ChangeTypeNew      = "new"
	ChangeTypeModified = "modified"
	ChangeTypeDeleted  = "deleted"
)

// Content change priorities (distinct from task priority, which is numeric)
const (
	ChangePriorityLow      = "low"
	ChangePriorityMedium   = "medium"
	ChangePriorityHigh     = "high"
	ChangePriorityCritical = "critical"
)

// ChangePriorityRank orders change priorities for sorting, highest first
func ChangePriorityRank(priority string) int {
	switch priority {
	case ChangePriorityCritical:
		return 4
	case ChangePriorityHigh:
		return 3
	case ChangePriorityMedium:
		return 2
	case ChangePriorityLow:
		return 1
	default:
		return 0
	}
}

// ContentChange is a durable change event for a page
type ContentChange struct {
	ID         string `json:"id" badgerhold:"key"` // chg_{uuid}
	PageID     string `json:"page_id" badgerhold:"index"`
	SiteID     string `json:"site_id" badgerhold:"index"`
	ChangeType string `json:"change_type" badgerhold:"index"`

	PreviousHash string `json:"previous_hash,omitempty"`
	NewHash      string `json:"new_hash,omitempty"`

	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`

	Severity string `json:"severity,omitempty"` // minor, major, critical
	Priority string `json:"priority"`           // low, medium, high, critical

	DetectedAt       time.Time              `json:"detected_at"`
	NotificationSent bool                   `json:"notification_sent" badgerhold:"index"`
	NotifiedAt       *time.Time             `json:"notified_at,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Change frequency trends
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// ChangeFrequency summarizes change activity for a site over a window
type ChangeFrequency struct {
	SiteID        string         `json:"site_id"`
	Days          int            `json:"days"`
	TotalChanges  int            `json:"total_changes"`
	ByType        map[string]int `json:"by_type"`
	ChangesPerDay float64        `json:"changes_per_day"`
	MostActiveDay string         `json:"most_active_day,omitempty"` // YYYY-MM-DD
	Trend         string         `json:"trend"`
}

// ModifiedPagesSummary aggregates recent modifications per site
type ModifiedPagesSummary struct {
	Days         int            `json:"days"`
	TotalChanges int            `json:"total_changes"`
	BySite       map[string]int `json:"by_site"`
	ByType       map[string]int `json:"by_type"`
}
