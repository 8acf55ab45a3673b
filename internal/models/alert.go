package models

import "time"

// Alert severities
const (
	AlertSeverityInfo     = "info"
	AlertSeverityLow      = "low"
	AlertSeverityMedium   = "medium"
	AlertSeverityHigh     = "high"
	AlertSeverityCritical = "critical"
)

// Alert states
const (
	AlertStatusActive   = "active"
	AlertStatusResolved = "resolved"
)

// AlertSeverityRank orders severities for sorting, highest first
func AlertSeverityRank(severity string) int {
	switch severity {
	case AlertSeverityCritical:
		return 5
	case AlertSeverityHigh:
		return 4
	case AlertSeverityMedium:
		return 3
	case AlertSeverityLow:
		return 2
	case AlertSeverityInfo:
		return 1
	default:
		return 0
	}
}

// IsValidAlertSeverity reports whether severity is recognized
func IsValidAlertSeverity(severity string) bool {
	return AlertSeverityRank(severity) > 0
}

// Alert is an operational signal produced by any component
type Alert struct {
	ID              string `json:"id" badgerhold:"key"` // alr_{uuid}
	AlertType       string `json:"alert_type" badgerhold:"index"`
	Severity        string `json:"severity" badgerhold:"index"`
	Title           string `json:"title"`
	Message         string `json:"message"`
	SiteID          string `json:"site_id,omitempty"`
	SourceComponent string `json:"source_component,omitempty"`

	Context map[string]interface{} `json:"context,omitempty"`

	Status      string `json:"status" badgerhold:"index"`
	Fingerprint string `json:"fingerprint" badgerhold:"index"`

	OccurrenceCount int       `json:"occurrence_count"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string     `json:"resolution,omitempty"`

	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	NotificationSent bool       `json:"notification_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlertSuppression mutes alert creation for a type until a deadline
type AlertSuppression struct {
	AlertType       string    `json:"alert_type" badgerhold:"key"`
	SuppressedUntil time.Time `json:"suppressed_until"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// AlertStatistics aggregates alerts over a window
type AlertStatistics struct {
	Days           int            `json:"days"`
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"by_status"`
	BySeverity     map[string]int `json:"by_severity"`
	EscalatedCount int            `json:"escalated_count"`
}
