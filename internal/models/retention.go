package models

import "time"

// RetentionPolicy is the persisted per-collection retention record written
// by EnsureTTLPolicies and consumed by the expiry sweep.
type RetentionPolicy struct {
	Collection         string    `json:"collection" badgerhold:"key"`
	TTLField           string    `json:"ttl_field"`
	RetentionDays      int       `json:"retention_days"`
	ArchiveEnabled     bool      `json:"archive_enabled"`
	ArchiveAfterDays   int       `json:"archive_after_days,omitempty"`
	CompressionEnabled bool      `json:"compression_enabled"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CollectionRetentionStatus reports retention posture for one collection
type CollectionRetentionStatus struct {
	Collection    string `json:"collection"`
	TotalCount    int    `json:"total_count"`
	NearingExpiry int    `json:"nearing_expiry"` // within 7 days of the cutoff
	PolicyExists  bool   `json:"policy_exists"`
	RetentionDays int    `json:"retention_days"`
}

// ArchiveBatchInfo describes one uploaded archive object
type ArchiveBatchInfo struct {
	Collection    string    `json:"collection"`
	Key           string    `json:"key"`
	DocumentCount int       `json:"document_count"`
	FirstID       string    `json:"first_id"`
	LastID        string    `json:"last_id"`
	ArchivedAt    time.Time `json:"archived_at"`
}
