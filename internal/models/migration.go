package models

import "time"

// MigrationRecord is one row in the migration ledger. Version is the key,
// so applying the same version twice is impossible.
type MigrationRecord struct {
	Version     int       `json:"version" badgerhold:"key"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}
