package common

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID prefixes, one per collection. An identifier is <prefix><uuid>.
const (
	SiteIDPrefix       = "site_"
	PageIDPrefix       = "page_"
	SessionIDPrefix    = "sess_"
	TaskIDPrefix       = "task_"
	ChangeIDPrefix     = "chg_"
	AlertIDPrefix      = "alr_"
	IndexIDPrefix      = "idx_"
	AuthorWorkIDPrefix = "work_"
	SiteMapIDPrefix    = "map_"
)

// NewSiteID generates a unique site ID
func NewSiteID() string {
	return SiteIDPrefix + uuid.New().String()
}

// NewPageID generates a unique page ID
func NewPageID() string {
	return PageIDPrefix + uuid.New().String()
}

// NewSessionID generates a unique crawl session ID
func NewSessionID() string {
	return SessionIDPrefix + uuid.New().String()
}

// NewTaskID generates a unique processing task ID
func NewTaskID() string {
	return TaskIDPrefix + uuid.New().String()
}

// NewChangeID generates a unique content change ID
func NewChangeID() string {
	return ChangeIDPrefix + uuid.New().String()
}

// NewAlertID generates a unique alert ID
func NewAlertID() string {
	return AlertIDPrefix + uuid.New().String()
}

// NewIndexID generates a unique content index ID
func NewIndexID() string {
	return IndexIDPrefix + uuid.New().String()
}

// NewAuthorWorkID generates a unique author work ID
func NewAuthorWorkID() string {
	return AuthorWorkIDPrefix + uuid.New().String()
}

// NewSiteMapID generates a unique sitemap snapshot ID
func NewSiteMapID() string {
	return SiteMapIDPrefix + uuid.New().String()
}

// ValidateID checks that id carries the expected prefix and a well-formed
// UUID body. Malformed identifiers are rejected before any storage I/O.
func ValidateID(prefix, id string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if !strings.HasPrefix(id, prefix) {
		return fmt.Errorf("id %q does not have prefix %q", id, prefix)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, prefix)); err != nil {
		return fmt.Errorf("id %q is not well-formed: %w", id, err)
	}
	return nil
}
