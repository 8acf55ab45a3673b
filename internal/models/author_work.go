package models

import "time"

// AuthorWork binds a philosophical work to the page it was found on.
// WorkID is an optional external catalog identifier, globally unique when
// present; (author, title, site) collisions are flagged, not rejected.
type AuthorWork struct {
	ID         string `json:"id" badgerhold:"key"` // work_{uuid}
	AuthorName string `json:"author_name" badgerhold:"index"`
	WorkTitle  string `json:"work_title"`

	PublicationDate *HistoricalDate `json:"publication_date,omitempty"`

	SiteID string `json:"site_id" badgerhold:"index"`
	PageID string `json:"page_id" badgerhold:"index"`
	WorkID string `json:"work_id,omitempty" badgerhold:"index"`

	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
