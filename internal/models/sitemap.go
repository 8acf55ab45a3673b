package models

import "time"

// SiteMap is a recorded sitemap snapshot for a site. Purely passive.
type SiteMap struct {
	ID         string    `json:"id" badgerhold:"key"` // map_{uuid}
	SiteID     string    `json:"site_id" badgerhold:"index"`
	URL        string    `json:"url"`
	LastParsed time.Time `json:"last_parsed"`
	URLs       []string  `json:"urls"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
