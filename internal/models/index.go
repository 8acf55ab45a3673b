package models

import "time"

// ContentIndex is the per-page searchable payload, 1:1 with a page
type ContentIndex struct {
	ID            string            `json:"id" badgerhold:"key"` // idx_{uuid}
	PageID        string            `json:"page_id" badgerhold:"unique"`
	SearchContent string            `json:"search_content"`
	Metadata      map[string]string `json:"metadata,omitempty"` // small string map for faceting
	ContentHash   string            `json:"content_hash,omitempty" badgerhold:"index"`
	IndexedAt     time.Time         `json:"indexed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContentStatistics summarizes the content index collection
type ContentStatistics struct {
	TotalEntries     int        `json:"total_entries"`
	TotalContentSize int64      `json:"total_content_size"`
	AvgContentSize   float64    `json:"avg_content_size"`
	OldestIndexedAt  *time.Time `json:"oldest_indexed_at,omitempty"`
	NewestIndexedAt  *time.Time `json:"newest_indexed_at,omitempty"`
}
