package models

import "time"

// Page processing states
const (
	PageStatusPending    = "pending"
	PageStatusProcessing = "processing"
	PageStatusProcessed  = "processed"
	PageStatusFailed     = "failed"
)

// Page represents one crawled URL belonging to a site
type Page struct {
	ID          string `json:"id" badgerhold:"key"` // page_{uuid}
	SiteID      string `json:"site_id" badgerhold:"index"`
	URL         string `json:"url" badgerhold:"index"` // normalized
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentHash string `json:"content_hash,omitempty" badgerhold:"index"`

	Author        string     `json:"author,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`

	ProcessingStatus string                 `json:"processing_status" badgerhold:"index"`
	ProcessingInfo   map[string]interface{} `json:"processing_info,omitempty"`
	ProcessedAt      *time.Time             `json:"processed_at,omitempty"`

	Metadata        PageMetadata  `json:"metadata"`
	RedirectHistory []RedirectHop `json:"redirect_history,omitempty"`
	Versions        []PageVersion `json:"versions,omitempty"`

	ContentLength int        `json:"content_length"`
	LastModified  *time.Time `json:"last_modified,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageMetadata carries extracted document metadata
type PageMetadata struct {
	Author          string   `json:"author,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Language        string   `json:"language,omitempty"`
	WordCount       int      `json:"word_count"`
	ReadingTime     int      `json:"reading_time"` // minutes
	Keywords        []string `json:"keywords,omitempty"`
}

// RedirectHop records one redirect observed while fetching a page
type RedirectHop struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// PageVersion is a content snapshot taken before a content replacement
type PageVersion struct {
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	At          time.Time `json:"at"`
}

// PageCreate is the input for creating a page
type PageCreate struct {
	SiteID        string                 `json:"site_id"`
	URL           string                 `json:"url"`
	Title         string                 `json:"title,omitempty"`
	Content       string                 `json:"content,omitempty"`
	Author        string                 `json:"author,omitempty"`
	PublishedDate *time.Time             `json:"published_date,omitempty"`
	Metadata      PageMetadata           `json:"metadata,omitempty"`
	Redirects     []RedirectHop          `json:"redirects,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// PageStatistics aggregates per-site page counts by processing status
type PageStatistics struct {
	SiteID          string         `json:"site_id"`
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	LastModifiedMax *time.Time     `json:"last_modified_max,omitempty"`
}
