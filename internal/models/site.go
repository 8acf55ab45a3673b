package models

import "time"

// Site health states
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// Site represents a configured crawl target
type Site struct {
	ID             string   `json:"id" badgerhold:"key"` // site_{uuid}
	Name           string   `json:"name"`
	BaseURL        string   `json:"base_url" badgerhold:"index"` // normalized, trailing slash
	AllowedDomains []string `json:"allowed_domains"`
	StartURLs      []string `json:"start_urls"`
	AllowPatterns  []string `json:"allow_patterns"`
	DenyPatterns   []string `json:"deny_patterns"`

	Politeness PolitenessSettings `json:"politeness"`
	Monitoring MonitoringSettings `json:"monitoring"`

	Tags         []string `json:"tags,omitempty"`
	HealthStatus string   `json:"health_status"` // healthy, unhealthy, unknown

	DisabledReason string     `json:"disabled_reason,omitempty"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolitenessSettings carries per-site rate limiting behavior
type PolitenessSettings struct {
	MinDelay      float64 `json:"min_delay"` // seconds between requests
	UserAgent     string  `json:"user_agent"`
	RetryCount    int     `json:"retry_count"`
	RetryDelay    float64 `json:"retry_delay"`
	MaxConcurrent int     `json:"max_concurrent"`
}

// MonitoringSettings controls crawl scheduling for a site
type MonitoringSettings struct {
	Active             bool       `json:"active"`
	Frequency          string     `json:"frequency"` // daily, weekly, monthly
	LastCrawlTime      *time.Time `json:"last_crawl_time,omitempty"`
	NextScheduledCrawl *time.Time `json:"next_scheduled_crawl,omitempty"`
}

// CrawlConfiguration is the denormalized projection handed to crawl drivers
type CrawlConfiguration struct {
	SiteID         string   `json:"site_id"`
	Name           string   `json:"name"`
	BaseURL        string   `json:"base_url"`
	AllowedDomains []string `json:"allowed_domains"`
	StartURLs      []string `json:"start_urls"`
	AllowPatterns  []string `json:"allow_patterns"`
	DenyPatterns   []string `json:"deny_patterns"`
	MinDelay       float64  `json:"min_delay"`
	UserAgent      string   `json:"user_agent"`
	MaxConcurrent  int      `json:"max_concurrent"`
	Frequency      string   `json:"frequency"`
}

// CrawlSettingsUpdate is a field-projected partial update for a site; nil
// fields are left untouched.
type CrawlSettingsUpdate struct {
	MinDelay       *float64 `json:"min_delay,omitempty"`
	MaxConcurrent  *int     `json:"max_concurrent,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}
