package interfaces

import (
	"context"
	"time"

	"github.com/scriptorium-dev/scriptorium/internal/models"
)

// SiteStorage - interface for crawl target persistence
type SiteStorage interface {
	CreateSite(ctx context.Context, site *models.Site) (string, error)
	GetSite(ctx context.Context, id string) (*models.Site, error)
	GetActiveSites(ctx context.Context) ([]*models.Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error)
	UpdateCrawlSettings(ctx context.Context, id string, update *models.CrawlSettingsUpdate) error
	DisableSite(ctx context.Context, id, reason string) error
	GetSitesForCrawlSchedule(ctx context.Context, frequency string) ([]*models.Site, error)
	UpdateSiteHealthStatus(ctx context.Context, id, status string) error
	UpdateNextScheduledCrawl(ctx context.Context, id string, next time.Time) error
	GetCrawlConfiguration(ctx context.Context, id string) (*models.CrawlConfiguration, error)
	CountSites(ctx context.Context) (int, error)
}

// PageStorage - interface for crawled page persistence
type PageStorage interface {
	CreatePage(ctx context.Context, create *models.PageCreate) (string, error)
	GetPage(ctx context.Context, id string) (*models.Page, error)
	GetPageByURL(ctx context.Context, url string) (*models.Page, error)
	UpdatePageContent(ctx context.Context, id, content string) error
	GetPagesBySite(ctx context.Context, siteID string, limit int) ([]*models.Page, error)
	GetPagesModifiedSince(ctx context.Context, siteID string, since time.Time) ([]*models.Page, error)
	MarkPageProcessed(ctx context.Context, id string, info map[string]interface{}) error
	GetUnprocessedPages(ctx context.Context, siteID string, limit int) ([]*models.Page, error)
	CheckContentExists(ctx context.Context, contentHash string) (bool, error)
	GetPagesByAuthor(ctx context.Context, author string) ([]*models.Page, error)
	BulkUpdateProcessingStatus(ctx context.Context, ids []string, status string) error
	GetPageStatistics(ctx context.Context, siteID string) (*models.PageStatistics, error)
	DeletePage(ctx context.Context, id string) error
	CountPages(ctx context.Context) (int, error)
}

// SessionStorage - interface for crawl session lifecycle
type SessionStorage interface {
	StartCrawlSession(ctx context.Context, siteID string, configSnapshot map[string]interface{}, maxConcurrent int) (string, error)
	GetSession(ctx context.Context, id string) (*models.CrawlSession, error)
	UpdateSessionProgress(ctx context.Context, id string, progress *models.SessionProgress) (bool, error)
	CompleteCrawlSession(ctx context.Context, id string, final *models.SessionProgress) error
	AbortSession(ctx context.Context, id, reason string) error
	FailSession(ctx context.Context, id, reason string) error
	GetActiveSessions(ctx context.Context) ([]*models.CrawlSession, error)
	GetSessionHistory(ctx context.Context, siteID string, limit int) ([]*models.CrawlSession, error)
	GetSessionStatistics(ctx context.Context, id string) (*models.SessionStats, error)
	CleanupOldSessions(ctx context.Context, days int) (int, error)
}

// QueueStorage - interface for the priority processing queue
type QueueStorage interface {
	EnqueueTask(ctx context.Context, task *models.ProcessingTask) (string, error)
	GetTask(ctx context.Context, id string) (*models.ProcessingTask, error)
	// DequeueNextTask atomically leases the highest-ordered eligible task,
	// or returns nil when no task is eligible.
	DequeueNextTask(ctx context.Context, taskType string) (*models.ProcessingTask, error)
	MarkTaskProcessing(ctx context.Context, id, workerID string) error
	CompleteTask(ctx context.Context, id string, result map[string]interface{}) error
	FailTask(ctx context.Context, id, errorMessage string, retry bool) error
	RetryFailedTasks(ctx context.Context, ids []string) (int, error)
	GetQueueStatus(ctx context.Context) (*models.QueueStatus, error)
	GetStaleTasks(ctx context.Context, leaseTimeout time.Duration) ([]*models.ProcessingTask, error)
	PurgeCompletedTasks(ctx context.Context, hours int) (int, error)
	DeleteTasksByPage(ctx context.Context, pageID string) (int, error)
}

// ChangeStorage - interface for durable content change events
type ChangeStorage interface {
	RecordContentChange(ctx context.Context, change *models.ContentChange) (string, error)
	GetChange(ctx context.Context, id string) (*models.ContentChange, error)
	GetChangesSince(ctx context.Context, siteID string, since time.Time) ([]*models.ContentChange, error)
	GetNewPagesToday(ctx context.Context, siteID string) ([]*models.ContentChange, error)
	GetModifiedPagesSummary(ctx context.Context, days int) (*models.ModifiedPagesSummary, error)
	GetUnnotifiedChanges(ctx context.Context, priority string, limit int) ([]*models.ContentChange, error)
	MarkChangeNotified(ctx context.Context, id string) error
	GetChangeFrequency(ctx context.Context, siteID string, days int) (*models.ChangeFrequency, error)
	CleanupOldChanges(ctx context.Context, days int) (int, error)
}

// AlertStorage - interface for operational alerts
type AlertStorage interface {
	// CreateAlert deduplicates by fingerprint: an existing active alert has
	// its occurrence count incremented and its id returned. A suppressed
	// alert type returns storage.ErrAlertSuppressed.
	CreateAlert(ctx context.Context, alert *models.Alert) (string, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	GetActiveAlerts(ctx context.Context, severity string) ([]*models.Alert, error)
	ResolveAlert(ctx context.Context, id, resolution string) (bool, error)
	SuppressAlertType(ctx context.Context, alertType string, hours int) error
	GetSuppressedAlerts(ctx context.Context) ([]*models.AlertSuppression, error)
	CleanupOldAlerts(ctx context.Context, days int) (int, error)
	GetAlertStatistics(ctx context.Context, days int) (*models.AlertStatistics, error)
	EscalateUnresolvedAlerts(ctx context.Context, hours int) ([]*models.Alert, error)
}

// IndexStorage - interface for the full-text content index
type IndexStorage interface {
	CreateContentIndex(ctx context.Context, entry *models.ContentIndex) (string, error)
	UpsertContentIndex(ctx context.Context, entry *models.ContentIndex) (string, error)
	GetByPageID(ctx context.Context, pageID string) (*models.ContentIndex, error)
	UpdateSearchContent(ctx context.Context, pageID, content string) error
	DeleteByPageID(ctx context.Context, pageID string) error
	SearchContent(ctx context.Context, terms string, metadataFilters map[string]string, limit, skip int) ([]*models.ContentIndex, error)
	GetByAuthor(ctx context.Context, author string) ([]*models.ContentIndex, error)
	GetRecentContent(ctx context.Context, hours, limit int) ([]*models.ContentIndex, error)
	GetMetadataFacets(ctx context.Context) (map[string][]string, error)
	GetContentStatistics(ctx context.Context) (*models.ContentStatistics, error)
	CleanupOrphanedEntries(ctx context.Context, validPageIDs []string) (int, error)
	GetDuplicateContent(ctx context.Context, contentHash string) ([]*models.ContentIndex, error)
	BulkUpsertContentIndexes(ctx context.Context, entries []*models.ContentIndex) (int, error)
}

// AuthorWorkStorage - interface for philosophical work records
type AuthorWorkStorage interface {
	CreateAuthorWork(ctx context.Context, work *models.AuthorWork) (string, error)
	GetAuthorWork(ctx context.Context, id string) (*models.AuthorWork, error)
	GetWorkByWorkID(ctx context.Context, workID string) (*models.AuthorWork, error)
	GetWorksByAuthor(ctx context.Context, author string) ([]*models.AuthorWork, error)
	// GetWorksByYearRange filters on astronomical years (1 BCE = 0).
	GetWorksByYearRange(ctx context.Context, fromYear, toYear int) ([]*models.AuthorWork, error)
}

// SiteMapStorage - interface for passive sitemap snapshots
type SiteMapStorage interface {
	SaveSiteMap(ctx context.Context, siteMap *models.SiteMap) (string, error)
	GetLatestSiteMap(ctx context.Context, siteID string) (*models.SiteMap, error)
	GetSiteMaps(ctx context.Context, siteID string, limit int) ([]*models.SiteMap, error)
}

// RetentionDocument is a collection-agnostic rendering of a stored document
// used by the retention engine for archival. Payload is the JSON form, with
// timestamps already rendered as RFC 3339 strings.
type RetentionDocument struct {
	ID      string
	SortKey time.Time
	Payload map[string]interface{}
}

// RetentionStorage - collection-agnostic access for the retention engine
type RetentionStorage interface {
	EnsurePolicy(ctx context.Context, policy *models.RetentionPolicy) error
	GetPolicies(ctx context.Context) ([]*models.RetentionPolicy, error)
	Collections() []string
	CountDocuments(ctx context.Context, collection string) (int, error)
	CountOlderThan(ctx context.Context, collection string, cutoff time.Time) (int, error)
	// FetchBatchOlderThan streams time-ordered documents older than cutoff,
	// resuming after afterID for pagination.
	FetchBatchOlderThan(ctx context.Context, collection string, cutoff time.Time, afterID string, limit int) ([]*RetentionDocument, error)
	DeleteDocuments(ctx context.Context, collection string, ids []string) (int, error)
}

// MigrationStorage - read-side interface for the schema migration ledger.
// Ledger rows are written inside each migration's transaction, never through
// this interface.
type MigrationStorage interface {
	CurrentVersion(ctx context.Context) (int, error)
	AppliedMigrations(ctx context.Context) ([]*models.MigrationRecord, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	SiteStorage() SiteStorage
	PageStorage() PageStorage
	SessionStorage() SessionStorage
	QueueStorage() QueueStorage
	ChangeStorage() ChangeStorage
	AlertStorage() AlertStorage
	IndexStorage() IndexStorage
	AuthorWorkStorage() AuthorWorkStorage
	SiteMapStorage() SiteMapStorage
	RetentionStorage() RetentionStorage
	MigrationStorage() MigrationStorage

	// Ping is a cheap idempotent health check that bypasses the breaker.
	Ping(ctx context.Context) error
	BreakerState() string
	DB() interface{}
	Close() error
}
