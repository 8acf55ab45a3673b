package badger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

const (
	maxPageResults     = 500
	defaultPageResults = 100
	maxPageVersions    = 10
)

// PageStorage implements interfaces.PageStorage on badgerhold
type PageStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
	mu     sync.Mutex // serializes create against the (site, url) uniqueness check
}

// NewPageStorage creates a new page storage instance
func NewPageStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *PageStorage {
	return &PageStorage{db: db, res: res, logger: logger}
}

// CreatePage verifies the site, normalizes the URL, enforces per-site URL
// uniqueness, and inserts the page with processing_status=pending.
func (s *PageStorage) CreatePage(ctx context.Context, create *models.PageCreate) (string, error) {
	if create == nil {
		return "", storage.NewValidationError("page", "page is required")
	}
	if err := common.ValidateID(common.SiteIDPrefix, create.SiteID); err != nil {
		return "", &storage.ValidationError{Field: "site_id", Cause: err}
	}
	if create.Metadata.WordCount < 0 || create.Metadata.ReadingTime < 0 {
		return "", storage.NewValidationError("metadata", "word_count and reading_time must be non-negative")
	}

	normalized, err := common.NormalizePageURL(create.URL)
	if err != nil {
		return "", &storage.ValidationError{Field: "url", Cause: err}
	}

	// The site must exist before any page is attached to it
	var siteMissing bool
	err = s.res.Execute(ctx, "create_page_site_check", func() error {
		siteMissing = false
		var site models.Site
		err := s.db.Store().Get(create.SiteID, &site)
		if err == badgerhold.ErrNotFound {
			siteMissing = true
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if siteMissing {
		return "", storage.NewNotFoundError("site", create.SiteID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	page := &models.Page{
		SiteID:           create.SiteID,
		URL:              normalized,
		Title:            create.Title,
		Content:          create.Content,
		Author:           create.Author,
		PublishedDate:    create.PublishedDate,
		ProcessingStatus: models.PageStatusPending,
		Metadata:         create.Metadata,
		RedirectHistory:  create.Redirects,
		ContentLength:    len(create.Content),
	}
	if create.Content != "" {
		page.ContentHash = common.ComputeContentHash(create.Content)
	}

	var dupErr error
	err = s.res.Execute(ctx, "create_page", func() error {
		dupErr = nil
		var existing models.Page
		err := s.db.Store().FindOne(&existing,
			badgerhold.Where("SiteID").Eq(create.SiteID).And("URL").Eq(normalized))
		if err == nil {
			dupErr = storage.NewDuplicateError("page", create.SiteID+" "+normalized)
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}

		now := time.Now().UTC()
		page.ID = common.NewPageID()
		page.CreatedAt = now
		page.UpdatedAt = now
		return s.db.Store().Insert(page.ID, page)
	})
	if err != nil {
		return "", err
	}
	if dupErr != nil {
		return "", dupErr
	}

	s.logger.Debug().Str("page_id", page.ID).Str("url", normalized).Msg("Page created")
	return page.ID, nil
}

// GetPage returns one page by id
func (s *PageStorage) GetPage(ctx context.Context, id string) (*models.Page, error) {
	if err := common.ValidateID(common.PageIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "page_id", Cause: err}
	}

	var page models.Page
	var found bool
	err := s.res.Execute(ctx, "get_page", func() error {
		found = false
		err := s.db.Store().Get(id, &page)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.NewNotFoundError("page", id)
	}
	return &page, nil
}

// GetPageByURL normalizes the URL and looks the page up
func (s *PageStorage) GetPageByURL(ctx context.Context, rawURL string) (*models.Page, error) {
	normalized, err := common.NormalizePageURL(rawURL)
	if err != nil {
		return nil, &storage.ValidationError{Field: "url", Cause: err}
	}

	var page models.Page
	var found bool
	err = s.res.Execute(ctx, "get_page_by_url", func() error {
		found = false
		err := s.db.Store().FindOne(&page, badgerhold.Where("URL").Eq(normalized))
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.NewNotFoundError("page", normalized)
	}
	return &page, nil
}

// UpdatePageContent replaces the page content, snapshots the previous
// version, refreshes the hash, and resets processing_status to pending.
func (s *PageStorage) UpdatePageContent(ctx context.Context, id, content string) error {
	return s.mutatePage(ctx, "update_page_content", id, func(page *models.Page) error {
		now := time.Now().UTC()
		if page.Content != "" && page.Content != content {
			page.Versions = append(page.Versions, models.PageVersion{
				Content:     page.Content,
				ContentHash: page.ContentHash,
				At:          now,
			})
			if len(page.Versions) > maxPageVersions {
				page.Versions = page.Versions[len(page.Versions)-maxPageVersions:]
			}
		}
		page.Content = content
		page.ContentHash = common.ComputeContentHash(content)
		page.ContentLength = len(content)
		page.LastModified = &now
		page.ProcessingStatus = models.PageStatusPending
		return nil
	})
}

// GetPagesBySite returns pages for a site, newest first, capped by limit
func (s *PageStorage) GetPagesBySite(ctx context.Context, siteID string, limit int) ([]*models.Page, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}
	limit = clampLimit(limit)

	var pages []*models.Page
	err := s.res.Execute(ctx, "get_pages_by_site", func() error {
		pages = nil
		var all []models.Page
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		})
		for i := range all {
			if i >= limit {
				break
			}
			pages = append(pages, &all[i])
		}
		return nil
	})
	return pages, err
}

// GetPagesModifiedSince returns pages of a site modified after the given time
func (s *PageStorage) GetPagesModifiedSince(ctx context.Context, siteID string, since time.Time) ([]*models.Page, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}

	var pages []*models.Page
	err := s.res.Execute(ctx, "get_pages_modified_since", func() error {
		pages = nil
		var all []models.Page
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		for i := range all {
			if all[i].LastModified != nil && all[i].LastModified.After(since) {
				pages = append(pages, &all[i])
			}
		}
		return nil
	})
	return pages, err
}

// MarkPageProcessed stamps the page processed with opaque processing info
func (s *PageStorage) MarkPageProcessed(ctx context.Context, id string, info map[string]interface{}) error {
	return s.mutatePage(ctx, "mark_page_processed", id, func(page *models.Page) error {
		now := time.Now().UTC()
		page.ProcessingStatus = models.PageStatusProcessed
		page.ProcessedAt = &now
		page.ProcessingInfo = storage.SanitizeMap(info)
		return nil
	})
}

// GetUnprocessedPages returns pages in pending or failed state
func (s *PageStorage) GetUnprocessedPages(ctx context.Context, siteID string, limit int) ([]*models.Page, error) {
	if siteID != "" {
		if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
			return nil, &storage.ValidationError{Field: "site_id", Cause: err}
		}
	}
	limit = clampLimit(limit)

	var pages []*models.Page
	err := s.res.Execute(ctx, "get_unprocessed_pages", func() error {
		pages = nil
		var all []models.Page
		query := badgerhold.Where("ProcessingStatus").In(models.PageStatusPending, models.PageStatusFailed)
		if err := s.db.Store().Find(&all, query); err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		})
		for i := range all {
			if siteID != "" && all[i].SiteID != siteID {
				continue
			}
			pages = append(pages, &all[i])
			if len(pages) >= limit {
				break
			}
		}
		return nil
	})
	return pages, err
}

// CheckContentExists reports whether any page already carries this hash
func (s *PageStorage) CheckContentExists(ctx context.Context, contentHash string) (bool, error) {
	if !common.IsContentHash(contentHash) {
		return false, storage.NewValidationError("content_hash", "not a SHA-256 hex digest")
	}

	var exists bool
	err := s.res.Execute(ctx, "check_content_exists", func() error {
		n, err := s.db.Store().Count(&models.Page{}, badgerhold.Where("ContentHash").Eq(contentHash).Index("ContentHash"))
		if err != nil {
			return err
		}
		exists = n > 0
		return nil
	})
	return exists, err
}

// GetPagesByAuthor does a case-insensitive contains match on the author
func (s *PageStorage) GetPagesByAuthor(ctx context.Context, author string) ([]*models.Page, error) {
	needle := strings.ToLower(strings.TrimSpace(author))
	if needle == "" {
		return nil, storage.NewValidationError("author", "author is required")
	}

	var pages []*models.Page
	err := s.res.Execute(ctx, "get_pages_by_author", func() error {
		pages = nil
		var all []models.Page
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if strings.Contains(strings.ToLower(all[i].Author), needle) ||
				strings.Contains(strings.ToLower(all[i].Metadata.Author), needle) {
				pages = append(pages, &all[i])
			}
		}
		return nil
	})
	return pages, err
}

// BulkUpdateProcessingStatus updates every listed page in one transaction;
// either all pages move to the new status or none do.
func (s *PageStorage) BulkUpdateProcessingStatus(ctx context.Context, ids []string, status string) error {
	switch status {
	case models.PageStatusPending, models.PageStatusProcessing, models.PageStatusProcessed, models.PageStatusFailed:
	default:
		return storage.NewValidationError("status", "unknown processing status "+status)
	}
	for _, id := range ids {
		if err := common.ValidateID(common.PageIDPrefix, id); err != nil {
			return &storage.ValidationError{Field: "page_id", Cause: err}
		}
	}

	return s.res.Execute(ctx, "bulk_update_processing_status", func() error {
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			now := time.Now().UTC()
			for _, id := range ids {
				var page models.Page
				if err := s.db.Store().TxGet(txn, id, &page); err != nil {
					if err == badgerhold.ErrNotFound {
						return storage.NewNotFoundError("page", id)
					}
					return err
				}
				page.ProcessingStatus = status
				page.UpdatedAt = now
				if err := s.db.Store().TxUpdate(txn, id, &page); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			if storage.IsNotFound(err) {
				return err
			}
			return &storage.TransactionError{Operation: "bulk_update_processing_status", Cause: err}
		}
		return nil
	})
}

// GetPageStatistics aggregates counts by status for a site
func (s *PageStorage) GetPageStatistics(ctx context.Context, siteID string) (*models.PageStatistics, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}

	stats := &models.PageStatistics{SiteID: siteID, ByStatus: map[string]int{}}
	err := s.res.Execute(ctx, "get_page_statistics", func() error {
		stats.Total = 0
		stats.ByStatus = map[string]int{}
		stats.LastModifiedMax = nil

		var all []models.Page
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		for i := range all {
			stats.Total++
			stats.ByStatus[all[i].ProcessingStatus]++
			lm := all[i].LastModified
			if lm != nil && (stats.LastModifiedMax == nil || lm.After(*stats.LastModifiedMax)) {
				stats.LastModifiedMax = lm
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeletePage removes a page together with its content index entry in one
// transaction. Admin tooling only; the crawl core never deletes pages.
func (s *PageStorage) DeletePage(ctx context.Context, id string) error {
	if err := common.ValidateID(common.PageIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "page_id", Cause: err}
	}

	return s.res.Execute(ctx, "delete_page", func() error {
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			if err := s.db.Store().TxDelete(txn, id, &models.Page{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			return s.db.Store().TxDeleteMatching(txn, &models.ContentIndex{}, badgerhold.Where("PageID").Eq(id))
		})
		if err != nil {
			return &storage.TransactionError{Operation: "delete_page", Cause: err}
		}
		return nil
	})
}

// CountPages returns the total number of pages
func (s *PageStorage) CountPages(ctx context.Context) (int, error) {
	var count int
	err := s.res.Execute(ctx, "count_pages", func() error {
		n, err := s.db.Store().Count(&models.Page{}, nil)
		if err != nil {
			return err
		}
		count = int(n)
		return nil
	})
	return count, err
}

func (s *PageStorage) mutatePage(ctx context.Context, operation, id string, fn func(*models.Page) error) error {
	if err := common.ValidateID(common.PageIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "page_id", Cause: err}
	}

	var notFound bool
	err := s.res.Execute(ctx, operation, func() error {
		notFound = false
		var page models.Page
		err := s.db.Store().Get(id, &page)
		if err == badgerhold.ErrNotFound {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(&page); err != nil {
			return err
		}
		page.UpdatedAt = time.Now().UTC()
		return s.db.Store().Update(id, &page)
	})
	if err != nil {
		return err
	}
	if notFound {
		return storage.NewNotFoundError("page", id)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageResults
	}
	if limit > maxPageResults {
		return maxPageResults
	}
	return limit
}
