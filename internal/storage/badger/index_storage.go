package badger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

const bulkUpsertBatchSize = 100

// IndexStorage implements interfaces.IndexStorage on badgerhold
type IndexStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewIndexStorage creates a new content index storage instance
func NewIndexStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *IndexStorage {
	return &IndexStorage{db: db, res: res, logger: logger}
}

// CreateContentIndex inserts a page-scoped index entry
func (s *IndexStorage) CreateContentIndex(ctx context.Context, entry *models.ContentIndex) (string, error) {
	if err := validateIndexEntry(entry); err != nil {
		return "", err
	}

	var dupErr error
	err := s.res.Execute(ctx, "create_content_index", func() error {
		dupErr = nil
		var existing models.ContentIndex
		err := s.db.Store().FindOne(&existing, badgerhold.Where("PageID").Eq(entry.PageID))
		if err == nil {
			dupErr = storage.NewDuplicateError("content_index", entry.PageID)
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}

		now := time.Now().UTC()
		entry.ID = common.NewIndexID()
		entry.Metadata = storage.SanitizeStringMap(entry.Metadata)
		entry.ContentHash = common.ComputeContentHash(entry.SearchContent)
		entry.IndexedAt = now
		entry.CreatedAt = now
		entry.UpdatedAt = now
		return s.db.Store().Insert(entry.ID, entry)
	})
	if err != nil {
		return "", err
	}
	if dupErr != nil {
		return "", dupErr
	}
	return entry.ID, nil
}

// UpsertContentIndex updates the entry for the page in place, preserving its
// id and refreshing indexed_at and the hash; a missing entry is created.
func (s *IndexStorage) UpsertContentIndex(ctx context.Context, entry *models.ContentIndex) (string, error) {
	if err := validateIndexEntry(entry); err != nil {
		return "", err
	}

	var id string
	err := s.res.Execute(ctx, "upsert_content_index", func() error {
		id = ""
		now := time.Now().UTC()
		var existing models.ContentIndex
		err := s.db.Store().FindOne(&existing, badgerhold.Where("PageID").Eq(entry.PageID))
		if err == badgerhold.ErrNotFound {
			entry.ID = common.NewIndexID()
			entry.Metadata = storage.SanitizeStringMap(entry.Metadata)
			entry.ContentHash = common.ComputeContentHash(entry.SearchContent)
			entry.IndexedAt = now
			entry.CreatedAt = now
			entry.UpdatedAt = now
			if err := s.db.Store().Insert(entry.ID, entry); err != nil {
				return err
			}
			id = entry.ID
			return nil
		}
		if err != nil {
			return err
		}

		existing.SearchContent = entry.SearchContent
		existing.Metadata = storage.SanitizeStringMap(entry.Metadata)
		existing.ContentHash = common.ComputeContentHash(entry.SearchContent)
		existing.IndexedAt = now
		existing.UpdatedAt = now
		if err := s.db.Store().Update(existing.ID, &existing); err != nil {
			return err
		}
		id = existing.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func validateIndexEntry(entry *models.ContentIndex) error {
	if entry == nil {
		return storage.NewValidationError("entry", "entry is required")
	}
	if err := common.ValidateID(common.PageIDPrefix, entry.PageID); err != nil {
		return &storage.ValidationError{Field: "page_id", Cause: err}
	}
	return nil
}

// GetByPageID returns the index entry for a page
func (s *IndexStorage) GetByPageID(ctx context.Context, pageID string) (*models.ContentIndex, error) {
	if err := common.ValidateID(common.PageIDPrefix, pageID); err != nil {
		return nil, &storage.ValidationError{Field: "page_id", Cause: err}
	}

	var entry models.ContentIndex
	var found bool
	err := s.res.Execute(ctx, "get_by_page_id", func() error {
		found = false
		err := s.db.Store().FindOne(&entry, badgerhold.Where("PageID").Eq(pageID))
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
		return nil, storage.NewNotFoundError("content_index", pageID)
	}
	return &entry, nil
}

// UpdateSearchContent replaces the searchable text for a page
func (s *IndexStorage) UpdateSearchContent(ctx context.Context, pageID, content string) error {
	entry, err := s.GetByPageID(ctx, pageID)
	if err != nil {
		return err
	}

	return s.res.Execute(ctx, "update_search_content", func() error {
		now := time.Now().UTC()
		entry.SearchContent = content
		entry.ContentHash = common.ComputeContentHash(content)
		entry.IndexedAt = now
		entry.UpdatedAt = now
		return s.db.Store().Update(entry.ID, entry)
	})
}

// DeleteByPageID removes the index entry for a page
func (s *IndexStorage) DeleteByPageID(ctx context.Context, pageID string) error {
	if err := common.ValidateID(common.PageIDPrefix, pageID); err != nil {
		return &storage.ValidationError{Field: "page_id", Cause: err}
	}

	return s.res.Execute(ctx, "delete_by_page_id", func() error {
		return s.db.Store().DeleteMatching(&models.ContentIndex{}, badgerhold.Where("PageID").Eq(pageID))
	})
}

// SearchContent runs a case-insensitive full-text search: every term must
// appear in search_content, AND-combined with metadata equality filters.
// Results are ordered by term frequency.
func (s *IndexStorage) SearchContent(ctx context.Context, terms string, metadataFilters map[string]string, limit, skip int) ([]*models.ContentIndex, error) {
	words := strings.Fields(strings.ToLower(terms))
	if len(words) == 0 && len(metadataFilters) == 0 {
		return nil, storage.NewValidationError("terms", "search terms or metadata filters are required")
	}
	if limit <= 0 || limit > maxPageResults {
		limit = defaultPageResults
	}
	if skip < 0 {
		skip = 0
	}
	metadataFilters = storage.SanitizeStringMap(metadataFilters)

	type scored struct {
		entry *models.ContentIndex
		score int
	}

	var results []*models.ContentIndex
	err := s.res.Execute(ctx, "search_content", func() error {
		results = nil
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}

		var matched []scored
		for i := range all {
			entry := &all[i]
			if !metadataMatches(entry.Metadata, metadataFilters) {
				continue
			}
			content := strings.ToLower(entry.SearchContent)
			score := 0
			ok := true
			for _, word := range words {
				n := strings.Count(content, word)
				if n == 0 {
					ok = false
					break
				}
				score += n
			}
			if !ok {
				continue
			}
			matched = append(matched, scored{entry: entry, score: score})
		}

		sort.SliceStable(matched, func(i, j int) bool {
			if matched[i].score != matched[j].score {
				return matched[i].score > matched[j].score
			}
			return matched[i].entry.IndexedAt.After(matched[j].entry.IndexedAt)
		})

		for i, m := range matched {
			if i < skip {
				continue
			}
			results = append(results, m.entry)
			if len(results) >= limit {
				break
			}
		}
		return nil
	})
	return results, err
}

func metadataMatches(metadata map[string]string, filters map[string]string) bool {
	for key, want := range filters {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// GetByAuthor filters entries by the author metadata key, case-insensitive
func (s *IndexStorage) GetByAuthor(ctx context.Context, author string) ([]*models.ContentIndex, error) {
	needle := strings.ToLower(strings.TrimSpace(author))
	if needle == "" {
		return nil, storage.NewValidationError("author", "author is required")
	}

	var entries []*models.ContentIndex
	err := s.res.Execute(ctx, "get_by_author", func() error {
		entries = nil
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if strings.ToLower(all[i].Metadata["author"]) == needle {
				entries = append(entries, &all[i])
			}
		}
		return nil
	})
	return entries, err
}

// GetRecentContent returns entries indexed within the past hours
func (s *IndexStorage) GetRecentContent(ctx context.Context, hours, limit int) ([]*models.ContentIndex, error) {
	if hours <= 0 {
		return nil, storage.NewValidationError("hours", "hours must be positive")
	}
	if limit <= 0 || limit > maxPageResults {
		limit = defaultPageResults
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var entries []*models.ContentIndex
	err := s.res.Execute(ctx, "get_recent_content", func() error {
		entries = nil
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].IndexedAt.After(all[j].IndexedAt)
		})
		for i := range all {
			if all[i].IndexedAt.Before(cutoff) {
				continue
			}
			entries = append(entries, &all[i])
			if len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// GetMetadataFacets returns every metadata key with its sorted distinct values
func (s *IndexStorage) GetMetadataFacets(ctx context.Context) (map[string][]string, error) {
	facets := map[string][]string{}
	err := s.res.Execute(ctx, "get_metadata_facets", func() error {
		sets := map[string]map[string]bool{}
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			for key, value := range all[i].Metadata {
				if sets[key] == nil {
					sets[key] = map[string]bool{}
				}
				sets[key][value] = true
			}
		}
		facets = map[string][]string{}
		for key, values := range sets {
			sorted := make([]string, 0, len(values))
			for v := range values {
				sorted = append(sorted, v)
			}
			sort.Strings(sorted)
			facets[key] = sorted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return facets, nil
}

// GetContentStatistics summarizes the index collection
func (s *IndexStorage) GetContentStatistics(ctx context.Context) (*models.ContentStatistics, error) {
	stats := &models.ContentStatistics{}
	err := s.res.Execute(ctx, "get_content_statistics", func() error {
		*stats = models.ContentStatistics{}
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			stats.TotalEntries++
			stats.TotalContentSize += int64(len(all[i].SearchContent))
			indexed := all[i].IndexedAt
			if stats.OldestIndexedAt == nil || indexed.Before(*stats.OldestIndexedAt) {
				t := indexed
				stats.OldestIndexedAt = &t
			}
			if stats.NewestIndexedAt == nil || indexed.After(*stats.NewestIndexedAt) {
				t := indexed
				stats.NewestIndexedAt = &t
			}
		}
		if stats.TotalEntries > 0 {
			stats.AvgContentSize = float64(stats.TotalContentSize) / float64(stats.TotalEntries)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// CleanupOrphanedEntries removes entries whose page id is not in the valid set
func (s *IndexStorage) CleanupOrphanedEntries(ctx context.Context, validPageIDs []string) (int, error) {
	valid := make(map[string]bool, len(validPageIDs))
	for _, id := range validPageIDs {
		valid[id] = true
	}

	var removed int
	err := s.res.Execute(ctx, "cleanup_orphaned_entries", func() error {
		removed = 0
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if valid[all[i].PageID] {
				continue
			}
			if err := s.db.Store().Delete(all[i].ID, &models.ContentIndex{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Orphaned content index entries cleaned up")
	}
	return removed, nil
}

// GetDuplicateContent returns every entry sharing a content hash
func (s *IndexStorage) GetDuplicateContent(ctx context.Context, contentHash string) ([]*models.ContentIndex, error) {
	if !common.IsContentHash(contentHash) {
		return nil, storage.NewValidationError("content_hash", "not a SHA-256 hex digest")
	}

	var entries []*models.ContentIndex
	err := s.res.Execute(ctx, "get_duplicate_content", func() error {
		entries = nil
		var all []models.ContentIndex
		if err := s.db.Store().Find(&all, badgerhold.Where("ContentHash").Eq(contentHash).Index("ContentHash")); err != nil {
			return err
		}
		for i := range all {
			entries = append(entries, &all[i])
		}
		return nil
	})
	return entries, err
}

// BulkUpsertContentIndexes upserts entries in batches of 100 and returns
// the number processed.
func (s *IndexStorage) BulkUpsertContentIndexes(ctx context.Context, entries []*models.ContentIndex) (int, error) {
	processed := 0
	for start := 0; start < len(entries); start += bulkUpsertBatchSize {
		end := start + bulkUpsertBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		for _, entry := range entries[start:end] {
			if _, err := s.UpsertContentIndex(ctx, entry); err != nil {
				return processed, err
			}
			processed++
		}
		s.logger.Debug().Int("processed", processed).Int("total", len(entries)).Msg("Bulk upsert batch committed")
	}
	return processed, nil
}
