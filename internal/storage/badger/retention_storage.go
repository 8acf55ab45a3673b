package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/interfaces"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// Collections the retention engine may govern, keyed to their model type
// and the timestamp their age is measured by.
const (
	collectionContentChanges  = "content_changes"
	collectionCrawlSessions   = "crawl_sessions"
	collectionAlerts          = "alerts"
	collectionProcessingQueue = "processing_queue"
)

// RetentionStorage implements interfaces.RetentionStorage on badgerhold.
// It gives the retention engine a collection-agnostic view over the typed
// collections: counting, time-ordered batch streaming, and deletion.
type RetentionStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewRetentionStorage creates a new retention storage instance
func NewRetentionStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *RetentionStorage {
	return &RetentionStorage{db: db, res: res, logger: logger}
}

// Collections lists the collections retention policies may target
func (s *RetentionStorage) Collections() []string {
	return []string{
		collectionContentChanges,
		collectionCrawlSessions,
		collectionAlerts,
		collectionProcessingQueue,
	}
}

func (s *RetentionStorage) knownCollection(collection string) bool {
	for _, c := range s.Collections() {
		if c == collection {
			return true
		}
	}
	return false
}

// EnsurePolicy persists a per-collection policy record, idempotently. An
// existing record with the same settings is left alone; changed settings
// are written through.
func (s *RetentionStorage) EnsurePolicy(ctx context.Context, policy *models.RetentionPolicy) error {
	if policy == nil {
		return storage.NewValidationError("policy", "policy is required")
	}
	if !s.knownCollection(policy.Collection) {
		return storage.NewValidationError("collection", fmt.Sprintf("unknown collection %q", policy.Collection))
	}
	if policy.RetentionDays <= 0 {
		return storage.NewValidationError("retention_days", "retention days must be positive")
	}
	if policy.ArchiveEnabled && policy.ArchiveAfterDays >= policy.RetentionDays {
		return storage.NewValidationError("archive_after_days", "archive threshold must precede the retention cutoff")
	}

	return s.res.Execute(ctx, "ensure_retention_policy", func() error {
		now := time.Now().UTC()
		var existing models.RetentionPolicy
		err := s.db.Store().Get(policy.Collection, &existing)
		if err == nil {
			if existing.TTLField == policy.TTLField &&
				existing.RetentionDays == policy.RetentionDays &&
				existing.ArchiveEnabled == policy.ArchiveEnabled &&
				existing.ArchiveAfterDays == policy.ArchiveAfterDays &&
				existing.CompressionEnabled == policy.CompressionEnabled {
				return nil
			}
			existing.TTLField = policy.TTLField
			existing.RetentionDays = policy.RetentionDays
			existing.ArchiveEnabled = policy.ArchiveEnabled
			existing.ArchiveAfterDays = policy.ArchiveAfterDays
			existing.CompressionEnabled = policy.CompressionEnabled
			existing.UpdatedAt = now
			return s.db.Store().Update(policy.Collection, &existing)
		}
		if err != badgerhold.ErrNotFound {
			return err
		}
		policy.CreatedAt = now
		policy.UpdatedAt = now
		return s.db.Store().Insert(policy.Collection, policy)
	})
}

// GetPolicies returns all persisted retention policies
func (s *RetentionStorage) GetPolicies(ctx context.Context) ([]*models.RetentionPolicy, error) {
	var policies []*models.RetentionPolicy
	err := s.res.Execute(ctx, "get_retention_policies", func() error {
		policies = nil
		var all []models.RetentionPolicy
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			policies = append(policies, &all[i])
		}
		sort.SliceStable(policies, func(i, j int) bool {
			return policies[i].Collection < policies[j].Collection
		})
		return nil
	})
	return policies, err
}

// CountDocuments returns the collection's total document count
func (s *RetentionStorage) CountDocuments(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.res.Execute(ctx, "count_documents", func() error {
		docs, err := s.fetchAll(collection)
		if err != nil {
			return err
		}
		count = len(docs)
		return nil
	})
	return count, err
}

// CountOlderThan counts documents whose retention timestamp precedes cutoff
func (s *RetentionStorage) CountOlderThan(ctx context.Context, collection string, cutoff time.Time) (int, error) {
	var count int
	err := s.res.Execute(ctx, "count_older_than", func() error {
		count = 0
		docs, err := s.fetchAll(collection)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.SortKey.Before(cutoff) {
				count++
			}
		}
		return nil
	})
	return count, err
}

// FetchBatchOlderThan streams documents older than cutoff in (timestamp, id)
// order, resuming after afterID. An empty afterID starts from the beginning.
func (s *RetentionStorage) FetchBatchOlderThan(ctx context.Context, collection string, cutoff time.Time, afterID string, limit int) ([]*interfaces.RetentionDocument, error) {
	if limit <= 0 {
		return nil, storage.NewValidationError("limit", "limit must be positive")
	}

	var batch []*interfaces.RetentionDocument
	err := s.res.Execute(ctx, "fetch_batch_older_than", func() error {
		batch = nil
		docs, err := s.fetchAll(collection)
		if err != nil {
			return err
		}

		var eligible []*interfaces.RetentionDocument
		for _, doc := range docs {
			if doc.SortKey.Before(cutoff) {
				eligible = append(eligible, doc)
			}
		}
		sort.SliceStable(eligible, func(i, j int) bool {
			if !eligible[i].SortKey.Equal(eligible[j].SortKey) {
				return eligible[i].SortKey.Before(eligible[j].SortKey)
			}
			return eligible[i].ID < eligible[j].ID
		})

		start := 0
		if afterID != "" {
			for i, doc := range eligible {
				if doc.ID == afterID {
					start = i + 1
					break
				}
			}
		}
		for i := start; i < len(eligible) && len(batch) < limit; i++ {
			batch = append(batch, eligible[i])
		}
		return nil
	})
	return batch, err
}

// DeleteDocuments removes documents by id and returns the number deleted.
// Already-missing ids are skipped, so retries after a partial failure are safe.
func (s *RetentionStorage) DeleteDocuments(ctx context.Context, collection string, ids []string) (int, error) {
	target, err := s.zeroValue(collection)
	if err != nil {
		return 0, err
	}

	var deleted int
	err = s.res.Execute(ctx, "delete_documents", func() error {
		deleted = 0
		for _, id := range ids {
			if err := s.db.Store().Delete(id, target); err != nil {
				if err == badgerhold.ErrNotFound {
					continue
				}
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *RetentionStorage) zeroValue(collection string) (interface{}, error) {
	switch collection {
	case collectionContentChanges:
		return &models.ContentChange{}, nil
	case collectionCrawlSessions:
		return &models.CrawlSession{}, nil
	case collectionAlerts:
		return &models.Alert{}, nil
	case collectionProcessingQueue:
		return &models.ProcessingTask{}, nil
	default:
		return nil, storage.NewValidationError("collection", fmt.Sprintf("unknown collection %q", collection))
	}
}

// fetchAll loads a collection and renders each document into the
// collection-agnostic form the retention engine archives: the JSON shape of
// the model, timestamps as RFC 3339 strings.
func (s *RetentionStorage) fetchAll(collection string) ([]*interfaces.RetentionDocument, error) {
	switch collection {
	case collectionContentChanges:
		var all []models.ContentChange
		if err := s.db.Store().Find(&all, nil); err != nil {
			return nil, err
		}
		docs := make([]*interfaces.RetentionDocument, 0, len(all))
		for i := range all {
			doc, err := renderDocument(all[i].ID, all[i].DetectedAt, &all[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	case collectionCrawlSessions:
		var all []models.CrawlSession
		if err := s.db.Store().Find(&all, nil); err != nil {
			return nil, err
		}
		docs := make([]*interfaces.RetentionDocument, 0, len(all))
		for i := range all {
			doc, err := renderDocument(all[i].ID, all[i].StartedAt, &all[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	case collectionAlerts:
		var all []models.Alert
		if err := s.db.Store().Find(&all, nil); err != nil {
			return nil, err
		}
		docs := make([]*interfaces.RetentionDocument, 0, len(all))
		for i := range all {
			doc, err := renderDocument(all[i].ID, all[i].CreatedAt, &all[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	case collectionProcessingQueue:
		var all []models.ProcessingTask
		if err := s.db.Store().Find(&all, nil); err != nil {
			return nil, err
		}
		docs := make([]*interfaces.RetentionDocument, 0, len(all))
		for i := range all {
			doc, err := renderDocument(all[i].ID, all[i].CreatedAt, &all[i])
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	default:
		return nil, storage.NewValidationError("collection", fmt.Sprintf("unknown collection %q", collection))
	}
}

func renderDocument(id string, sortKey time.Time, model interface{}) (*interfaces.RetentionDocument, error) {
	raw, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("render document %s: %w", id, err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("render document %s: %w", id, err)
	}
	return &interfaces.RetentionDocument{ID: id, SortKey: sortKey, Payload: payload}, nil
}
