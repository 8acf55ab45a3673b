package retention

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/interfaces"
	"github.com/scriptorium-dev/scriptorium/internal/models"
)

const (
	archiveBatchSize = 1000
	// nearingExpiryWindow is how close to the cutoff a document must be to
	// count as nearing expiry in status reports.
	nearingExpiryWindow = 7 * 24 * time.Hour
)

// Service is the retention engine: idempotent policy setup, age-based
// expiry, and streaming cold archival of eligible documents.
type Service struct {
	store   interfaces.RetentionStorage
	sink    interfaces.ArchiveSink
	cfg     common.RetentionConfig
	logger  arbor.ILogger
	limiter *rate.Limiter
}

// NewService creates a retention service. sink may be nil when no collection
// has archival enabled.
func NewService(store interfaces.RetentionStorage, sink interfaces.ArchiveSink, cfg common.RetentionConfig, logger arbor.ILogger) *Service {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.BatchesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSec), 1)
	}
	return &Service{store: store, sink: sink, cfg: cfg, logger: logger, limiter: limiter}
}

// EnsureTTLPolicies persists the configured per-collection policies,
// idempotently. In dry-run mode it logs what would be written and touches
// nothing.
func (s *Service) EnsureTTLPolicies(ctx context.Context) error {
	for _, collection := range s.store.Collections() {
		policyCfg, ok := s.cfg.Policies[collection]
		if !ok {
			continue
		}

		if s.cfg.DryRun {
			s.logger.Info().
				Str("collection", collection).
				Int("retention_days", policyCfg.RetentionDays).
				Bool("archive_enabled", policyCfg.ArchiveEnabled).
				Msg("Dry run: would ensure retention policy")
			continue
		}

		policy := &models.RetentionPolicy{
			Collection:         collection,
			TTLField:           policyCfg.TTLField,
			RetentionDays:      policyCfg.RetentionDays,
			ArchiveEnabled:     policyCfg.ArchiveEnabled,
			ArchiveAfterDays:   policyCfg.ArchiveAfterDays,
			CompressionEnabled: policyCfg.CompressionEnabled,
		}
		if err := s.store.EnsurePolicy(ctx, policy); err != nil {
			return fmt.Errorf("ensure policy for %s: %w", collection, err)
		}
		s.logger.Debug().Str("collection", collection).Int("retention_days", policy.RetentionDays).Msg("Retention policy ensured")
	}
	return nil
}

// ExpireDocuments deletes documents older than each persisted policy's
// retention window and returns per-collection delete counts.
func (s *Service) ExpireDocuments(ctx context.Context) (map[string]int, error) {
	policies, err := s.store.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}

	deleted := map[string]int{}
	for _, policy := range policies {
		cutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays)

		if s.cfg.DryRun {
			count, err := s.store.CountOlderThan(ctx, policy.Collection, cutoff)
			if err != nil {
				return deleted, err
			}
			s.logger.Info().Str("collection", policy.Collection).Int("count", count).Msg("Dry run: would expire documents")
			continue
		}

		total := 0
		for {
			batch, err := s.store.FetchBatchOlderThan(ctx, policy.Collection, cutoff, "", archiveBatchSize)
			if err != nil {
				return deleted, err
			}
			if len(batch) == 0 {
				break
			}
			ids := make([]string, len(batch))
			for i, doc := range batch {
				ids[i] = doc.ID
			}
			n, err := s.store.DeleteDocuments(ctx, policy.Collection, ids)
			if err != nil {
				return deleted, err
			}
			total += n
		}
		deleted[policy.Collection] = total
		if total > 0 {
			s.logger.Info().Str("collection", policy.Collection).Int("deleted", total).Msg("Expired documents removed")
		}
	}
	return deleted, nil
}

// ArchiveOldDocuments streams documents past the collection's archive
// threshold in batches, uploads each batch as one object, and deletes a
// batch only after its upload succeeds. An upload failure stops the run and
// leaves every not-yet-uploaded document in place.
func (s *Service) ArchiveOldDocuments(ctx context.Context, collection string) ([]*models.ArchiveBatchInfo, error) {
	policy, err := s.policyFor(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !policy.ArchiveEnabled {
		return nil, nil
	}
	if s.sink == nil {
		return nil, fmt.Errorf("archival enabled for %s but no archive sink configured", collection)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -policy.ArchiveAfterDays)

	var batches []*models.ArchiveBatchInfo
	afterID := ""
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return batches, err
		}

		batch, err := s.store.FetchBatchOlderThan(ctx, collection, cutoff, afterID, archiveBatchSize)
		if err != nil {
			return batches, err
		}
		if len(batch) == 0 {
			break
		}

		firstID, lastID := batch[0].ID, batch[len(batch)-1].ID
		suffix := ".json"
		if policy.CompressionEnabled {
			suffix = ".json.gz"
		}
		key := fmt.Sprintf("archives/%s/%d_%s_%s%s", collection, time.Now().UTC().Unix(), firstID, lastID, suffix)

		if s.cfg.DryRun {
			s.logger.Info().Str("collection", collection).Str("key", key).Int("documents", len(batch)).Msg("Dry run: would archive batch")
			afterID = lastID
			continue
		}

		data, err := encodeBatch(batch, policy.CompressionEnabled)
		if err != nil {
			return batches, fmt.Errorf("encode archive batch for %s: %w", collection, err)
		}

		metadata := map[string]string{
			"collection":     collection,
			"document_count": fmt.Sprintf("%d", len(batch)),
			"archive_date":   time.Now().UTC().Format(time.RFC3339),
		}
		if err := s.sink.Upload(ctx, key, data, metadata); err != nil {
			return batches, fmt.Errorf("upload archive batch %s: %w", key, err)
		}

		ids := make([]string, len(batch))
		for i, doc := range batch {
			ids[i] = doc.ID
		}
		if _, err := s.store.DeleteDocuments(ctx, collection, ids); err != nil {
			return batches, fmt.Errorf("delete archived batch %s: %w", key, err)
		}

		info := &models.ArchiveBatchInfo{
			Collection:    collection,
			Key:           key,
			DocumentCount: len(batch),
			FirstID:       firstID,
			LastID:        lastID,
			ArchivedAt:    time.Now().UTC(),
		}
		batches = append(batches, info)
		s.logger.Info().Str("collection", collection).Str("key", key).Int("documents", len(batch)).Msg("Archive batch uploaded")

		// Documents were deleted, so the next fetch restarts from the head.
		afterID = ""
	}
	return batches, nil
}

func (s *Service) policyFor(ctx context.Context, collection string) (*models.RetentionPolicy, error) {
	policies, err := s.store.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}
	for _, policy := range policies {
		if policy.Collection == collection {
			return policy, nil
		}
	}
	return nil, fmt.Errorf("no retention policy for collection %s", collection)
}

func encodeBatch(batch []*interfaces.RetentionDocument, compress bool) ([]byte, error) {
	payloads := make([]map[string]interface{}, len(batch))
	for i, doc := range batch {
		payloads[i] = doc.Payload
	}
	raw, err := json.Marshal(payloads)
	if err != nil {
		return nil, err
	}
	if !compress {
		return raw, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetRetentionStatus reports, per persisted policy, the collection's total
// count and how many documents fall within the nearing-expiry window.
func (s *Service) GetRetentionStatus(ctx context.Context) ([]*models.CollectionRetentionStatus, error) {
	policies, err := s.store.GetPolicies(ctx)
	if err != nil {
		return nil, err
	}
	byCollection := map[string]*models.RetentionPolicy{}
	for _, policy := range policies {
		byCollection[policy.Collection] = policy
	}

	var statuses []*models.CollectionRetentionStatus
	for _, collection := range s.store.Collections() {
		status := &models.CollectionRetentionStatus{Collection: collection}
		total, err := s.store.CountDocuments(ctx, collection)
		if err != nil {
			return nil, err
		}
		status.TotalCount = total

		if policy, ok := byCollection[collection]; ok {
			status.PolicyExists = true
			status.RetentionDays = policy.RetentionDays
			nearCutoff := time.Now().UTC().AddDate(0, 0, -policy.RetentionDays).Add(nearingExpiryWindow)
			nearing, err := s.store.CountOlderThan(ctx, collection, nearCutoff)
			if err != nil {
				return nil, err
			}
			status.NearingExpiry = nearing
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RunMaintenance ensures policies, then archives every archive-enabled
// collection, then expires per policy.
func (s *Service) RunMaintenance(ctx context.Context) error {
	if err := s.EnsureTTLPolicies(ctx); err != nil {
		return err
	}

	policies, err := s.store.GetPolicies(ctx)
	if err != nil {
		return err
	}
	for _, policy := range policies {
		if !policy.ArchiveEnabled {
			continue
		}
		if _, err := s.ArchiveOldDocuments(ctx, policy.Collection); err != nil {
			return err
		}
	}

	if _, err := s.ExpireDocuments(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("Retention maintenance completed")
	return nil
}
