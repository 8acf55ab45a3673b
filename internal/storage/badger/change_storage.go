package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

const defaultChangeResults = 100

// ChangeStorage implements interfaces.ChangeStorage on badgerhold
type ChangeStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewChangeStorage creates a new content change storage instance
func NewChangeStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *ChangeStorage {
	return &ChangeStorage{db: db, res: res, logger: logger}
}

// RecordContentChange validates the change, auto-fills url/title from the
// page for new/modified, derives the priority, and inserts the event.
func (s *ChangeStorage) RecordContentChange(ctx context.Context, change *models.ContentChange) (string, error) {
	if change == nil {
		return "", storage.NewValidationError("change", "change is required")
	}
	switch change.ChangeType {
	case models.ChangeTypeNew, models.ChangeTypeModified, models.ChangeTypeDeleted:
	default:
		return "", storage.NewValidationError("change_type", fmt.Sprintf("unknown change type %q", change.ChangeType))
	}
	if err := common.ValidateID(common.PageIDPrefix, change.PageID); err != nil {
		return "", &storage.ValidationError{Field: "page_id", Cause: err}
	}
	if change.SiteID != "" {
		if err := common.ValidateID(common.SiteIDPrefix, change.SiteID); err != nil {
			return "", &storage.ValidationError{Field: "site_id", Cause: err}
		}
	}

	change.Context = storage.SanitizeMap(change.Context)

	// new and modified must reference a page that currently exists; deleted
	// keeps the historical page id even after the page row is purged
	if change.ChangeType != models.ChangeTypeDeleted {
		var pageMissing bool
		err := s.res.Execute(ctx, "record_content_change_page_check", func() error {
			pageMissing = false
			var page models.Page
			err := s.db.Store().Get(change.PageID, &page)
			if err == badgerhold.ErrNotFound {
				pageMissing = true
				return nil
			}
			if err != nil {
				return err
			}
			if change.URL == "" {
				change.URL = page.URL
			}
			if change.Title == "" {
				change.Title = page.Title
			}
			if change.SiteID == "" {
				change.SiteID = page.SiteID
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		if pageMissing {
			return "", storage.NewNotFoundError("page", change.PageID)
		}
	}

	change.Priority = DeriveChangePriority(change.ChangeType, change.Context)

	now := time.Now().UTC()
	change.ID = common.NewChangeID()
	if change.DetectedAt.IsZero() {
		change.DetectedAt = now
	}
	change.NotificationSent = false
	change.NotifiedAt = nil
	change.CreatedAt = now
	change.UpdatedAt = now

	err := s.res.Execute(ctx, "record_content_change", func() error {
		return s.db.Store().Insert(change.ID, change)
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("change_id", change.ID).
		Str("change_type", change.ChangeType).
		Str("priority", change.Priority).
		Msg("Content change recorded")
	return change.ID, nil
}

// DeriveChangePriority maps a change to its notification priority:
// deletions are always high; new pages are high when the context flags a
// known author or philosophical content; modifications scale with the
// content change ratio.
func DeriveChangePriority(changeType string, context map[string]interface{}) string {
	switch changeType {
	case models.ChangeTypeDeleted:
		return models.ChangePriorityHigh
	case models.ChangeTypeNew:
		if contextFlag(context, "author_known") || contextFlag(context, "philosophical_content") {
			return models.ChangePriorityHigh
		}
		return models.ChangePriorityMedium
	case models.ChangeTypeModified:
		ratio := contextFloat(context, "content_change_ratio")
		if ratio > 0.5 {
			return models.ChangePriorityHigh
		}
		if ratio > 0.1 {
			return models.ChangePriorityMedium
		}
		return models.ChangePriorityLow
	default:
		return models.ChangePriorityLow
	}
}

func contextFlag(context map[string]interface{}, key string) bool {
	v, ok := context[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func contextFloat(context map[string]interface{}, key string) float64 {
	switch v := context[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// GetChange returns one change by id
func (s *ChangeStorage) GetChange(ctx context.Context, id string) (*models.ContentChange, error) {
	if err := common.ValidateID(common.ChangeIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "change_id", Cause: err}
	}

	var change models.ContentChange
	var found bool
	err := s.res.Execute(ctx, "get_change", func() error {
		found = false
		err := s.db.Store().Get(id, &change)
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
		return nil, storage.NewNotFoundError("change", id)
	}
	return &change, nil
}

// GetChangesSince returns a site's changes detected after the given time,
// oldest first.
func (s *ChangeStorage) GetChangesSince(ctx context.Context, siteID string, since time.Time) ([]*models.ContentChange, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}

	var changes []*models.ContentChange
	err := s.res.Execute(ctx, "get_changes_since", func() error {
		changes = nil
		var all []models.ContentChange
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		for i := range all {
			if all[i].DetectedAt.After(since) {
				changes = append(changes, &all[i])
			}
		}
		sort.SliceStable(changes, func(i, j int) bool {
			return changes[i].DetectedAt.Before(changes[j].DetectedAt)
		})
		return nil
	})
	return changes, err
}

// GetNewPagesToday returns today's new-page changes, optionally for one site
func (s *ChangeStorage) GetNewPagesToday(ctx context.Context, siteID string) ([]*models.ContentChange, error) {
	if siteID != "" {
		if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
			return nil, &storage.ValidationError{Field: "site_id", Cause: err}
		}
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var changes []*models.ContentChange
	err := s.res.Execute(ctx, "get_new_pages_today", func() error {
		changes = nil
		var all []models.ContentChange
		if err := s.db.Store().Find(&all, badgerhold.Where("ChangeType").Eq(models.ChangeTypeNew).Index("ChangeType")); err != nil {
			return err
		}
		for i := range all {
			if all[i].DetectedAt.Before(dayStart) {
				continue
			}
			if siteID != "" && all[i].SiteID != siteID {
				continue
			}
			changes = append(changes, &all[i])
		}
		return nil
	})
	return changes, err
}

// GetModifiedPagesSummary aggregates recent changes by site and type
func (s *ChangeStorage) GetModifiedPagesSummary(ctx context.Context, days int) (*models.ModifiedPagesSummary, error) {
	if days <= 0 {
		return nil, storage.NewValidationError("days", "days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	summary := &models.ModifiedPagesSummary{Days: days, BySite: map[string]int{}, ByType: map[string]int{}}
	err := s.res.Execute(ctx, "get_modified_pages_summary", func() error {
		summary.TotalChanges = 0
		summary.BySite = map[string]int{}
		summary.ByType = map[string]int{}

		var all []models.ContentChange
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if all[i].DetectedAt.Before(cutoff) {
				continue
			}
			summary.TotalChanges++
			summary.BySite[all[i].SiteID]++
			summary.ByType[all[i].ChangeType]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetUnnotifiedChanges drains pending notifications ordered by priority
// descending then detection time ascending, capped.
func (s *ChangeStorage) GetUnnotifiedChanges(ctx context.Context, priority string, limit int) ([]*models.ContentChange, error) {
	if priority != "" && models.ChangePriorityRank(priority) == 0 {
		return nil, storage.NewValidationError("priority", fmt.Sprintf("unknown priority %q", priority))
	}
	if limit <= 0 || limit > defaultChangeResults {
		limit = defaultChangeResults
	}

	var changes []*models.ContentChange
	err := s.res.Execute(ctx, "get_unnotified_changes", func() error {
		changes = nil
		var all []models.ContentChange
		if err := s.db.Store().Find(&all, badgerhold.Where("NotificationSent").Eq(false).Index("NotificationSent")); err != nil {
			return err
		}

		var matched []*models.ContentChange
		for i := range all {
			if priority != "" && all[i].Priority != priority {
				continue
			}
			matched = append(matched, &all[i])
		}
		sort.SliceStable(matched, func(i, j int) bool {
			ri, rj := models.ChangePriorityRank(matched[i].Priority), models.ChangePriorityRank(matched[j].Priority)
			if ri != rj {
				return ri > rj
			}
			return matched[i].DetectedAt.Before(matched[j].DetectedAt)
		})
		if len(matched) > limit {
			matched = matched[:limit]
		}
		changes = matched
		return nil
	})
	return changes, err
}

// MarkChangeNotified flags a change as delivered. Idempotent.
func (s *ChangeStorage) MarkChangeNotified(ctx context.Context, id string) error {
	if err := common.ValidateID(common.ChangeIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "change_id", Cause: err}
	}

	var notFound bool
	err := s.res.Execute(ctx, "mark_change_notified", func() error {
		notFound = false
		var change models.ContentChange
		err := s.db.Store().Get(id, &change)
		if err == badgerhold.ErrNotFound {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}
		if change.NotificationSent {
			return nil
		}
		now := time.Now().UTC()
		change.NotificationSent = true
		change.NotifiedAt = &now
		change.UpdatedAt = now
		return s.db.Store().Update(id, &change)
	})
	if err != nil {
		return err
	}
	if notFound {
		return storage.NewNotFoundError("change", id)
	}
	return nil
}

// GetChangeFrequency computes change activity for a site over a window:
// totals by type, changes per day, the most active day, and a trend from
// comparing the first and second half of the window with a 20% band.
func (s *ChangeStorage) GetChangeFrequency(ctx context.Context, siteID string, days int) (*models.ChangeFrequency, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}
	if days <= 0 {
		return nil, storage.NewValidationError("days", "days must be positive")
	}

	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -days)
	midpoint := now.Add(-time.Duration(days) * 24 * time.Hour / 2)

	freq := &models.ChangeFrequency{SiteID: siteID, Days: days, ByType: map[string]int{}, Trend: models.TrendStable}
	err := s.res.Execute(ctx, "get_change_frequency", func() error {
		freq.TotalChanges = 0
		freq.ByType = map[string]int{}
		freq.MostActiveDay = ""

		var all []models.ContentChange
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}

		perDay := map[string]int{}
		var firstHalf, secondHalf int
		for i := range all {
			detected := all[i].DetectedAt
			if detected.Before(cutoff) {
				continue
			}
			freq.TotalChanges++
			freq.ByType[all[i].ChangeType]++
			perDay[detected.Format("2006-01-02")]++
			if detected.Before(midpoint) {
				firstHalf++
			} else {
				secondHalf++
			}
		}

		freq.ChangesPerDay = float64(freq.TotalChanges) / float64(days)

		best := 0
		for day, count := range perDay {
			if count > best || (count == best && day > freq.MostActiveDay) {
				best = count
				freq.MostActiveDay = day
			}
		}

		switch {
		case float64(secondHalf) > float64(firstHalf)*1.2:
			freq.Trend = models.TrendIncreasing
		case float64(secondHalf) < float64(firstHalf)*0.8:
			freq.Trend = models.TrendDecreasing
		default:
			freq.Trend = models.TrendStable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return freq, nil
}

// CleanupOldChanges deletes changes older than the threshold
func (s *ChangeStorage) CleanupOldChanges(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, storage.NewValidationError("days", "days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var deleted int
	err := s.res.Execute(ctx, "cleanup_old_changes", func() error {
		deleted = 0
		var all []models.ContentChange
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if !all[i].DetectedAt.Before(cutoff) {
				continue
			}
			if err := s.db.Store().Delete(all[i].ID, &models.ContentChange{}); err != nil && err != badgerhold.ErrNotFound {
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
