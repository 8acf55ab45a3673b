package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// AlertStorage implements interfaces.AlertStorage on badgerhold
type AlertStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
	mu     sync.Mutex // makes fingerprint dedup race-free: create or increment, never both
}

// NewAlertStorage creates a new alert storage instance
func NewAlertStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *AlertStorage {
	return &AlertStorage{db: db, res: res, logger: logger}
}

// ComputeAlertFingerprint is the identity under which alerts deduplicate:
// a SHA-256 of the canonical encoding of (type, site, context).
func ComputeAlertFingerprint(alertType, siteID string, context map[string]interface{}) string {
	return common.Fingerprint(alertType, siteID, context)
}

// CreateAlert deduplicates by fingerprint. A suppressed type drops the
// create with ErrAlertSuppressed; an existing active alert with the same
// fingerprint gets its occurrence count bumped and its id returned; anything
// else inserts a fresh active alert.
func (s *AlertStorage) CreateAlert(ctx context.Context, alert *models.Alert) (string, error) {
	if alert == nil {
		return "", storage.NewValidationError("alert", "alert is required")
	}
	if strings.TrimSpace(alert.AlertType) == "" {
		return "", storage.NewValidationError("alert_type", "alert type is required")
	}
	if !models.IsValidAlertSeverity(alert.Severity) {
		return "", storage.NewValidationError("severity", fmt.Sprintf("unknown severity %q", alert.Severity))
	}
	if alert.SiteID != "" {
		if err := common.ValidateID(common.SiteIDPrefix, alert.SiteID); err != nil {
			return "", &storage.ValidationError{Field: "site_id", Cause: err}
		}
	}

	alert.Context = storage.SanitizeMap(alert.Context)
	alert.Fingerprint = ComputeAlertFingerprint(alert.AlertType, alert.SiteID, alert.Context)

	s.mu.Lock()
	defer s.mu.Unlock()

	var resultID string
	var suppressed bool
	err := s.res.Execute(ctx, "create_alert", func() error {
		resultID = ""
		suppressed = false
		now := time.Now().UTC()

		var sup models.AlertSuppression
		err := s.db.Store().Get(alert.AlertType, &sup)
		if err == nil && sup.SuppressedUntil.After(now) {
			suppressed = true
			return nil
		}
		if err != nil && err != badgerhold.ErrNotFound {
			return err
		}

		var existing models.Alert
		err = s.db.Store().FindOne(&existing,
			badgerhold.Where("Fingerprint").Eq(alert.Fingerprint).And("Status").Eq(models.AlertStatusActive))
		if err == nil {
			existing.OccurrenceCount++
			existing.LastSeen = now
			existing.UpdatedAt = now
			if err := s.db.Store().Update(existing.ID, &existing); err != nil {
				return err
			}
			resultID = existing.ID
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}

		alert.ID = common.NewAlertID()
		alert.Status = models.AlertStatusActive
		alert.OccurrenceCount = 1
		alert.FirstSeen = now
		alert.LastSeen = now
		alert.NotificationSent = false
		alert.ResolvedAt = nil
		alert.EscalatedAt = nil
		alert.CreatedAt = now
		alert.UpdatedAt = now
		if err := s.db.Store().Insert(alert.ID, alert); err != nil {
			return err
		}
		resultID = alert.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	if suppressed {
		return "", storage.ErrAlertSuppressed
	}

	return resultID, nil
}

// GetAlert returns one alert by id
func (s *AlertStorage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	if err := common.ValidateID(common.AlertIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "alert_id", Cause: err}
	}

	var alert models.Alert
	var found bool
	err := s.res.Execute(ctx, "get_alert", func() error {
		found = false
		err := s.db.Store().Get(id, &alert)
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
		return nil, storage.NewNotFoundError("alert", id)
	}
	return &alert, nil
}

// GetActiveAlerts returns active alerts ordered by severity then recency
func (s *AlertStorage) GetActiveAlerts(ctx context.Context, severity string) ([]*models.Alert, error) {
	if severity != "" && !models.IsValidAlertSeverity(severity) {
		return nil, storage.NewValidationError("severity", fmt.Sprintf("unknown severity %q", severity))
	}

	var alerts []*models.Alert
	err := s.res.Execute(ctx, "get_active_alerts", func() error {
		alerts = nil
		var all []models.Alert
		if err := s.db.Store().Find(&all, badgerhold.Where("Status").Eq(models.AlertStatusActive).Index("Status")); err != nil {
			return err
		}
		for i := range all {
			if severity != "" && all[i].Severity != severity {
				continue
			}
			alerts = append(alerts, &all[i])
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			ri, rj := models.AlertSeverityRank(alerts[i].Severity), models.AlertSeverityRank(alerts[j].Severity)
			if ri != rj {
				return ri > rj
			}
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		})
		return nil
	})
	return alerts, err
}

// ResolveAlert transitions an active alert to resolved. Resolving a
// non-active alert is a no-op reported as false.
func (s *AlertStorage) ResolveAlert(ctx context.Context, id, resolution string) (bool, error) {
	if err := common.ValidateID(common.AlertIDPrefix, id); err != nil {
		return false, &storage.ValidationError{Field: "alert_id", Cause: err}
	}

	var resolved bool
	err := s.res.Execute(ctx, "resolve_alert", func() error {
		resolved = false
		var alert models.Alert
		err := s.db.Store().Get(id, &alert)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if alert.Status != models.AlertStatusActive {
			return nil
		}
		now := time.Now().UTC()
		alert.Status = models.AlertStatusResolved
		alert.ResolvedAt = &now
		alert.Resolution = resolution
		alert.UpdatedAt = now
		if err := s.db.Store().Update(id, &alert); err != nil {
			return err
		}
		resolved = true
		return nil
	})
	return resolved, err
}

// SuppressAlertType mutes creates of a type for the given number of hours
func (s *AlertStorage) SuppressAlertType(ctx context.Context, alertType string, hours int) error {
	if strings.TrimSpace(alertType) == "" {
		return storage.NewValidationError("alert_type", "alert type is required")
	}
	if hours <= 0 {
		return storage.NewValidationError("hours", "hours must be positive")
	}

	return s.res.Execute(ctx, "suppress_alert_type", func() error {
		now := time.Now().UTC()
		sup := models.AlertSuppression{
			AlertType:       alertType,
			SuppressedUntil: now.Add(time.Duration(hours) * time.Hour),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return s.db.Store().Upsert(alertType, &sup)
	})
}

// GetSuppressedAlerts lists suppressions that have not yet expired
func (s *AlertStorage) GetSuppressedAlerts(ctx context.Context) ([]*models.AlertSuppression, error) {
	var suppressions []*models.AlertSuppression
	err := s.res.Execute(ctx, "get_suppressed_alerts", func() error {
		suppressions = nil
		now := time.Now().UTC()
		var all []models.AlertSuppression
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if all[i].SuppressedUntil.After(now) {
				suppressions = append(suppressions, &all[i])
			}
		}
		return nil
	})
	return suppressions, err
}

// CleanupOldAlerts deletes resolved alerts older than the threshold
func (s *AlertStorage) CleanupOldAlerts(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, storage.NewValidationError("days", "days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var deleted int
	err := s.res.Execute(ctx, "cleanup_old_alerts", func() error {
		deleted = 0
		var all []models.Alert
		if err := s.db.Store().Find(&all, badgerhold.Where("Status").Eq(models.AlertStatusResolved).Index("Status")); err != nil {
			return err
		}
		for i := range all {
			if !all[i].CreatedAt.Before(cutoff) {
				continue
			}
			if err := s.db.Store().Delete(all[i].ID, &models.Alert{}); err != nil && err != badgerhold.ErrNotFound {
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

// GetAlertStatistics aggregates alerts over a window
func (s *AlertStorage) GetAlertStatistics(ctx context.Context, days int) (*models.AlertStatistics, error) {
	if days <= 0 {
		return nil, storage.NewValidationError("days", "days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	stats := &models.AlertStatistics{Days: days, ByStatus: map[string]int{}, BySeverity: map[string]int{}}
	err := s.res.Execute(ctx, "get_alert_statistics", func() error {
		stats.Total = 0
		stats.ByStatus = map[string]int{}
		stats.BySeverity = map[string]int{}
		stats.EscalatedCount = 0

		var all []models.Alert
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if all[i].CreatedAt.Before(cutoff) {
				continue
			}
			stats.Total++
			stats.ByStatus[all[i].Status]++
			stats.BySeverity[all[i].Severity]++
			if all[i].EscalatedAt != nil {
				stats.EscalatedCount++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// EscalateUnresolvedAlerts marks critical and high alerts older than the
// threshold as escalated, once per alert, and returns them for downstream
// notification.
func (s *AlertStorage) EscalateUnresolvedAlerts(ctx context.Context, hours int) ([]*models.Alert, error) {
	if hours <= 0 {
		return nil, storage.NewValidationError("hours", "hours must be positive")
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	var escalated []*models.Alert
	err := s.res.Execute(ctx, "escalate_unresolved_alerts", func() error {
		escalated = nil
		now := time.Now().UTC()
		var all []models.Alert
		if err := s.db.Store().Find(&all, badgerhold.Where("Status").Eq(models.AlertStatusActive).Index("Status")); err != nil {
			return err
		}
		for i := range all {
			alert := &all[i]
			if alert.EscalatedAt != nil {
				continue
			}
			if alert.Severity != models.AlertSeverityCritical && alert.Severity != models.AlertSeverityHigh {
				continue
			}
			if !alert.CreatedAt.Before(cutoff) {
				continue
			}
			at := now
			alert.EscalatedAt = &at
			alert.UpdatedAt = now
			if err := s.db.Store().Update(alert.ID, alert); err != nil {
				return err
			}
			escalated = append(escalated, alert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(escalated) > 0 {
		s.logger.Warn().Int("count", len(escalated)).Int("hours", hours).Msg("Unresolved alerts escalated")
	}
	return escalated, nil
}
