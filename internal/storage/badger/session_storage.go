package badger

import (
	"context"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// SessionStorage implements interfaces.SessionStorage on badgerhold
type SessionStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
	mu     sync.Mutex // serializes session starts against the concurrency cap check
}

// NewSessionStorage creates a new crawl session storage instance
func NewSessionStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *SessionStorage {
	return &SessionStorage{db: db, res: res, logger: logger}
}

// StartCrawlSession inserts a running session after checking the per-site
// concurrency cap. The cap check and insert run under one lock so two
// concurrent starts cannot both slip under the cap.
func (s *SessionStorage) StartCrawlSession(ctx context.Context, siteID string, configSnapshot map[string]interface{}, maxConcurrent int) (string, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return "", &storage.ValidationError{Field: "site_id", Cause: err}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var session *models.CrawlSession
	var startErr error
	err := s.res.Execute(ctx, "start_crawl_session", func() error {
		startErr = nil

		var site models.Site
		if err := s.db.Store().Get(siteID, &site); err != nil {
			if err == badgerhold.ErrNotFound {
				startErr = storage.NewNotFoundError("site", siteID)
				return nil
			}
			return err
		}

		running, err := s.db.Store().Count(&models.CrawlSession{},
			badgerhold.Where("SiteID").Eq(siteID).And("Status").Eq(models.SessionStatusRunning))
		if err != nil {
			return err
		}
		if int(running) >= maxConcurrent {
			startErr = storage.NewValidationError("session", "Maximum concurrent sessions reached for site "+siteID)
			return nil
		}

		now := time.Now().UTC()
		session = &models.CrawlSession{
			ID:             common.NewSessionID(),
			SiteID:         siteID,
			Status:         models.SessionStatusRunning,
			ConfigSnapshot: storage.SanitizeMap(configSnapshot),
			Stats:          models.SessionStats{StartTime: now},
			StartedAt:      now,
			LastUpdate:     now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.db.Store().Insert(session.ID, session)
	})
	if err != nil {
		return "", err
	}
	if startErr != nil {
		return "", startErr
	}

	s.logger.Info().Str("session_id", session.ID).Str("site_id", siteID).Msg("Crawl session started")
	return session.ID, nil
}

// GetSession returns one session by id
func (s *SessionStorage) GetSession(ctx context.Context, id string) (*models.CrawlSession, error) {
	if err := common.ValidateID(common.SessionIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "session_id", Cause: err}
	}

	var session models.CrawlSession
	var found bool
	err := s.res.Execute(ctx, "get_session", func() error {
		found = false
		err := s.db.Store().Get(id, &session)
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
		return nil, storage.NewNotFoundError("session", id)
	}
	return &session, nil
}

// UpdateSessionProgress replaces the five counters on a running session.
// Progress arriving after the session left running is ignored and reported
// as false, not an error.
func (s *SessionStorage) UpdateSessionProgress(ctx context.Context, id string, progress *models.SessionProgress) (bool, error) {
	if err := common.ValidateID(common.SessionIDPrefix, id); err != nil {
		return false, &storage.ValidationError{Field: "session_id", Cause: err}
	}
	if progress == nil {
		return false, storage.NewValidationError("progress", "progress is required")
	}

	var applied bool
	err := s.res.Execute(ctx, "update_session_progress", func() error {
		applied = false
		var session models.CrawlSession
		err := s.db.Store().Get(id, &session)
		if err == badgerhold.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusRunning {
			return nil
		}

		now := time.Now().UTC()
		applyProgress(&session.Stats, progress)
		session.LastUpdate = now
		session.UpdatedAt = now
		if err := s.db.Store().Update(id, &session); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func applyProgress(stats *models.SessionStats, progress *models.SessionProgress) {
	stats.PagesDiscovered = progress.PagesDiscovered
	stats.PagesCrawled = progress.PagesCrawled
	stats.PagesFailed = progress.PagesFailed
	stats.BytesDownloaded = progress.BytesDownloaded
	stats.ErrorsCount = progress.ErrorsCount
}

// CompleteCrawlSession writes the final stats and, in the same transaction,
// advances the parent site's last crawl time. A failed completion leaves the
// site untouched.
func (s *SessionStorage) CompleteCrawlSession(ctx context.Context, id string, final *models.SessionProgress) error {
	if err := common.ValidateID(common.SessionIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "session_id", Cause: err}
	}

	var opErr error
	err := s.res.Execute(ctx, "complete_crawl_session", func() error {
		opErr = nil
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			var session models.CrawlSession
			if err := s.db.Store().TxGet(txn, id, &session); err != nil {
				if err == badgerhold.ErrNotFound {
					opErr = storage.NewNotFoundError("session", id)
					return opErr
				}
				return err
			}
			if session.Status != models.SessionStatusRunning {
				opErr = storage.NewValidationError("session", "session "+id+" is not running")
				return opErr
			}

			now := time.Now().UTC()
			if final != nil {
				applyProgress(&session.Stats, final)
			}
			session.Status = models.SessionStatusCompleted
			session.CompletedAt = &now
			session.Stats.EndTime = &now
			session.Stats.DurationSeconds = now.Sub(session.StartedAt).Seconds()
			session.LastUpdate = now
			session.UpdatedAt = now
			if err := s.db.Store().TxUpdate(txn, id, &session); err != nil {
				return err
			}

			var site models.Site
			if err := s.db.Store().TxGet(txn, session.SiteID, &site); err != nil {
				if err == badgerhold.ErrNotFound {
					// Site removed out of band; completion still commits
					return nil
				}
				return err
			}
			site.Monitoring.LastCrawlTime = &now
			if site.Monitoring.Frequency != "" {
				if next, err := common.NextScheduledCrawl(site.Monitoring.Frequency, now); err == nil {
					site.Monitoring.NextScheduledCrawl = &next
				}
			}
			site.UpdatedAt = now
			return s.db.Store().TxUpdate(txn, session.SiteID, &site)
		})
		if err != nil {
			if opErr != nil {
				return nil
			}
			return &storage.TransactionError{Operation: "complete_crawl_session", Cause: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}

	s.logger.Info().Str("session_id", id).Msg("Crawl session completed")
	return nil
}

// AbortSession transitions a running session to aborted with a reason
func (s *SessionStorage) AbortSession(ctx context.Context, id, reason string) error {
	return s.terminate(ctx, "abort_session", id, models.SessionStatusAborted, reason)
}

// FailSession transitions a running session to failed with a reason
func (s *SessionStorage) FailSession(ctx context.Context, id, reason string) error {
	return s.terminate(ctx, "fail_session", id, models.SessionStatusFailed, reason)
}

func (s *SessionStorage) terminate(ctx context.Context, operation, id, status, reason string) error {
	if err := common.ValidateID(common.SessionIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "session_id", Cause: err}
	}

	var opErr error
	err := s.res.Execute(ctx, operation, func() error {
		opErr = nil
		var session models.CrawlSession
		err := s.db.Store().Get(id, &session)
		if err == badgerhold.ErrNotFound {
			opErr = storage.NewNotFoundError("session", id)
			return nil
		}
		if err != nil {
			return err
		}
		if session.Status != models.SessionStatusRunning {
			opErr = storage.NewValidationError("session", "session "+id+" is not running")
			return nil
		}

		now := time.Now().UTC()
		session.Status = status
		session.AbortReason = reason
		session.CompletedAt = &now
		session.Stats.EndTime = &now
		session.Stats.DurationSeconds = now.Sub(session.StartedAt).Seconds()
		session.LastUpdate = now
		session.UpdatedAt = now
		return s.db.Store().Update(id, &session)
	})
	if err != nil {
		return err
	}
	return opErr
}

// GetActiveSessions returns all running sessions
func (s *SessionStorage) GetActiveSessions(ctx context.Context) ([]*models.CrawlSession, error) {
	var sessions []*models.CrawlSession
	err := s.res.Execute(ctx, "get_active_sessions", func() error {
		sessions = nil
		var all []models.CrawlSession
		if err := s.db.Store().Find(&all, badgerhold.Where("Status").Eq(models.SessionStatusRunning).Index("Status")); err != nil {
			return err
		}
		for i := range all {
			sessions = append(sessions, &all[i])
		}
		return nil
	})
	return sessions, err
}

// GetSessionHistory returns a site's sessions, newest first
func (s *SessionStorage) GetSessionHistory(ctx context.Context, siteID string, limit int) ([]*models.CrawlSession, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}
	limit = clampLimit(limit)

	var sessions []*models.CrawlSession
	err := s.res.Execute(ctx, "get_session_history", func() error {
		sessions = nil
		var all []models.CrawlSession
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].StartedAt.After(all[j].StartedAt)
		})
		for i := range all {
			if i >= limit {
				break
			}
			sessions = append(sessions, &all[i])
		}
		return nil
	})
	return sessions, err
}

// GetSessionStatistics returns the stats block for one session
func (s *SessionStorage) GetSessionStatistics(ctx context.Context, id string) (*models.SessionStats, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := session.Stats
	return &stats, nil
}

// CleanupOldSessions deletes terminal sessions older than the threshold
func (s *SessionStorage) CleanupOldSessions(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, storage.NewValidationError("days", "days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var deleted int
	err := s.res.Execute(ctx, "cleanup_old_sessions", func() error {
		deleted = 0
		var all []models.CrawlSession
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			if !models.IsTerminalSessionStatus(all[i].Status) || !all[i].StartedAt.Before(cutoff) {
				continue
			}
			if err := s.db.Store().Delete(all[i].ID, &models.CrawlSession{}); err != nil && err != badgerhold.ErrNotFound {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Int("days", days).Msg("Old crawl sessions cleaned up")
	}
	return deleted, nil
}
