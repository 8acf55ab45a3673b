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

// SiteMapStorage implements interfaces.SiteMapStorage on badgerhold
type SiteMapStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
}

// NewSiteMapStorage creates a new sitemap snapshot storage instance
func NewSiteMapStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *SiteMapStorage {
	return &SiteMapStorage{db: db, res: res, logger: logger}
}

// SaveSiteMap records a sitemap snapshot for a site
func (s *SiteMapStorage) SaveSiteMap(ctx context.Context, siteMap *models.SiteMap) (string, error) {
	if siteMap == nil {
		return "", storage.NewValidationError("sitemap", "sitemap is required")
	}
	if err := common.ValidateID(common.SiteIDPrefix, siteMap.SiteID); err != nil {
		return "", &storage.ValidationError{Field: "site_id", Cause: err}
	}
	if strings.TrimSpace(siteMap.URL) == "" {
		return "", storage.NewValidationError("url", "sitemap url is required")
	}

	var notFound error
	err := s.res.Execute(ctx, "save_sitemap", func() error {
		notFound = nil
		var site models.Site
		if err := s.db.Store().Get(siteMap.SiteID, &site); err != nil {
			if err == badgerhold.ErrNotFound {
				notFound = storage.NewNotFoundError("site", siteMap.SiteID)
				return nil
			}
			return err
		}

		now := time.Now().UTC()
		siteMap.ID = common.NewSiteMapID()
		if siteMap.LastParsed.IsZero() {
			siteMap.LastParsed = now
		}
		siteMap.CreatedAt = now
		siteMap.UpdatedAt = now
		return s.db.Store().Insert(siteMap.ID, siteMap)
	})
	if err != nil {
		return "", err
	}
	if notFound != nil {
		return "", notFound
	}

	s.logger.Debug().Str("site_id", siteMap.SiteID).Int("urls", len(siteMap.URLs)).Msg("Sitemap snapshot saved")
	return siteMap.ID, nil
}

// GetLatestSiteMap returns the most recently parsed snapshot for a site
func (s *SiteMapStorage) GetLatestSiteMap(ctx context.Context, siteID string) (*models.SiteMap, error) {
	maps, err := s.GetSiteMaps(ctx, siteID, 1)
	if err != nil {
		return nil, err
	}
	if len(maps) == 0 {
		return nil, storage.NewNotFoundError("sitemap", siteID)
	}
	return maps[0], nil
}

// GetSiteMaps returns a site's snapshots, newest first
func (s *SiteMapStorage) GetSiteMaps(ctx context.Context, siteID string, limit int) ([]*models.SiteMap, error) {
	if err := common.ValidateID(common.SiteIDPrefix, siteID); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}
	limit = clampLimit(limit)

	var maps []*models.SiteMap
	err := s.res.Execute(ctx, "get_sitemaps", func() error {
		maps = nil
		var all []models.SiteMap
		if err := s.db.Store().Find(&all, badgerhold.Where("SiteID").Eq(siteID).Index("SiteID")); err != nil {
			return err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].LastParsed.After(all[j].LastParsed)
		})
		for i := range all {
			if i >= limit {
				break
			}
			maps = append(maps, &all[i])
		}
		return nil
	})
	return maps, err
}
