package badger

import (
	"context"
	"fmt"
	"regexp"
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

// SiteStorage implements interfaces.SiteStorage on badgerhold
type SiteStorage struct {
	db     *BadgerDB
	res    *storage.Resilience
	logger arbor.ILogger
	mu     sync.Mutex // serializes create against the base URL uniqueness check
}

// NewSiteStorage creates a new site storage instance
func NewSiteStorage(db *BadgerDB, res *storage.Resilience, logger arbor.ILogger) *SiteStorage {
	return &SiteStorage{db: db, res: res, logger: logger}
}

// CreateSite validates the site, enforces base URL uniqueness, and inserts it
func (s *SiteStorage) CreateSite(ctx context.Context, site *models.Site) (string, error) {
	if err := validateSite(site); err != nil {
		return "", err
	}

	normalized, err := common.NormalizeBaseURL(site.BaseURL)
	if err != nil {
		return "", &storage.ValidationError{Field: "base_url", Message: "invalid base url", Cause: err}
	}
	site.BaseURL = normalized

	s.mu.Lock()
	defer s.mu.Unlock()

	var insertErr error
	err = s.res.Execute(ctx, "create_site", func() error {
		insertErr = nil
		var existing models.Site
		err := s.db.Store().FindOne(&existing, badgerhold.Where("BaseURL").Eq(site.BaseURL))
		if err == nil {
			insertErr = storage.NewDuplicateError("site", site.BaseURL)
			return nil
		}
		if err != badgerhold.ErrNotFound {
			return err
		}

		now := time.Now().UTC()
		site.ID = common.NewSiteID()
		if site.HealthStatus == "" {
			site.HealthStatus = models.HealthUnknown
		}
		site.CreatedAt = now
		site.UpdatedAt = now
		return s.db.Store().Insert(site.ID, site)
	})
	if err != nil {
		return "", err
	}
	if insertErr != nil {
		return "", insertErr
	}

	s.logger.Info().Str("site_id", site.ID).Str("base_url", site.BaseURL).Msg("Site created")
	return site.ID, nil
}

func validateSite(site *models.Site) error {
	if site == nil {
		return storage.NewValidationError("site", "site is required")
	}
	if strings.TrimSpace(site.Name) == "" {
		return storage.NewValidationError("name", "site name is required")
	}
	if len(site.AllowedDomains) == 0 {
		return storage.NewValidationError("allowed_domains", "at least one allowed domain is required")
	}
	for _, domain := range site.AllowedDomains {
		if !common.IsValidDomain(domain) {
			return storage.NewValidationError("allowed_domains", fmt.Sprintf("%q is not a valid domain", domain))
		}
	}

	host := common.HostFromURL(site.BaseURL)
	if host == "" {
		return storage.NewValidationError("base_url", "base url must have a scheme and host")
	}
	if !domainAllowed(host, site.AllowedDomains) {
		return storage.NewValidationError("base_url", fmt.Sprintf("base url host %q is not in allowed domains", host))
	}

	for _, pattern := range append(append([]string{}, site.AllowPatterns...), site.DenyPatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return &storage.ValidationError{Field: "url_patterns", Message: fmt.Sprintf("pattern %q does not compile", pattern), Cause: err}
		}
	}

	if site.Monitoring.Frequency != "" && !common.IsValidFrequency(site.Monitoring.Frequency) {
		return storage.NewValidationError("monitoring.frequency", fmt.Sprintf("unknown frequency %q", site.Monitoring.Frequency))
	}
	return nil
}

func domainAllowed(host string, domains []string) bool {
	for _, domain := range domains {
		d := strings.ToLower(domain)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// GetSite returns one site by id
func (s *SiteStorage) GetSite(ctx context.Context, id string) (*models.Site, error) {
	if err := common.ValidateID(common.SiteIDPrefix, id); err != nil {
		return nil, &storage.ValidationError{Field: "site_id", Cause: err}
	}

	var site models.Site
	var found bool
	err := s.res.Execute(ctx, "get_site", func() error {
		found = false
		err := s.db.Store().Get(id, &site)
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
		return nil, storage.NewNotFoundError("site", id)
	}
	return &site, nil
}

// GetActiveSites returns monitored sites ordered by next scheduled crawl
// ascending, unscheduled sites first.
func (s *SiteStorage) GetActiveSites(ctx context.Context) ([]*models.Site, error) {
	all, err := s.allSites(ctx, "get_active_sites")
	if err != nil {
		return nil, err
	}

	var active []*models.Site
	for _, site := range all {
		if site.Monitoring.Active {
			active = append(active, site)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return beforeNilFirst(active[i].Monitoring.NextScheduledCrawl, active[j].Monitoring.NextScheduledCrawl)
	})
	return active, nil
}

// GetSiteByDomain looks a site up by bare host or URL-prefixed domain
func (s *SiteStorage) GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error) {
	host := common.HostFromURL(domain)
	if host == "" {
		return nil, storage.NewValidationError("domain", "domain is required")
	}

	all, err := s.allSites(ctx, "get_site_by_domain")
	if err != nil {
		return nil, err
	}
	for _, site := range all {
		if common.HostFromURL(site.BaseURL) == host || domainAllowed(host, site.AllowedDomains) {
			return site, nil
		}
	}
	return nil, storage.NewNotFoundError("site", host)
}

// UpdateCrawlSettings applies a field-projected partial update
func (s *SiteStorage) UpdateCrawlSettings(ctx context.Context, id string, update *models.CrawlSettingsUpdate) error {
	if update == nil {
		return storage.NewValidationError("update", "update is required")
	}
	for _, domain := range update.AllowedDomains {
		if !common.IsValidDomain(domain) {
			return storage.NewValidationError("allowed_domains", fmt.Sprintf("%q is not a valid domain", domain))
		}
	}

	return s.mutateSite(ctx, "update_crawl_settings", id, func(site *models.Site) error {
		if update.MinDelay != nil {
			site.Politeness.MinDelay = *update.MinDelay
		}
		if update.MaxConcurrent != nil {
			site.Politeness.MaxConcurrent = *update.MaxConcurrent
		}
		if len(update.AllowedDomains) > 0 {
			site.AllowedDomains = append([]string{}, update.AllowedDomains...)
		}
		return nil
	})
}

// DisableSite deactivates monitoring and clears the schedule
func (s *SiteStorage) DisableSite(ctx context.Context, id, reason string) error {
	return s.mutateSite(ctx, "disable_site", id, func(site *models.Site) error {
		now := time.Now().UTC()
		site.Monitoring.Active = false
		site.Monitoring.NextScheduledCrawl = nil
		site.DisabledReason = reason
		site.DisabledAt = &now
		return nil
	})
}

// GetSitesForCrawlSchedule returns active sites due for a crawl at the given
// frequency, ordered by last crawl time ascending so no site starves.
func (s *SiteStorage) GetSitesForCrawlSchedule(ctx context.Context, frequency string) ([]*models.Site, error) {
	if !common.IsValidFrequency(frequency) {
		return nil, storage.NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", frequency))
	}

	all, err := s.allSites(ctx, "get_sites_for_crawl_schedule")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var due []*models.Site
	for _, site := range all {
		if !site.Monitoring.Active || site.Monitoring.Frequency != frequency {
			continue
		}
		next := site.Monitoring.NextScheduledCrawl
		if next == nil || !next.After(now) {
			due = append(due, site)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return beforeNilFirst(due[i].Monitoring.LastCrawlTime, due[j].Monitoring.LastCrawlTime)
	})
	return due, nil
}

// UpdateSiteHealthStatus records the outcome of an external health probe
func (s *SiteStorage) UpdateSiteHealthStatus(ctx context.Context, id, status string) error {
	switch status {
	case models.HealthHealthy, models.HealthUnhealthy, models.HealthUnknown:
	default:
		return storage.NewValidationError("health_status", fmt.Sprintf("unknown health status %q", status))
	}
	return s.mutateSite(ctx, "update_site_health_status", id, func(site *models.Site) error {
		site.HealthStatus = status
		return nil
	})
}

// UpdateNextScheduledCrawl advances the site's crawl schedule
func (s *SiteStorage) UpdateNextScheduledCrawl(ctx context.Context, id string, next time.Time) error {
	return s.mutateSite(ctx, "update_next_scheduled_crawl", id, func(site *models.Site) error {
		n := next.UTC()
		site.Monitoring.NextScheduledCrawl = &n
		return nil
	})
}

// GetCrawlConfiguration returns the denormalized projection crawl drivers use
func (s *SiteStorage) GetCrawlConfiguration(ctx context.Context, id string) (*models.CrawlConfiguration, error) {
	site, err := s.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CrawlConfiguration{
		SiteID:         site.ID,
		Name:           site.Name,
		BaseURL:        site.BaseURL,
		AllowedDomains: append([]string{}, site.AllowedDomains...),
		StartURLs:      append([]string{}, site.StartURLs...),
		AllowPatterns:  append([]string{}, site.AllowPatterns...),
		DenyPatterns:   append([]string{}, site.DenyPatterns...),
		MinDelay:       site.Politeness.MinDelay,
		UserAgent:      site.Politeness.UserAgent,
		MaxConcurrent:  site.Politeness.MaxConcurrent,
		Frequency:      site.Monitoring.Frequency,
	}, nil
}

// CountSites returns the total number of sites
func (s *SiteStorage) CountSites(ctx context.Context) (int, error) {
	var count int
	err := s.res.Execute(ctx, "count_sites", func() error {
		n, err := s.db.Store().Count(&models.Site{}, nil)
		if err != nil {
			return err
		}
		count = int(n)
		return nil
	})
	return count, err
}

// mutateSite loads a site, applies fn, bumps updated_at, and writes it back
func (s *SiteStorage) mutateSite(ctx context.Context, operation, id string, fn func(*models.Site) error) error {
	if err := common.ValidateID(common.SiteIDPrefix, id); err != nil {
		return &storage.ValidationError{Field: "site_id", Cause: err}
	}

	var notFound bool
	err := s.res.Execute(ctx, operation, func() error {
		notFound = false
		var site models.Site
		err := s.db.Store().Get(id, &site)
		if err == badgerhold.ErrNotFound {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(&site); err != nil {
			return err
		}
		site.UpdatedAt = time.Now().UTC()
		return s.db.Store().Update(id, &site)
	})
	if err != nil {
		return err
	}
	if notFound {
		return storage.NewNotFoundError("site", id)
	}
	return nil
}

func (s *SiteStorage) allSites(ctx context.Context, operation string) ([]*models.Site, error) {
	var sites []*models.Site
	err := s.res.Execute(ctx, operation, func() error {
		sites = nil
		var all []models.Site
		if err := s.db.Store().Find(&all, nil); err != nil {
			return err
		}
		for i := range all {
			sites = append(sites, &all[i])
		}
		return nil
	})
	return sites, err
}

// beforeNilFirst orders optional timestamps ascending with nil sorted first
func beforeNilFirst(a, b *time.Time) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	return a.Before(*b)
}
