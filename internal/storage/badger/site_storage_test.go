package badger

import (
	"context"
	"testing"
	"time"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

func TestCreateSiteUniqueness(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	site := func(base string) *models.Site {
		return &models.Site{
			Name:           "Example Philosophy Archive",
			BaseURL:        base,
			AllowedDomains: []string{"example.org"},
			Monitoring:     models.MonitoringSettings{Active: true, Frequency: "daily"},
		}
	}

	id, err := sites.CreateSite(ctx, site("https://example.org"))
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	created, err := sites.GetSite(ctx, id)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if created.BaseURL != "https://example.org/" {
		t.Errorf("BaseURL = %s, want normalized with trailing slash", created.BaseURL)
	}
	if created.HealthStatus != models.HealthUnknown {
		t.Errorf("HealthStatus = %s, want unknown", created.HealthStatus)
	}

	// Base URL variants that normalize to the same value are duplicates.
	if _, err := sites.CreateSite(ctx, site("HTTPS://EXAMPLE.ORG/")); !storage.IsDuplicate(err) {
		t.Errorf("Duplicate base URL: got %v, want duplicate error", err)
	}
}

func TestCreateSiteValidation(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	cases := []struct {
		name string
		site *models.Site
	}{
		{"no name", &models.Site{BaseURL: "https://example.org", AllowedDomains: []string{"example.org"}}},
		{"no domains", &models.Site{Name: "x", BaseURL: "https://example.org"}},
		{"bad domain", &models.Site{Name: "x", BaseURL: "https://example.org", AllowedDomains: []string{"not a domain"}}},
		{"host outside domains", &models.Site{Name: "x", BaseURL: "https://other.net", AllowedDomains: []string{"example.org"}}},
		{"bad pattern", &models.Site{Name: "x", BaseURL: "https://example.org", AllowedDomains: []string{"example.org"}, AllowPatterns: []string{"("}}},
		{"bad frequency", &models.Site{Name: "x", BaseURL: "https://example.org", AllowedDomains: []string{"example.org"}, Monitoring: models.MonitoringSettings{Frequency: "hourly"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sites.CreateSite(ctx, tc.site); !storage.IsValidation(err) {
				t.Errorf("Got %v, want validation error", err)
			}
		})
	}
}

func TestUpdateCrawlSettingsPartial(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	id, err := sites.CreateSite(ctx, &models.Site{
		Name:           "Archive",
		BaseURL:        "https://example.org",
		AllowedDomains: []string{"example.org"},
		Politeness:     models.PolitenessSettings{MinDelay: 1.0, MaxConcurrent: 2},
	})
	if err != nil {
		t.Fatalf("CreateSite failed: %v", err)
	}

	delay := 5.0
	if err := sites.UpdateCrawlSettings(ctx, id, &models.CrawlSettingsUpdate{MinDelay: &delay}); err != nil {
		t.Fatalf("UpdateCrawlSettings failed: %v", err)
	}

	site, err := sites.GetSite(ctx, id)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site.Politeness.MinDelay != 5.0 {
		t.Errorf("MinDelay = %v, want 5.0", site.Politeness.MinDelay)
	}
	// untouched fields survive a partial update
	if site.Politeness.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", site.Politeness.MaxConcurrent)
	}
}

func TestDisableSiteExcludedFromActive(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	id := createTestSite(t, db, res, logger, "https://example.org")

	active, err := sites.GetActiveSites(ctx)
	if err != nil {
		t.Fatalf("GetActiveSites failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Active sites = %d, want 1", len(active))
	}

	if err := sites.DisableSite(ctx, id, "robots.txt disallows crawling"); err != nil {
		t.Fatalf("DisableSite failed: %v", err)
	}

	active, err = sites.GetActiveSites(ctx)
	if err != nil {
		t.Fatalf("GetActiveSites failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Active sites after disable = %d, want 0", len(active))
	}

	site, err := sites.GetSite(ctx, id)
	if err != nil {
		t.Fatalf("GetSite failed: %v", err)
	}
	if site.DisabledReason == "" || site.DisabledAt == nil {
		t.Error("Disabled site missing reason or timestamp")
	}
}

func TestGetSitesForCrawlSchedule(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	dueID := createTestSite(t, db, res, logger, "https://due.example.org")
	notDueID := createTestSite(t, db, res, logger, "https://fresh.example.org")

	// Push one site's next crawl into the future.
	if err := sites.UpdateNextScheduledCrawl(ctx, notDueID, time.Now().UTC().Add(24*time.Hour)); err != nil {
		t.Fatalf("UpdateNextScheduledCrawl failed: %v", err)
	}

	due, err := sites.GetSitesForCrawlSchedule(ctx, "daily")
	if err != nil {
		t.Fatalf("GetSitesForCrawlSchedule failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != dueID {
		ids := make([]string, len(due))
		for i, s := range due {
			ids[i] = s.ID
		}
		t.Errorf("Due sites = %v, want [%s]", ids, dueID)
	}
}

func TestGetSiteByDomain(t *testing.T) {
	db, res, logger := newTestDB(t)
	sites := NewSiteStorage(db, res, logger)
	ctx := context.Background()

	id := createTestSite(t, db, res, logger, "https://texts.example.org")

	found, err := sites.GetSiteByDomain(ctx, "texts.example.org")
	if err != nil {
		t.Fatalf("GetSiteByDomain failed: %v", err)
	}
	if found.ID != id {
		t.Errorf("GetSiteByDomain = %s, want %s", found.ID, id)
	}

	if _, err := sites.GetSiteByDomain(ctx, "unknown.net"); !storage.IsNotFound(err) {
		t.Errorf("Unknown domain: got %v, want not-found", err)
	}
}
