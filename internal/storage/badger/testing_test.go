package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

// newTestDB opens a throwaway Badger database under the test's temp dir
func newTestDB(t *testing.T) (*BadgerDB, *storage.Resilience, arbor.ILogger) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "badger"),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	res := storage.NewDefaultResilience("test", logger)
	return db, res, logger
}

// createTestSite inserts a minimal valid site and returns its id
func createTestSite(t *testing.T, db *BadgerDB, res *storage.Resilience, logger arbor.ILogger, baseURL string) string {
	t.Helper()

	sites := NewSiteStorage(db, res, logger)
	id, err := sites.CreateSite(context.Background(), &models.Site{
		Name:           "Test Archive",
		BaseURL:        baseURL,
		AllowedDomains: []string{common.HostFromURL(baseURL)},
		Monitoring:     models.MonitoringSettings{Active: true, Frequency: "daily"},
	})
	if err != nil {
		t.Fatalf("Failed to create test site: %v", err)
	}
	return id
}

// createTestPage inserts a page for the site and returns its id
func createTestPage(t *testing.T, db *BadgerDB, res *storage.Resilience, logger arbor.ILogger, siteID, url, content string) string {
	t.Helper()

	pages := NewPageStorage(db, res, logger)
	id, err := pages.CreatePage(context.Background(), &models.PageCreate{
		SiteID:  siteID,
		URL:     url,
		Title:   "Test Page",
		Content: content,
	})
	if err != nil {
		t.Fatalf("Failed to create test page: %v", err)
	}
	return id
}
