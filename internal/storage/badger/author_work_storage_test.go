package badger

import (
	"context"
	"testing"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

func TestCreateAuthorWorkUniqueness(t *testing.T) {
	db, res, logger := newTestDB(t)
	works := NewAuthorWorkStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	pageID := createTestPage(t, db, res, logger, siteID, "https://example.org/republic", "text")

	work := &models.AuthorWork{
		WorkID:     "plato-republic",
		AuthorName: "Plato",
		WorkTitle:  "The Republic",
		SiteID:     siteID,
		PageID:     pageID,
	}
	id, err := works.CreateAuthorWork(ctx, work)
	if err != nil {
		t.Fatalf("CreateAuthorWork failed: %v", err)
	}

	// WorkID is globally unique.
	dup := &models.AuthorWork{
		WorkID:     "plato-republic",
		AuthorName: "Plato",
		WorkTitle:  "Republic (alternate translation)",
		SiteID:     siteID,
		PageID:     pageID,
	}
	if _, err := works.CreateAuthorWork(ctx, dup); !storage.IsDuplicate(err) {
		t.Errorf("Duplicate WorkID: got %v, want duplicate error", err)
	}

	found, err := works.GetWorkByWorkID(ctx, "plato-republic")
	if err != nil {
		t.Fatalf("GetWorkByWorkID failed: %v", err)
	}
	if found.ID != id {
		t.Errorf("GetWorkByWorkID = %s, want %s", found.ID, id)
	}

	if _, err := works.GetWorkByWorkID(ctx, "missing-work"); !storage.IsNotFound(err) {
		t.Errorf("Missing WorkID: got %v, want not-found", err)
	}
}

func TestCreateAuthorWorkValidation(t *testing.T) {
	db, res, logger := newTestDB(t)
	works := NewAuthorWorkStorage(db, res, logger)
	ctx := context.Background()

	cases := []struct {
		name string
		work *models.AuthorWork
	}{
		{"no author", &models.AuthorWork{WorkID: "w", WorkTitle: "T", SiteID: "s", PageID: "p"}},
		{"no title", &models.AuthorWork{WorkID: "w", AuthorName: "A", SiteID: "s", PageID: "p"}},
		{"no site", &models.AuthorWork{WorkID: "w", AuthorName: "A", WorkTitle: "T", PageID: "p"}},
		{"no page", &models.AuthorWork{WorkID: "w", AuthorName: "A", WorkTitle: "T", SiteID: "s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := works.CreateAuthorWork(ctx, tc.work); !storage.IsValidation(err) {
				t.Errorf("Got %v, want validation error", err)
			}
		})
	}
}

func TestGetWorksByAuthorCaseInsensitive(t *testing.T) {
	db, res, logger := newTestDB(t)
	works := NewAuthorWorkStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	pageID := createTestPage(t, db, res, logger, siteID, "https://example.org/ethics", "text")

	for _, w := range []struct{ workID, author, title string }{
		{"spinoza-ethics", "Spinoza", "Ethics"},
		{"spinoza-tie", "Spinoza", "On the Improvement of the Understanding"},
		{"hume-enquiry", "Hume", "An Enquiry Concerning Human Understanding"},
	} {
		if _, err := works.CreateAuthorWork(ctx, &models.AuthorWork{
			WorkID: w.workID, AuthorName: w.author, WorkTitle: w.title,
			SiteID: siteID, PageID: pageID,
		}); err != nil {
			t.Fatalf("CreateAuthorWork %s failed: %v", w.workID, err)
		}
	}

	found, err := works.GetWorksByAuthor(ctx, "SPINOZA")
	if err != nil {
		t.Fatalf("GetWorksByAuthor failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Works for Spinoza = %d, want 2", len(found))
	}
}

func TestGetWorksByYearRange(t *testing.T) {
	db, res, logger := newTestDB(t)
	works := NewAuthorWorkStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	pageID := createTestPage(t, db, res, logger, siteID, "https://example.org/works", "text")

	// Astronomical years: 380 BCE is -379.
	republic, err := models.ParseHistoricalDate("c. 380 BCE")
	if err != nil {
		t.Fatalf("ParseHistoricalDate failed: %v", err)
	}
	meditations, err := models.ParseHistoricalDate("1641")
	if err != nil {
		t.Fatalf("ParseHistoricalDate failed: %v", err)
	}

	dated := []struct {
		workID string
		date   *models.HistoricalDate
	}{
		{"plato-republic", &republic},
		{"descartes-meditations", &meditations},
		{"anon-fragment", nil},
	}
	for _, w := range dated {
		if _, err := works.CreateAuthorWork(ctx, &models.AuthorWork{
			WorkID: w.workID, AuthorName: "Author", WorkTitle: w.workID,
			SiteID: siteID, PageID: pageID, PublicationDate: w.date,
		}); err != nil {
			t.Fatalf("CreateAuthorWork %s failed: %v", w.workID, err)
		}
	}

	ancient, err := works.GetWorksByYearRange(ctx, -500, 0)
	if err != nil {
		t.Fatalf("GetWorksByYearRange failed: %v", err)
	}
	if len(ancient) != 1 || ancient[0].WorkID != "plato-republic" {
		t.Errorf("Ancient works = %v, want only plato-republic", ancient)
	}

	// Undated works never match a range.
	all, err := works.GetWorksByYearRange(ctx, -1000, 2000)
	if err != nil {
		t.Fatalf("GetWorksByYearRange failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Dated works = %d, want 2", len(all))
	}

	if _, err := works.GetWorksByYearRange(ctx, 100, -100); !storage.IsValidation(err) {
		t.Errorf("Inverted range: got %v, want validation error", err)
	}
}
