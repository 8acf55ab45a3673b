package badger

import (
	"context"
	"testing"

	"github.com/scriptorium-dev/scriptorium/internal/common"
	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

func TestCreatePageNormalizesURL(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")

	id, err := pages.CreatePage(ctx, &models.PageCreate{
		SiteID: siteID,
		URL:    "HTTPS://Example.org/Ethics/#part-one",
	})
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	page, err := pages.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.URL != "https://example.org/Ethics" {
		t.Errorf("URL = %s, want https://example.org/Ethics", page.URL)
	}

	// The same URL with a different fragment is the same page.
	_, err = pages.CreatePage(ctx, &models.PageCreate{
		SiteID: siteID,
		URL:    "https://example.org/Ethics#part-two",
	})
	if !storage.IsDuplicate(err) {
		t.Errorf("Fragment variant: got %v, want duplicate error", err)
	}

	// Lookup goes through the same normalization.
	found, err := pages.GetPageByURL(ctx, "HTTPS://EXAMPLE.ORG/Ethics/")
	if err != nil {
		t.Fatalf("GetPageByURL failed: %v", err)
	}
	if found.ID != id {
		t.Errorf("GetPageByURL = %s, want %s", found.ID, id)
	}
}

func TestCreatePageComputesContentHash(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	content := "The unexamined life is not worth living."

	id, err := pages.CreatePage(ctx, &models.PageCreate{
		SiteID:  siteID,
		URL:     "https://example.org/apology",
		Content: content,
	})
	if err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}

	page, err := pages.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.ContentHash != common.ComputeContentHash(content) {
		t.Errorf("ContentHash = %s, want SHA-256 of content", page.ContentHash)
	}

	exists, err := pages.CheckContentExists(ctx, page.ContentHash)
	if err != nil {
		t.Fatalf("CheckContentExists failed: %v", err)
	}
	if !exists {
		t.Error("CheckContentExists = false for stored content")
	}
}

func TestUpdatePageContentVersioning(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	id := createTestPage(t, db, res, logger, siteID, "https://example.org/ethics", "first version")

	if err := pages.MarkPageProcessed(ctx, id, map[string]interface{}{"words": 2}); err != nil {
		t.Fatalf("MarkPageProcessed failed: %v", err)
	}

	if err := pages.UpdatePageContent(ctx, id, "second version"); err != nil {
		t.Fatalf("UpdatePageContent failed: %v", err)
	}

	page, err := pages.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.Content != "second version" {
		t.Errorf("Content = %q, want updated content", page.Content)
	}
	if len(page.Versions) != 1 || page.Versions[0].Content != "first version" {
		t.Errorf("Versions = %v, want one snapshot of the first version", page.Versions)
	}
	// replacement resets processing
	if page.ProcessingStatus != models.PageStatusPending {
		t.Errorf("ProcessingStatus = %s, want pending after content replacement", page.ProcessingStatus)
	}
}

func TestBulkUpdateProcessingStatusAllOrNothing(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	idA := createTestPage(t, db, res, logger, siteID, "https://example.org/a", "a")
	idB := createTestPage(t, db, res, logger, siteID, "https://example.org/b", "b")

	err := pages.BulkUpdateProcessingStatus(ctx, []string{idA, idB, "page_00000000-0000-0000-0000-000000000000"}, models.PageStatusProcessed)
	if err == nil {
		t.Fatal("Bulk update with a missing id succeeded, want failure")
	}

	// Nothing was applied.
	for _, id := range []string{idA, idB} {
		page, err := pages.GetPage(ctx, id)
		if err != nil {
			t.Fatalf("GetPage failed: %v", err)
		}
		if page.ProcessingStatus != models.PageStatusPending {
			t.Errorf("Page %s status = %s, want pending after rolled-back bulk update", id, page.ProcessingStatus)
		}
	}

	if err := pages.BulkUpdateProcessingStatus(ctx, []string{idA, idB}, models.PageStatusProcessed); err != nil {
		t.Fatalf("Valid bulk update failed: %v", err)
	}
	page, err := pages.GetPage(ctx, idA)
	if err != nil {
		t.Fatalf("GetPage failed: %v", err)
	}
	if page.ProcessingStatus != models.PageStatusProcessed {
		t.Errorf("Status = %s, want processed", page.ProcessingStatus)
	}
}

func TestDeletePageRemovesIndexEntry(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	pageID := createTestPage(t, db, res, logger, siteID, "https://example.org/ethics", "body text")

	if _, err := index.CreateContentIndex(ctx, &models.ContentIndex{
		PageID:        pageID,
		SearchContent: "body text",
	}); err != nil {
		t.Fatalf("CreateContentIndex failed: %v", err)
	}

	if err := pages.DeletePage(ctx, pageID); err != nil {
		t.Fatalf("DeletePage failed: %v", err)
	}

	if _, err := pages.GetPage(ctx, pageID); !storage.IsNotFound(err) {
		t.Errorf("Deleted page lookup: got %v, want not-found", err)
	}
	if _, err := index.GetByPageID(ctx, pageID); !storage.IsNotFound(err) {
		t.Errorf("Orphan index lookup: got %v, want not-found", err)
	}
}

func TestGetUnprocessedPages(t *testing.T) {
	db, res, logger := newTestDB(t)
	pages := NewPageStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	idPending := createTestPage(t, db, res, logger, siteID, "https://example.org/a", "a")
	idDone := createTestPage(t, db, res, logger, siteID, "https://example.org/b", "b")

	if err := pages.MarkPageProcessed(ctx, idDone, nil); err != nil {
		t.Fatalf("MarkPageProcessed failed: %v", err)
	}

	unprocessed, err := pages.GetUnprocessedPages(ctx, siteID, 100)
	if err != nil {
		t.Fatalf("GetUnprocessedPages failed: %v", err)
	}
	if len(unprocessed) != 1 || unprocessed[0].ID != idPending {
		t.Errorf("Unprocessed = %v, want only %s", unprocessed, idPending)
	}
}
