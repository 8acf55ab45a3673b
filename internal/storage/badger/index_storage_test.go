package badger

import (
	"context"
	"testing"

	"github.com/scriptorium-dev/scriptorium/internal/models"
)

func TestSearchContent(t *testing.T) {
	db, res, logger := newTestDB(t)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")

	entries := []struct {
		url      string
		content  string
		metadata map[string]string
	}{
		{"https://example.org/ethics", "virtue is knowledge and knowledge is virtue", map[string]string{"author": "Plato", "language": "en"}},
		{"https://example.org/politics", "man is by nature a political animal", map[string]string{"author": "Aristotle", "language": "en"}},
		{"https://example.org/meditations", "knowledge of our own nature", map[string]string{"author": "Descartes", "language": "fr"}},
	}
	for _, e := range entries {
		pageID := createTestPage(t, db, res, logger, siteID, e.url, e.content)
		if _, err := index.CreateContentIndex(ctx, &models.ContentIndex{
			PageID:        pageID,
			SearchContent: e.content,
			Metadata:      e.metadata,
		}); err != nil {
			t.Fatalf("CreateContentIndex failed: %v", err)
		}
	}

	// All terms must match, case-insensitive.
	results, err := index.SearchContent(ctx, "KNOWLEDGE nature", nil, 10, 0)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(results) != 1 || results[0].Metadata["author"] != "Descartes" {
		t.Errorf("Search results = %v, want only the Descartes entry", results)
	}

	// Metadata filters AND with the terms.
	results, err = index.SearchContent(ctx, "nature", map[string]string{"language": "en"}, 10, 0)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(results) != 1 || results[0].Metadata["author"] != "Aristotle" {
		t.Errorf("Filtered results = %v, want only the Aristotle entry", results)
	}

	// Higher term frequency ranks first.
	results, err = index.SearchContent(ctx, "knowledge", nil, 10, 0)
	if err != nil {
		t.Fatalf("SearchContent failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Results = %d, want 2", len(results))
	}
	if results[0].Metadata["author"] != "Plato" {
		t.Errorf("Top result author = %s, want Plato (two occurrences)", results[0].Metadata["author"])
	}
}

func TestUpsertContentIndexPreservesID(t *testing.T) {
	db, res, logger := newTestDB(t)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	pageID := createTestPage(t, db, res, logger, siteID, "https://example.org/ethics", "first")

	firstID, err := index.UpsertContentIndex(ctx, &models.ContentIndex{
		PageID:        pageID,
		SearchContent: "first body",
	})
	if err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	secondID, err := index.UpsertContentIndex(ctx, &models.ContentIndex{
		PageID:        pageID,
		SearchContent: "second body",
	})
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if secondID != firstID {
		t.Errorf("Upsert created new id %s, want existing %s", secondID, firstID)
	}

	entry, err := index.GetByPageID(ctx, pageID)
	if err != nil {
		t.Fatalf("GetByPageID failed: %v", err)
	}
	if entry.SearchContent != "second body" {
		t.Errorf("SearchContent = %q, want replaced content", entry.SearchContent)
	}
}

func TestGetMetadataFacets(t *testing.T) {
	db, res, logger := newTestDB(t)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	for i, meta := range []map[string]string{
		{"author": "Plato", "era": "ancient"},
		{"author": "Kant", "era": "modern"},
		{"author": "Plato"},
	} {
		pageID := createTestPage(t, db, res, logger, siteID,
			"https://example.org/p"+string(rune('a'+i)), "text")
		if _, err := index.CreateContentIndex(ctx, &models.ContentIndex{
			PageID: pageID, SearchContent: "text", Metadata: meta,
		}); err != nil {
			t.Fatalf("CreateContentIndex failed: %v", err)
		}
	}

	facets, err := index.GetMetadataFacets(ctx)
	if err != nil {
		t.Fatalf("GetMetadataFacets failed: %v", err)
	}
	authors := facets["author"]
	if len(authors) != 2 || authors[0] != "Kant" || authors[1] != "Plato" {
		t.Errorf("author facet = %v, want sorted distinct [Kant Plato]", authors)
	}
	if len(facets["era"]) != 2 {
		t.Errorf("era facet = %v, want 2 values", facets["era"])
	}
}

func TestDuplicateContentDetection(t *testing.T) {
	db, res, logger := newTestDB(t)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	body := "identical mirrored text"

	var hash string
	for _, url := range []string{"https://example.org/a", "https://example.org/b"} {
		pageID := createTestPage(t, db, res, logger, siteID, url, body)
		if _, err := index.CreateContentIndex(ctx, &models.ContentIndex{
			PageID: pageID, SearchContent: body,
		}); err != nil {
			t.Fatalf("CreateContentIndex failed: %v", err)
		}
		entry, err := index.GetByPageID(ctx, pageID)
		if err != nil {
			t.Fatalf("GetByPageID failed: %v", err)
		}
		hash = entry.ContentHash
	}

	dupes, err := index.GetDuplicateContent(ctx, hash)
	if err != nil {
		t.Fatalf("GetDuplicateContent failed: %v", err)
	}
	if len(dupes) != 2 {
		t.Errorf("Duplicates = %d, want 2", len(dupes))
	}
}

func TestCleanupOrphanedEntries(t *testing.T) {
	db, res, logger := newTestDB(t)
	index := NewIndexStorage(db, res, logger)
	ctx := context.Background()

	siteID := createTestSite(t, db, res, logger, "https://example.org")
	keepID := createTestPage(t, db, res, logger, siteID, "https://example.org/keep", "keep")
	dropID := createTestPage(t, db, res, logger, siteID, "https://example.org/drop", "drop")

	for _, pageID := range []string{keepID, dropID} {
		if _, err := index.CreateContentIndex(ctx, &models.ContentIndex{
			PageID: pageID, SearchContent: "text",
		}); err != nil {
			t.Fatalf("CreateContentIndex failed: %v", err)
		}
	}

	removed, err := index.CleanupOrphanedEntries(ctx, []string{keepID})
	if err != nil {
		t.Fatalf("CleanupOrphanedEntries failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Removed = %d, want 1", removed)
	}
	if _, err := index.GetByPageID(ctx, keepID); err != nil {
		t.Errorf("Kept entry lookup failed: %v", err)
	}
}
