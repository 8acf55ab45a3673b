package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

func seedAlertAt(t *testing.T, db *BadgerDB, id string, createdAt time.Time) {
	t.Helper()
	alert := &models.Alert{
		ID:        id,
		AlertType: "crawl_failure",
		Severity:  models.AlertSeverityLow,
		Title:     "seed",
		Status:    models.AlertStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := db.Store().Insert(id, alert); err != nil {
		t.Fatalf("Seeding alert %s failed: %v", id, err)
	}
}

func TestEnsurePolicyIdempotent(t *testing.T) {
	db, res, logger := newTestDB(t)
	retention := NewRetentionStorage(db, res, logger)
	ctx := context.Background()

	policy := &models.RetentionPolicy{
		Collection:    "alerts",
		TTLField:      "created_at",
		RetentionDays: 180,
	}
	if err := retention.EnsurePolicy(ctx, policy); err != nil {
		t.Fatalf("EnsurePolicy failed: %v", err)
	}

	// Re-ensuring identical settings is a no-op.
	if err := retention.EnsurePolicy(ctx, &models.RetentionPolicy{
		Collection:    "alerts",
		TTLField:      "created_at",
		RetentionDays: 180,
	}); err != nil {
		t.Fatalf("Idempotent ensure failed: %v", err)
	}
	policies, err := retention.GetPolicies(ctx)
	if err != nil {
		t.Fatalf("GetPolicies failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("Policies = %d, want 1", len(policies))
	}
	firstUpdated := policies[0].UpdatedAt

	// Changed settings are written through.
	if err := retention.EnsurePolicy(ctx, &models.RetentionPolicy{
		Collection:    "alerts",
		TTLField:      "created_at",
		RetentionDays: 90,
	}); err != nil {
		t.Fatalf("Updating ensure failed: %v", err)
	}
	policies, err = retention.GetPolicies(ctx)
	if err != nil {
		t.Fatalf("GetPolicies failed: %v", err)
	}
	if policies[0].RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", policies[0].RetentionDays)
	}
	if policies[0].UpdatedAt.Before(firstUpdated) {
		t.Error("UpdatedAt not advanced after settings change")
	}
}

func TestEnsurePolicyValidation(t *testing.T) {
	db, res, logger := newTestDB(t)
	retention := NewRetentionStorage(db, res, logger)
	ctx := context.Background()

	cases := []struct {
		name   string
		policy *models.RetentionPolicy
	}{
		{"unknown collection", &models.RetentionPolicy{Collection: "pages", TTLField: "created_at", RetentionDays: 30}},
		{"zero retention", &models.RetentionPolicy{Collection: "alerts", TTLField: "created_at"}},
		{"archive after cutoff", &models.RetentionPolicy{Collection: "alerts", TTLField: "created_at", RetentionDays: 30, ArchiveEnabled: true, ArchiveAfterDays: 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := retention.EnsurePolicy(ctx, tc.policy); !storage.IsValidation(err) {
				t.Errorf("Got %v, want validation error", err)
			}
		})
	}
}

func TestFetchBatchOlderThanOrderingAndResume(t *testing.T) {
	db, res, logger := newTestDB(t)
	retention := NewRetentionStorage(db, res, logger)
	ctx := context.Background()

	now := time.Now().UTC()
	// Five old alerts and one recent one.
	for i := 0; i < 5; i++ {
		seedAlertAt(t, db, fmt.Sprintf("alert_old_%d", i), now.AddDate(0, 0, -200+i))
	}
	seedAlertAt(t, db, "alert_recent", now)

	cutoff := now.AddDate(0, 0, -180)

	count, err := retention.CountOlderThan(ctx, "alerts", cutoff)
	if err != nil {
		t.Fatalf("CountOlderThan failed: %v", err)
	}
	if count != 5 {
		t.Errorf("CountOlderThan = %d, want 5", count)
	}

	first, err := retention.FetchBatchOlderThan(ctx, "alerts", cutoff, "", 3)
	if err != nil {
		t.Fatalf("First batch failed: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("First batch = %d, want 3", len(first))
	}
	// Oldest first.
	if first[0].ID != "alert_old_0" {
		t.Errorf("First document = %s, want alert_old_0", first[0].ID)
	}
	if !first[0].SortKey.Before(first[2].SortKey) {
		t.Error("Batch not in ascending timestamp order")
	}

	second, err := retention.FetchBatchOlderThan(ctx, "alerts", cutoff, first[2].ID, 3)
	if err != nil {
		t.Fatalf("Second batch failed: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("Second batch = %d, want the 2 remaining", len(second))
	}
	for _, doc := range second {
		if doc.ID == first[0].ID || doc.ID == first[1].ID || doc.ID == first[2].ID {
			t.Errorf("Document %s returned twice across batches", doc.ID)
		}
	}

	// Payload carries the JSON shape with RFC 3339 timestamps.
	if _, ok := first[0].Payload["created_at"].(string); !ok {
		t.Errorf("Payload created_at = %T, want RFC 3339 string", first[0].Payload["created_at"])
	}
}

func TestDeleteDocumentsSkipsMissing(t *testing.T) {
	db, res, logger := newTestDB(t)
	retention := NewRetentionStorage(db, res, logger)
	ctx := context.Background()

	now := time.Now().UTC()
	seedAlertAt(t, db, "alert_a", now)
	seedAlertAt(t, db, "alert_b", now)

	deleted, err := retention.DeleteDocuments(ctx, "alerts", []string{"alert_a", "alert_missing", "alert_b"})
	if err != nil {
		t.Fatalf("DeleteDocuments failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Deleted = %d, want 2", deleted)
	}

	remaining, err := retention.CountDocuments(ctx, "alerts")
	if err != nil {
		t.Fatalf("CountDocuments failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Remaining = %d, want 0", remaining)
	}
}
