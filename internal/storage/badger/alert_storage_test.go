package badger

import (
	"context"
	"testing"
	"time"

	"github.com/scriptorium-dev/scriptorium/internal/models"
	"github.com/scriptorium-dev/scriptorium/internal/storage"
)

func TestAlertDeduplication(t *testing.T) {
	db, res, logger := newTestDB(t)
	alerts := NewAlertStorage(db, res, logger)
	ctx := context.Background()

	newAlert := func() *models.Alert {
		return &models.Alert{
			AlertType: "crawl_failure",
			Severity:  models.AlertSeverityHigh,
			Message:   "crawl failed three times",
			Context:   map[string]interface{}{"url": "https://example.org/ethics"},
		}
	}

	firstID, err := alerts.CreateAlert(ctx, newAlert())
	if err != nil {
		t.Fatalf("First create failed: %v", err)
	}

	// Identical (type, site, context) dedups onto the same alert.
	for want := 2; want <= 3; want++ {
		id, err := alerts.CreateAlert(ctx, newAlert())
		if err != nil {
			t.Fatalf("Create %d failed: %v", want, err)
		}
		if id != firstID {
			t.Fatalf("Create %d returned %s, want existing %s", want, id, firstID)
		}
		alert, err := alerts.GetAlert(ctx, firstID)
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if alert.OccurrenceCount != want {
			t.Errorf("Occurrence count = %d, want %d", alert.OccurrenceCount, want)
		}
	}

	// A different context is a different fingerprint.
	other := newAlert()
	other.Context = map[string]interface{}{"url": "https://example.org/republic"}
	otherID, err := alerts.CreateAlert(ctx, other)
	if err != nil {
		t.Fatalf("Distinct create failed: %v", err)
	}
	if otherID == firstID {
		t.Error("Distinct context deduplicated onto the same alert")
	}
}

func TestAlertSuppression(t *testing.T) {
	db, res, logger := newTestDB(t)
	alerts := NewAlertStorage(db, res, logger)
	ctx := context.Background()

	if err := alerts.SuppressAlertType(ctx, "site_unhealthy", 2); err != nil {
		t.Fatalf("SuppressAlertType failed: %v", err)
	}

	_, err := alerts.CreateAlert(ctx, &models.Alert{
		AlertType: "site_unhealthy",
		Severity:  models.AlertSeverityMedium,
		Message:   "health check failed",
	})
	if err != storage.ErrAlertSuppressed {
		t.Fatalf("Suppressed create returned %v, want ErrAlertSuppressed", err)
	}

	// Other types are unaffected.
	if _, err := alerts.CreateAlert(ctx, &models.Alert{
		AlertType: "queue_backlog",
		Severity:  models.AlertSeverityLow,
		Message:   "queue above threshold",
	}); err != nil {
		t.Fatalf("Unsuppressed create failed: %v", err)
	}

	suppressed, err := alerts.GetSuppressedAlerts(ctx)
	if err != nil {
		t.Fatalf("GetSuppressedAlerts failed: %v", err)
	}
	if len(suppressed) != 1 || suppressed[0].AlertType != "site_unhealthy" {
		t.Errorf("Unexpected suppressions: %v", suppressed)
	}
}

func TestEscalateUnresolvedAlertsOnce(t *testing.T) {
	db, res, logger := newTestDB(t)
	alerts := NewAlertStorage(db, res, logger)
	ctx := context.Background()

	id, err := alerts.CreateAlert(ctx, &models.Alert{
		AlertType: "crawl_failure",
		Severity:  models.AlertSeverityCritical,
		Message:   "persistent failure",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Low severity never escalates.
	if _, err := alerts.CreateAlert(ctx, &models.Alert{
		AlertType: "queue_backlog",
		Severity:  models.AlertSeverityLow,
		Message:   "minor backlog",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Age the critical alert past the escalation threshold.
	var alert models.Alert
	if err := db.Store().Get(id, &alert); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	alert.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	if err := db.Store().Update(id, &alert); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	escalated, err := alerts.EscalateUnresolvedAlerts(ctx, 2)
	if err != nil {
		t.Fatalf("Escalate failed: %v", err)
	}
	if len(escalated) != 1 || escalated[0].ID != id {
		t.Fatalf("Escalated %v, want exactly [%s]", escalated, id)
	}
	if escalated[0].EscalatedAt == nil {
		t.Error("Escalated alert has no escalated_at")
	}

	// Second sweep finds nothing: escalation happens once per alert.
	again, err := alerts.EscalateUnresolvedAlerts(ctx, 2)
	if err != nil {
		t.Fatalf("Second escalate failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Second sweep escalated %d alerts, want 0", len(again))
	}
}

func TestResolveAlertIdempotent(t *testing.T) {
	db, res, logger := newTestDB(t)
	alerts := NewAlertStorage(db, res, logger)
	ctx := context.Background()

	id, err := alerts.CreateAlert(ctx, &models.Alert{
		AlertType: "crawl_failure",
		Severity:  models.AlertSeverityHigh,
		Message:   "failure",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resolved, err := alerts.ResolveAlert(ctx, id, "site recovered")
	if err != nil || !resolved {
		t.Fatalf("First resolve: resolved=%v err=%v", resolved, err)
	}
	resolved, err = alerts.ResolveAlert(ctx, id, "again")
	if err != nil {
		t.Fatalf("Second resolve errored: %v", err)
	}
	if resolved {
		t.Error("Resolving a resolved alert reported true")
	}
}

func TestGetActiveAlertsOrdering(t *testing.T) {
	db, res, logger := newTestDB(t)
	alerts := NewAlertStorage(db, res, logger)
	ctx := context.Background()

	for _, severity := range []string{
		models.AlertSeverityLow,
		models.AlertSeverityCritical,
		models.AlertSeverityMedium,
	} {
		if _, err := alerts.CreateAlert(ctx, &models.Alert{
			AlertType: "t_" + severity,
			Severity:  severity,
			Message:   severity,
		}); err != nil {
			t.Fatalf("Create %s failed: %v", severity, err)
		}
	}

	active, err := alerts.GetActiveAlerts(ctx, "")
	if err != nil {
		t.Fatalf("GetActiveAlerts failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("Active alerts = %d, want 3", len(active))
	}
	want := []string{models.AlertSeverityCritical, models.AlertSeverityMedium, models.AlertSeverityLow}
	for i, severity := range want {
		if active[i].Severity != severity {
			t.Errorf("Position %d severity = %s, want %s", i, active[i].Severity, severity)
		}
	}
}
