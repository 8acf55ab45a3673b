package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/scriptorium-dev/scriptorium/internal/common"
)

func newTestService(t *testing.T, configDir string) *Service {
	t.Helper()

	svc, err := NewService(common.NewDefaultConfig(), configDir, arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func TestUpdateConfigDeepMerge(t *testing.T) {
	svc := newTestService(t, "")

	before := svc.GetConfig()
	if err := svc.UpdateConfig(map[string]interface{}{
		"crawling": map[string]interface{}{
			"default_delay": 2.5,
		},
	}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	after := svc.GetConfig()
	if after.Crawling.DefaultDelay != 2.5 {
		t.Errorf("DefaultDelay = %v, want 2.5", after.Crawling.DefaultDelay)
	}
	// untouched branches survive the merge
	if after.Crawling.UserAgent != before.Crawling.UserAgent {
		t.Errorf("UserAgent changed across a partial update: %q", after.Crawling.UserAgent)
	}
	if after.Storage.Badger.Path != before.Storage.Badger.Path {
		t.Errorf("Badger path changed across a partial update: %q", after.Storage.Badger.Path)
	}
}

func TestUpdateConfigRefusedInProd(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Environment = "prod"
	cfg.Debug = false
	cfg.HotReload = false
	svc, err := NewService(cfg, "", arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	err = svc.UpdateConfig(map[string]interface{}{"debug": true})
	if err == nil {
		t.Fatal("Runtime update in prod succeeded, want refusal")
	}
	if svc.GetConfig().Debug {
		t.Error("Refused update still mutated the live config")
	}
}

func TestUpdateConfigValidationFailureKeepsOldValue(t *testing.T) {
	svc := newTestService(t, "")
	before := svc.GetConfig().Crawling.DefaultDelay

	err := svc.UpdateConfig(map[string]interface{}{
		"crawling": map[string]interface{}{
			"default_delay": 0.1, // below the politeness floor
		},
	})
	if err == nil {
		t.Fatal("Invalid update succeeded, want validation failure")
	}
	if got := svc.GetConfig().Crawling.DefaultDelay; got != before {
		t.Errorf("DefaultDelay = %v after failed update, want %v", got, before)
	}
}

func TestSubscribersNotifiedOncePerSwap(t *testing.T) {
	svc := newTestService(t, "")

	var order []string
	svc.Subscribe("beta", func(*common.Config) { order = append(order, "beta") })
	svc.Subscribe("alpha", func(*common.Config) { order = append(order, "alpha") })
	unsubscribe := svc.Subscribe("gamma", func(*common.Config) { order = append(order, "gamma") })

	if err := svc.UpdateConfig(map[string]interface{}{"debug": true}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if len(order) != 3 || order[0] != "alpha" || order[1] != "beta" || order[2] != "gamma" {
		t.Errorf("Notification order = %v, want sorted names once each", order)
	}

	// A deregistered subscriber is not called again.
	unsubscribe()
	order = nil
	if err := svc.UpdateConfig(map[string]interface{}{"debug": false}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("Notifications after unsubscribe = %v, want alpha and beta only", order)
	}

	// A failed update must not notify anyone.
	order = nil
	if err := svc.UpdateConfig(map[string]interface{}{
		"crawling": map[string]interface{}{"default_delay": 0.1},
	}); err == nil {
		t.Fatal("Invalid update succeeded")
	}
	if len(order) != 0 {
		t.Errorf("Subscribers notified on a failed update: %v", order)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	svc := newTestService(t, "")

	called := false
	svc.Subscribe("a-panics", func(*common.Config) { panic("subscriber bug") })
	svc.Subscribe("b-survives", func(*common.Config) { called = true })

	if err := svc.UpdateConfig(map[string]interface{}{"debug": true}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}
	if !called {
		t.Error("Panicking subscriber blocked the next one")
	}
}

func TestGetMaskedConfig(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Security.SecretKey = "super-secret"
	cfg.Retention.Archive.S3.SecretAccessKey = "s3-secret"
	svc, err := NewService(cfg, "", arbor.NewLogger())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	masked := svc.GetMaskedConfig()
	if masked.Security.SecretKey != common.MaskedValue {
		t.Errorf("SecretKey = %q, want masked", masked.Security.SecretKey)
	}
	if masked.Retention.Archive.S3.SecretAccessKey != common.MaskedValue {
		t.Errorf("S3 secret = %q, want masked", masked.Retention.Archive.S3.SecretAccessKey)
	}

	// The live value stays intact.
	if svc.GetConfig().Security.SecretKey != "super-secret" {
		t.Error("Masking mutated the live config")
	}
}

func TestReloadConfigKeepsPreviousOnFailure(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte("debug: true\n"), 0o644); err != nil {
		t.Fatalf("Writing base.yaml failed: %v", err)
	}

	svc := newTestService(t, dir)
	if err := svc.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig failed: %v", err)
	}
	if !svc.GetConfig().Debug {
		t.Error("Reload did not pick up base.yaml")
	}

	// A file that no longer parses leaves the previous value in force.
	if err := os.WriteFile(base, []byte(":\n  - not yaml: ["), 0o644); err != nil {
		t.Fatalf("Corrupting base.yaml failed: %v", err)
	}
	if err := svc.ReloadConfig(); err == nil {
		t.Fatal("Reload of a broken file succeeded")
	}
	if !svc.GetConfig().Debug {
		t.Error("Failed reload replaced the live config")
	}
}
