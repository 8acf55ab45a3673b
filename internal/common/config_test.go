package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s failed: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Writing %s failed: %v", name, err)
	}
}

func TestLoadHierarchyLayering(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
crawling:
  default_delay: 2.0
  user_agent: "BaseAgent/1.0"
`)
	writeConfig(t, dir, "dev.yaml", `
crawling:
  default_delay: 3.0
`)
	writeConfig(t, dir, filepath.Join("sites.d", "sep.yaml"), `
sites:
  sep:
    base_url: "https://plato.stanford.edu"
    domains: ["plato.stanford.edu"]
`)

	config, err := LoadHierarchy(dir)
	if err != nil {
		t.Fatalf("LoadHierarchy failed: %v", err)
	}

	// dev.yaml overrides base.yaml, base.yaml overrides defaults.
	if config.Crawling.DefaultDelay != 3.0 {
		t.Errorf("DefaultDelay = %v, want 3.0 from dev.yaml", config.Crawling.DefaultDelay)
	}
	if config.Crawling.UserAgent != "BaseAgent/1.0" {
		t.Errorf("UserAgent = %q, want base.yaml value", config.Crawling.UserAgent)
	}
	if config.Crawling.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want untouched default", config.Crawling.MaxRetries)
	}
	if _, ok := config.Sites["sep"]; !ok {
		t.Error("sites.d document was not merged")
	}
}

func TestLoadHierarchyEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "debug: true\n")

	t.Setenv("CRAWLER_CRAWLING__DEFAULT_DELAY", "4.5")
	t.Setenv("CRAWLER_SECURITY__API_KEY", "from-env")
	t.Setenv("CRAWLER_LOGGING__LEVEL", "debug")

	config, err := LoadHierarchy(dir)
	if err != nil {
		t.Fatalf("LoadHierarchy failed: %v", err)
	}
	if config.Crawling.DefaultDelay != 4.5 {
		t.Errorf("DefaultDelay = %v, want env override 4.5", config.Crawling.DefaultDelay)
	}
	if config.Security.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override", config.Security.APIKey)
	}
	if config.Logging.Level != "DEBUG" {
		t.Errorf("Logging level = %q, want uppercased DEBUG", config.Logging.Level)
	}
}

func TestLoadHierarchyMissingFilesTolerated(t *testing.T) {
	config, err := LoadHierarchy(t.TempDir())
	if err != nil {
		t.Fatalf("LoadHierarchy on empty dir failed: %v", err)
	}
	if config.Environment != "dev" {
		t.Errorf("Environment = %q, want dev default", config.Environment)
	}
}

func TestLoadFromFilesBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", ":\n  - broken: [")

	if _, err := LoadFromFiles(filepath.Join(dir, "base.yaml")); err == nil {
		t.Fatal("Unparsable file loaded without error")
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	config := NewDefaultConfig()
	config.Crawling.DefaultDelay = 0.1 // below floor and below min_delay
	config.Retention.Policies["crawl_sessions"] = RetentionPolicyConfig{
		TTLField:         "started_at",
		RetentionDays:    90,
		ArchiveEnabled:   true,
		ArchiveAfterDays: 95,
	}
	config.Retention.Archive.Backend = "s3" // no bucket configured

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate passed an invalid config")
	}
	msg := err.Error()
	for _, want := range []string{"default_delay", "archive_after_days", "s3.bucket"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validation error missing %q failure: %s", want, msg)
		}
	}
}

func TestValidateProdConstraints(t *testing.T) {
	config := NewDefaultConfig()
	config.Environment = "prod"
	// dev defaults keep debug and hot reload on, both illegal in prod
	err := config.Validate()
	if err == nil {
		t.Fatal("Prod config with debug and hot_reload passed validation")
	}
	msg := err.Error()
	if !strings.Contains(msg, "debug") || !strings.Contains(msg, "hot_reload") {
		t.Errorf("Prod validation error = %s, want debug and hot_reload failures", msg)
	}
}

func TestApplyOverlayDoesNotMutateOriginal(t *testing.T) {
	original := NewDefaultConfig()
	merged, err := ApplyOverlay(original, map[string]interface{}{
		"crawling": map[string]interface{}{"default_delay": 9.0},
	})
	if err != nil {
		t.Fatalf("ApplyOverlay failed: %v", err)
	}
	if merged.Crawling.DefaultDelay != 9.0 {
		t.Errorf("Merged DefaultDelay = %v, want 9.0", merged.Crawling.DefaultDelay)
	}
	if original.Crawling.DefaultDelay != 1.0 {
		t.Errorf("Original DefaultDelay = %v, overlay mutated its input", original.Crawling.DefaultDelay)
	}
	if merged.Crawling.UserAgent != original.Crawling.UserAgent {
		t.Error("Overlay dropped untouched fields")
	}
}

func TestMaskedLeavesOriginalIntact(t *testing.T) {
	config := NewDefaultConfig()
	config.Database.URL = "postgres://user:pass@db/scriptorium"
	config.Security.APIKey = "api-key"

	masked := config.Masked()
	if masked.Database.URL != MaskedValue || masked.Security.APIKey != MaskedValue {
		t.Error("Secrets not masked")
	}
	if masked.Security.SecretKey != MaskedValue {
		t.Error("Secret key not masked")
	}
	if config.Database.URL == MaskedValue {
		t.Error("Masking mutated the original")
	}
}
