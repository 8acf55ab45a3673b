package common

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MaskedValue replaces secrets in the masked configuration view.
const MaskedValue = "***MASKED***"

// Config is the full application configuration. Values are assembled from
// defaults, then base.yaml, then <environment>.yaml, then per-site documents
// under sites.d/, then CRAWLER_* environment variables, then any runtime
// overlay. Later sources override earlier ones.
type Config struct {
	Environment   string                `yaml:"environment" validate:"required,oneof=dev staging prod"`
	Debug         bool                  `yaml:"debug"`
	HotReload     bool                  `yaml:"hot_reload"`
	Database      DatabaseConfig        `yaml:"database"`
	Security      SecurityConfig        `yaml:"security"`
	Logging       LoggingConfig         `yaml:"logging"`
	Crawling      CrawlingConfig        `yaml:"crawling"`
	Notifications NotificationsConfig   `yaml:"notifications"`
	Sites         map[string]SiteConfig `yaml:"sites"`
	Storage       StorageConfig         `yaml:"storage"`
	Retention     RetentionConfig       `yaml:"retention"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url"`
	PoolSize    int    `yaml:"pool_size" validate:"min=1,max=50"`
	MaxOverflow int    `yaml:"max_overflow" validate:"min=0,max=100"`
	PoolTimeout int    `yaml:"pool_timeout" validate:"min=1,max=300"`
	PoolRecycle int    `yaml:"pool_recycle" validate:"min=300"`
	Echo        bool   `yaml:"echo"`
}

type SecurityConfig struct {
	SecretKey          string   `yaml:"secret_key" validate:"required"`
	APIKey             string   `yaml:"api_key"`
	TokenExpiry        int      `yaml:"token_expiry" validate:"min=300,max=86400"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" validate:"min=1,max=1000"`
	AllowedHosts       []string `yaml:"allowed_hosts"`
	CORSOrigins        []string `yaml:"cors_origins"`
}

type LoggingConfig struct {
	Level         string `yaml:"level" validate:"oneof=DEBUG INFO WARNING ERROR CRITICAL"`
	Format        string `yaml:"format"`
	FilePath      string `yaml:"file_path"`
	MaxBytes      int    `yaml:"max_bytes" validate:"min=1024"`
	BackupCount   int    `yaml:"backup_count" validate:"min=1,max=100"`
	Structured    bool   `yaml:"structured"`
	CrawlerLevel  string `yaml:"crawler_level"`
	ConfigLevel   string `yaml:"config_level"`
	DatabaseLevel string `yaml:"database_level"`
}

type CrawlingConfig struct {
	DefaultDelay          float64       `yaml:"default_delay" validate:"min=0.1,max=60"`
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests" validate:"min=1,max=50"`
	RequestTimeout        int           `yaml:"request_timeout" validate:"min=5,max=300"`
	MaxRetries            int           `yaml:"max_retries" validate:"min=0,max=10"`
	RetryDelay            float64       `yaml:"retry_delay" validate:"min=0.5,max=30"`
	UserAgent             string        `yaml:"user_agent"`
	RespectRobotsTxt      bool          `yaml:"respect_robots_txt"`
	MaxPageSize           int           `yaml:"max_page_size" validate:"min=1024"`
	AllowedContentTypes   []string      `yaml:"allowed_content_types"`
	MinDelay              float64       `yaml:"min_delay" validate:"min=0.1"`
	BurstDelay            float64       `yaml:"burst_delay" validate:"min=1"`
	MaxPagesPerDomain     int           `yaml:"max_pages_per_domain" validate:"min=1"`
	MaxConcurrentSessions int           `yaml:"max_concurrent_sessions" validate:"min=1"`
	TaskLeaseTimeout      time.Duration `yaml:"task_lease_timeout"`
}

type NotificationsConfig struct {
	Enabled              bool         `yaml:"enabled"`
	Email                *EmailConfig `yaml:"email"`
	Slack                *SlackConfig `yaml:"slack"`
	ErrorThreshold       int          `yaml:"error_threshold" validate:"min=1"`
	FailureRateThreshold float64      `yaml:"failure_rate_threshold" validate:"min=0,max=1"`
	QueueSizeThreshold   int          `yaml:"queue_size_threshold" validate:"min=1"`
	QuietHoursStart      string       `yaml:"quiet_hours_start"`
	QuietHoursEnd        string       `yaml:"quiet_hours_end"`
	MaxAlertsPerHour     int          `yaml:"max_alerts_per_hour" validate:"min=1,max=100"`
}

type EmailConfig struct {
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password"`
	FromAddress  string   `yaml:"from_address"`
	ToAddresses  []string `yaml:"to_addresses"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type SiteConfig struct {
	Name              string            `yaml:"name"`
	BaseURL           string            `yaml:"base_url"`
	Domains           []string          `yaml:"domains"`
	Enabled           bool              `yaml:"enabled"`
	Priority          int               `yaml:"priority" validate:"min=1,max=10"`
	StartURLs         []string          `yaml:"start_urls"`
	AllowPatterns     []string          `yaml:"allow_patterns"`
	DenyPatterns      []string          `yaml:"deny_patterns"`
	ContentSelectors  map[string]string `yaml:"content_selectors"`
	Delay             float64           `yaml:"delay"`
	MaxConcurrent     int               `yaml:"max_concurrent"`
	RequestsPerMinute int               `yaml:"requests_per_minute" validate:"min=0,max=60"`
	DailyLimit        int               `yaml:"daily_limit" validate:"min=0"`
	MaxDepth          int               `yaml:"max_depth" validate:"min=1,max=20"`
	Frequency         string            `yaml:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	HealthCheckURL    string            `yaml:"health_check_url"`
	NotificationLevel string            `yaml:"notification_level"`
	Tags              []string          `yaml:"tags"`
}

type StorageConfig struct {
	Badger BadgerConfig `yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `yaml:"path"`
	ResetOnStartup bool   `yaml:"reset_on_startup"`
}

type RetentionConfig struct {
	DryRun          bool                             `yaml:"dry_run"`
	BatchesPerSec   float64                          `yaml:"batches_per_sec"`
	Archive         ArchiveConfig                    `yaml:"archive"`
	Policies        map[string]RetentionPolicyConfig `yaml:"policies"`
	CleanupSchedule string                           `yaml:"cleanup_schedule"`
}

type ArchiveConfig struct {
	Backend   string   `yaml:"backend" validate:"oneof=s3 filesystem"`
	Directory string   `yaml:"directory"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

type RetentionPolicyConfig struct {
	TTLField           string `yaml:"ttl_field"`
	RetentionDays      int    `yaml:"retention_days" validate:"min=1"`
	ArchiveEnabled     bool   `yaml:"archive_enabled"`
	ArchiveAfterDays   int    `yaml:"archive_after_days"`
	CompressionEnabled bool   `yaml:"compression_enabled"`
}

// NewDefaultConfig returns the configuration defaults for dev
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "dev",
		Debug:       true,
		HotReload:   true,
		Database: DatabaseConfig{
			PoolSize:    5,
			MaxOverflow: 10,
			PoolTimeout: 30,
			PoolRecycle: 3600,
			Echo:        false,
		},
		Security: SecurityConfig{
			SecretKey:          "dev-secret-key",
			TokenExpiry:        3600,
			RateLimitPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:         "INFO",
			Format:        "text",
			MaxBytes:      10 * 1024 * 1024,
			BackupCount:   5,
			Structured:    false,
			CrawlerLevel:  "INFO",
			ConfigLevel:   "WARNING",
			DatabaseLevel: "WARNING",
		},
		Crawling: CrawlingConfig{
			DefaultDelay:          1.0,
			MaxConcurrentRequests: 5,
			RequestTimeout:        30,
			MaxRetries:            3,
			RetryDelay:            2.0,
			UserAgent:             "Scriptorium/1.0 (+https://github.com/scriptorium-dev/scriptorium)",
			RespectRobotsTxt:      true,
			MaxPageSize:           10 * 1024 * 1024,
			AllowedContentTypes:   []string{"text/html", "application/xhtml+xml", "text/plain"},
			MinDelay:              0.5,
			BurstDelay:            5.0,
			MaxPagesPerDomain:     1000,
			MaxConcurrentSessions: 1,
			TaskLeaseTimeout:      10 * time.Minute,
		},
		Notifications: NotificationsConfig{
			Enabled:              false,
			ErrorThreshold:       10,
			FailureRateThreshold: 0.1,
			QueueSizeThreshold:   1000,
			MaxAlertsPerHour:     5,
		},
		Sites: map[string]SiteConfig{},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/scriptorium",
			},
		},
		Retention: RetentionConfig{
			BatchesPerSec: 2,
			Archive: ArchiveConfig{
				Backend:   "filesystem",
				Directory: "./data/archives",
			},
			Policies: DefaultRetentionPolicies(),
		},
	}
}

// DefaultRetentionPolicies returns the built-in per-collection retention
// policies: content changes kept a year, sessions 90 days with archival,
// alerts 180 days, queue tasks 30 days.
func DefaultRetentionPolicies() map[string]RetentionPolicyConfig {
	return map[string]RetentionPolicyConfig{
		"content_changes": {TTLField: "detected_at", RetentionDays: 365},
		"crawl_sessions": {
			TTLField:           "started_at",
			RetentionDays:      90,
			ArchiveEnabled:     true,
			ArchiveAfterDays:   85,
			CompressionEnabled: true,
		},
		"alerts":           {TTLField: "created_at", RetentionDays: 180},
		"processing_queue": {TTLField: "created_at", RetentionDays: 30},
	}
}

// ResolveEnvironment reads ENVIRONMENT (or ENV) and lowercases it; unset
// defaults to dev.
func ResolveEnvironment() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return "dev"
	}
	return env
}

// LoadHierarchy loads the full configuration hierarchy rooted at dir:
// defaults, base.yaml, <environment>.yaml, sites.d/*.yaml (sorted), then
// environment variable overrides. The result is validated.
func LoadHierarchy(dir string) (*Config, error) {
	env := ResolveEnvironment()

	paths := []string{
		filepath.Join(dir, "base.yaml"),
		filepath.Join(dir, env+".yaml"),
	}
	siteDocs, err := filepath.Glob(filepath.Join(dir, "sites.d", "*.yaml"))
	if err == nil {
		sort.Strings(siteDocs)
		paths = append(paths, siteDocs...)
	}

	config, err := LoadFromFiles(paths...)
	if err != nil {
		return nil, err
	}
	config.Environment = env

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFiles loads configuration from multiple YAML files in order; later
// files override earlier ones. Missing files are tolerated with a warning,
// unparsable files are a hard error. Environment overrides and validation
// are the caller's concern.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()
	logger := GetLogger()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				logger.Warn().Str("path", path).Msg("Config file not found, skipping")
				continue
			}
			return nil, NewConfigLoadError(fmt.Sprintf("failed to read config file %s", path), err)
		}

		// Unmarshal into the existing config: fields present in the file
		// override, everything else keeps its current value
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, NewConfigLoadError(fmt.Sprintf("failed to parse config file %s (file %d of %d)", path, i+1, len(paths)), err)
		}
	}

	return config, nil
}

// applyEnvOverrides overlays CRAWLER_<SECTION>__<FIELD> environment variables
// onto the configuration. Double underscore separates section from field.
func applyEnvOverrides(config *Config) {
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, "CRAWLER_") {
			continue
		}
		eq := strings.Index(entry, "=")
		if eq < 0 {
			continue
		}
		name := strings.TrimPrefix(entry[:eq], "CRAWLER_")
		value := entry[eq+1:]

		parts := strings.SplitN(name, "__", 2)
		if len(parts) != 2 {
			continue
		}
		applyOverride(config, strings.ToLower(parts[0]), strings.ToLower(parts[1]), value)
	}
}

func applyOverride(config *Config, section, field, value string) {
	switch section {
	case "database":
		switch field {
		case "url":
			config.Database.URL = value
		case "pool_size":
			setInt(&config.Database.PoolSize, value)
		case "max_overflow":
			setInt(&config.Database.MaxOverflow, value)
		case "pool_timeout":
			setInt(&config.Database.PoolTimeout, value)
		case "pool_recycle":
			setInt(&config.Database.PoolRecycle, value)
		case "echo":
			setBool(&config.Database.Echo, value)
		}
	case "security":
		switch field {
		case "secret_key":
			config.Security.SecretKey = value
		case "api_key":
			config.Security.APIKey = value
		case "token_expiry":
			setInt(&config.Security.TokenExpiry, value)
		case "rate_limit_per_minute":
			setInt(&config.Security.RateLimitPerMinute, value)
		}
	case "logging":
		switch field {
		case "level":
			config.Logging.Level = strings.ToUpper(value)
		case "format":
			config.Logging.Format = value
		case "file_path":
			config.Logging.FilePath = value
		case "max_bytes":
			setInt(&config.Logging.MaxBytes, value)
		case "backup_count":
			setInt(&config.Logging.BackupCount, value)
		case "structured":
			setBool(&config.Logging.Structured, value)
		}
	case "crawling":
		switch field {
		case "default_delay":
			setFloat(&config.Crawling.DefaultDelay, value)
		case "max_concurrent_requests":
			setInt(&config.Crawling.MaxConcurrentRequests, value)
		case "request_timeout":
			setInt(&config.Crawling.RequestTimeout, value)
		case "max_retries":
			setInt(&config.Crawling.MaxRetries, value)
		case "retry_delay":
			setFloat(&config.Crawling.RetryDelay, value)
		case "user_agent":
			config.Crawling.UserAgent = value
		case "respect_robots_txt":
			setBool(&config.Crawling.RespectRobotsTxt, value)
		case "min_delay":
			setFloat(&config.Crawling.MinDelay, value)
		case "burst_delay":
			setFloat(&config.Crawling.BurstDelay, value)
		case "max_pages_per_domain":
			setInt(&config.Crawling.MaxPagesPerDomain, value)
		case "max_concurrent_sessions":
			setInt(&config.Crawling.MaxConcurrentSessions, value)
		case "task_lease_timeout":
			if d, err := time.ParseDuration(value); err == nil {
				config.Crawling.TaskLeaseTimeout = d
			}
		}
	case "notifications":
		switch field {
		case "enabled":
			setBool(&config.Notifications.Enabled, value)
		case "error_threshold":
			setInt(&config.Notifications.ErrorThreshold, value)
		case "failure_rate_threshold":
			setFloat(&config.Notifications.FailureRateThreshold, value)
		case "queue_size_threshold":
			setInt(&config.Notifications.QueueSizeThreshold, value)
		case "max_alerts_per_hour":
			setInt(&config.Notifications.MaxAlertsPerHour, value)
		}
	case "storage":
		switch field {
		case "badger_path":
			config.Storage.Badger.Path = value
		case "reset_on_startup":
			setBool(&config.Storage.Badger.ResetOnStartup, value)
		}
	case "retention":
		switch field {
		case "dry_run":
			setBool(&config.Retention.DryRun, value)
		case "archive_backend":
			config.Retention.Archive.Backend = value
		case "archive_directory":
			config.Retention.Archive.Directory = value
		}
	}
}

func setInt(dst *int, value string) {
	if v, err := strconv.Atoi(value); err == nil {
		*dst = v
	}
}

func setFloat(dst *float64, value string) {
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		*dst = v
	}
}

func setBool(dst *bool, value string) {
	if v, err := strconv.ParseBool(value); err == nil {
		*dst = v
	}
}

// Validate checks every bound and cross-field rule and returns a
// ConfigurationError enumerating all field failures at once.
func (c *Config) Validate() error {
	var failures []string

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				failures = append(failures, fmt.Sprintf("%s failed rule %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			failures = append(failures, err.Error())
		}
	}

	if c.Crawling.DefaultDelay < 0.5 {
		failures = append(failures, fmt.Sprintf("crawling.default_delay must be at least 0.5s (got %v)", c.Crawling.DefaultDelay))
	}
	if c.Crawling.MinDelay > c.Crawling.DefaultDelay {
		failures = append(failures, fmt.Sprintf("crawling.min_delay (%v) must not exceed crawling.default_delay (%v)", c.Crawling.MinDelay, c.Crawling.DefaultDelay))
	}

	if c.IsProduction() {
		if c.Debug {
			failures = append(failures, "debug must be false in prod")
		}
		if c.HotReload {
			failures = append(failures, "hot_reload must be false in prod")
		}
		if strings.EqualFold(c.Logging.Level, "DEBUG") {
			GetLogger().Warn().Msg("DEBUG logging enabled in prod")
		}
	}

	if c.Notifications.Enabled && c.Notifications.Email == nil && c.Notifications.Slack == nil {
		failures = append(failures, "notifications.enabled requires at least one of notifications.email or notifications.slack")
	}

	for name, site := range c.Sites {
		failures = append(failures, validateSite(name, site)...)
	}

	for collection, policy := range c.Retention.Policies {
		if policy.TTLField == "" {
			failures = append(failures, fmt.Sprintf("retention.policies.%s.ttl_field is required", collection))
		}
		if policy.ArchiveEnabled && policy.ArchiveAfterDays >= policy.RetentionDays {
			failures = append(failures, fmt.Sprintf("retention.policies.%s: archive_after_days (%d) must be less than retention_days (%d)", collection, policy.ArchiveAfterDays, policy.RetentionDays))
		}
	}
	if c.Retention.Archive.Backend == "s3" && c.Retention.Archive.S3.Bucket == "" {
		failures = append(failures, "retention.archive.s3.bucket is required when backend is s3")
	}

	if len(failures) > 0 {
		return NewConfigValidationError(failures)
	}
	return nil
}

func validateSite(name string, site SiteConfig) []string {
	var failures []string
	prefix := "sites." + name

	if site.BaseURL != "" {
		if _, err := NormalizeBaseURL(site.BaseURL); err != nil {
			failures = append(failures, fmt.Sprintf("%s.base_url: %v", prefix, err))
		}
	}
	for _, domain := range site.Domains {
		if !IsValidDomain(domain) {
			failures = append(failures, fmt.Sprintf("%s.domains: %q is not a valid domain", prefix, domain))
		}
	}
	for _, pattern := range append(append([]string{}, site.AllowPatterns...), site.DenyPatterns...) {
		if _, err := regexp.Compile(pattern); err != nil {
			failures = append(failures, fmt.Sprintf("%s: url pattern %q does not compile: %v", prefix, pattern, err))
		}
	}

	seen := map[string]bool{}
	for selName := range site.ContentSelectors {
		if seen[strings.ToLower(selName)] {
			failures = append(failures, fmt.Sprintf("%s.content_selectors: duplicate selector name %q", prefix, selName))
		}
		seen[strings.ToLower(selName)] = true
	}

	return failures
}

// IsProduction returns true when running in the prod environment
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "prod")
}

// ApplyOverlay deep-merges a partial configuration tree onto a clone of c
// and returns the merged value. The caller revalidates before swapping it in.
func ApplyOverlay(c *Config, overlay map[string]interface{}) (*Config, error) {
	data, err := yaml.Marshal(overlay)
	if err != nil {
		return nil, NewConfigLoadError("failed to encode runtime overlay", err)
	}

	merged := DeepCloneConfig(c)
	if err := yaml.Unmarshal(data, merged); err != nil {
		return nil, NewConfigLoadError("failed to apply runtime overlay", err)
	}
	return merged, nil
}

// Masked returns a deep copy with every secret replaced by ***MASKED***.
func (c *Config) Masked() *Config {
	clone := DeepCloneConfig(c)
	if clone.Database.URL != "" {
		clone.Database.URL = MaskedValue
	}
	if clone.Security.SecretKey != "" {
		clone.Security.SecretKey = MaskedValue
	}
	if clone.Security.APIKey != "" {
		clone.Security.APIKey = MaskedValue
	}
	if clone.Notifications.Email != nil && clone.Notifications.Email.SMTPPassword != "" {
		clone.Notifications.Email.SMTPPassword = MaskedValue
	}
	if clone.Notifications.Slack != nil && clone.Notifications.Slack.WebhookURL != "" {
		clone.Notifications.Slack.WebhookURL = MaskedValue
	}
	if clone.Retention.Archive.S3.SecretAccessKey != "" {
		clone.Retention.Archive.S3.SecretAccessKey = MaskedValue
	}
	return clone
}

// DeepCloneConfig creates a deep copy of the Config struct so holders can
// hand out values without sharing mutable state.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	clone.Security.AllowedHosts = cloneStrings(c.Security.AllowedHosts)
	clone.Security.CORSOrigins = cloneStrings(c.Security.CORSOrigins)
	clone.Crawling.AllowedContentTypes = cloneStrings(c.Crawling.AllowedContentTypes)

	if c.Notifications.Email != nil {
		email := *c.Notifications.Email
		email.ToAddresses = cloneStrings(c.Notifications.Email.ToAddresses)
		clone.Notifications.Email = &email
	}
	if c.Notifications.Slack != nil {
		slack := *c.Notifications.Slack
		clone.Notifications.Slack = &slack
	}

	if c.Sites != nil {
		clone.Sites = make(map[string]SiteConfig, len(c.Sites))
		for name, site := range c.Sites {
			siteCopy := site
			siteCopy.Domains = cloneStrings(site.Domains)
			siteCopy.StartURLs = cloneStrings(site.StartURLs)
			siteCopy.AllowPatterns = cloneStrings(site.AllowPatterns)
			siteCopy.DenyPatterns = cloneStrings(site.DenyPatterns)
			siteCopy.Tags = cloneStrings(site.Tags)
			if site.ContentSelectors != nil {
				siteCopy.ContentSelectors = make(map[string]string, len(site.ContentSelectors))
				for k, v := range site.ContentSelectors {
					siteCopy.ContentSelectors[k] = v
				}
			}
			clone.Sites[name] = siteCopy
		}
	}

	if c.Retention.Policies != nil {
		clone.Retention.Policies = make(map[string]RetentionPolicyConfig, len(c.Retention.Policies))
		for k, v := range c.Retention.Policies {
			clone.Retention.Policies[k] = v
		}
	}

	return &clone
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
