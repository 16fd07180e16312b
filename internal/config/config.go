// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Database drivers understood by the node store factory.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all run configuration. It is loaded once at process start
// and passed by value into each component.
type Config struct {
	Harvest   HarvestConfig  `mapstructure:"harvest"`
	GitHub    GitHubConfig   `mapstructure:"github"`
	Platforms PlatformConfig `mapstructure:"platforms"`
	Liveness  LivenessConfig `mapstructure:"liveness"`
	DB        DBConfig       `mapstructure:"db"`
	Export    ExportConfig   `mapstructure:"export"`
	PubSub    PubSubConfig   `mapstructure:"pubsub"`
	Metrics   MetricsConfig  `mapstructure:"metrics"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// HarvestConfig governs the worker pool and phase toggles.
type HarvestConfig struct {
	MaxWorkers   int    `mapstructure:"max_workers"`
	RunGitHub    bool   `mapstructure:"run_github"`
	RunPlatforms bool   `mapstructure:"run_platforms"`
	UserAgent    string `mapstructure:"user_agent"`
}

// GitHubConfig configures the code-host collector.
type GitHubConfig struct {
	Token                 string  `mapstructure:"token"`
	MaxKeywords           int     `mapstructure:"max_keywords"`
	PerPage               int     `mapstructure:"per_page"`
	SleepIntervalSeconds  float64 `mapstructure:"sleep_interval"`
	RequestTimeoutSeconds float64 `mapstructure:"request_timeout"`
	RawTimeoutSeconds     float64 `mapstructure:"raw_timeout"`
	MaxFiles              int     `mapstructure:"max_files"`
	APIBaseURL            string  `mapstructure:"api_base_url"`
	RawBaseURL            string  `mapstructure:"raw_base_url"`
}

// PlatformConfig configures the recon-platform and web search collectors.
type PlatformConfig struct {
	HunterAPIKey          string  `mapstructure:"hunter_api_key"`
	QuakeAPIKey           string  `mapstructure:"quake_api_key"`
	MaxKeywords           int     `mapstructure:"max_keywords"`
	PageSize              int     `mapstructure:"page_size"`
	DDGMaxResults         int     `mapstructure:"ddg_max_results"`
	SleepIntervalSeconds  float64 `mapstructure:"sleep_interval"`
	RequestTimeoutSeconds float64 `mapstructure:"request_timeout"`
	HunterBaseURL         string  `mapstructure:"hunter_base_url"`
	QuakeBaseURL          string  `mapstructure:"quake_base_url"`
	DDGBaseURL            string  `mapstructure:"ddg_base_url"`
}

// LivenessConfig configures the link validator.
type LivenessConfig struct {
	TimeoutSeconds float64 `mapstructure:"timeout"`
}

// DBConfig controls access to the node store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ExportConfig sets the subscription output paths.
type ExportConfig struct {
	Path       string `mapstructure:"path"`
	Base64Path string `mapstructure:"base64_path"`
	Limit      int    `mapstructure:"limit"`
	GCSBucket  string `mapstructure:"gcs_bucket"`
	GCSPrefix  string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds metadata for the export notification.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig configures the optional Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// envBindings maps config keys to the environment variables operators set.
var envBindings = map[string]string{
	"harvest.max_workers":       "MAX_WORKERS",
	"harvest.run_github":        "RUN_GITHUB",
	"harvest.run_platforms":     "RUN_PLATFORMS",
	"harvest.user_agent":        "USER_AGENT",
	"github.token":              "GH_TOKEN",
	"github.max_keywords":       "MAX_GITHUB_KW",
	"github.per_page":           "GITHUB_PER_PAGE",
	"github.sleep_interval":     "GITHUB_SLEEP_INTERVAL",
	"github.request_timeout":    "GITHUB_REQUEST_TIMEOUT",
	"github.raw_timeout":        "GITHUB_RAW_TIMEOUT",
	"github.max_files":          "GITHUB_MAX_FILES",
	"platforms.hunter_api_key":  "HUNTER_API_KEY",
	"platforms.quake_api_key":   "QUAKE_API_KEY",
	"platforms.max_keywords":    "MAX_PLATFORM_KW",
	"platforms.page_size":       "PLATFORM_PAGE_SIZE",
	"platforms.ddg_max_results": "PLATFORM_DDG_MAX_RESULTS",
	"platforms.sleep_interval":  "PLATFORM_SLEEP_INTERVAL",
	"platforms.request_timeout": "PLATFORM_REQUEST_TIMEOUT",
	"liveness.timeout":          "VALIDATE_TIMEOUT",
	"db.driver":                 "DB_DRIVER",
	"db.dsn":                    "DB_DSN",
	"db.max_conns":              "DB_MAX_CONNS",
	"export.path":               "EXPORT_PATH",
	"export.base64_path":        "EXPORT_BASE64_PATH",
	"export.limit":              "EXPORT_LIMIT",
	"export.gcs_bucket":         "EXPORT_GCS_BUCKET",
	"export.gcs_prefix":         "EXPORT_GCS_PREFIX",
	"pubsub.project_id":         "PUBSUB_PROJECT_ID",
	"pubsub.topic":              "PUBSUB_TOPIC",
	"metrics.pushgateway_url":   "PUSHGATEWAY_URL",
	"logging.development":       "LOG_DEVELOPMENT",
}

// Load builds a Config from an optional file plus environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("harvest.max_workers", 8)
	v.SetDefault("harvest.run_github", true)
	v.SetDefault("harvest.run_platforms", true)
	v.SetDefault("harvest.user_agent", "proxyharvest/1.0")
	v.SetDefault("github.token", "")
	v.SetDefault("github.max_keywords", 1)
	v.SetDefault("github.per_page", 30)
	v.SetDefault("github.sleep_interval", 2)
	v.SetDefault("github.request_timeout", 10)
	v.SetDefault("github.raw_timeout", 5)
	v.SetDefault("github.max_files", 30)
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.raw_base_url", "https://raw.githubusercontent.com")
	v.SetDefault("platforms.hunter_api_key", "")
	v.SetDefault("platforms.quake_api_key", "")
	v.SetDefault("platforms.max_keywords", 25)
	v.SetDefault("platforms.page_size", 100)
	v.SetDefault("platforms.ddg_max_results", 20)
	v.SetDefault("platforms.sleep_interval", 1)
	v.SetDefault("platforms.request_timeout", 10)
	v.SetDefault("platforms.hunter_base_url", "https://hunter.qianxin.com/openApi/search")
	v.SetDefault("platforms.quake_base_url", "https://quake.360.net/api/v3/search/quake_service")
	v.SetDefault("platforms.ddg_base_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("liveness.timeout", 5)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.dsn", "postgres://localhost:5432/proxyharvest?sslmode=disable")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("export.path", "data/sub.txt")
	v.SetDefault("export.base64_path", "data/sub_base64.txt")
	v.SetDefault("export.limit", 0)
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.gcs_prefix", "subscriptions")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.GitHub.PerPage <= 0 {
		return fmt.Errorf("github.per_page must be > 0")
	}
	if c.GitHub.SleepIntervalSeconds < 0 || c.Platforms.SleepIntervalSeconds < 0 {
		return fmt.Errorf("sleep_interval must be >= 0")
	}
	if c.GitHub.RequestTimeoutSeconds <= 0 || c.GitHub.RawTimeoutSeconds <= 0 {
		return fmt.Errorf("github.request_timeout must be > 0")
	}
	if c.Platforms.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("platforms.request_timeout must be > 0")
	}
	if c.Platforms.PageSize <= 0 {
		return fmt.Errorf("platforms.page_size must be > 0")
	}
	if c.Liveness.TimeoutSeconds <= 0 {
		return fmt.Errorf("liveness.timeout must be > 0")
	}
	if c.Export.Limit < 0 {
		return fmt.Errorf("export.limit must be >= 0")
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is configured")
	}
	return nil
}

// Workers returns the harvest pool size, never less than one.
func (c Config) Workers() int {
	if c.Harvest.MaxWorkers < 1 {
		return 1
	}
	return c.Harvest.MaxWorkers
}

// GitHubSleep returns the pause between GitHub search calls.
func (c Config) GitHubSleep() time.Duration {
	return seconds(c.GitHub.SleepIntervalSeconds)
}

// GitHubTimeout returns the per-request GitHub API timeout.
func (c Config) GitHubTimeout() time.Duration {
	return seconds(c.GitHub.RequestTimeoutSeconds)
}

// GitHubRawTimeout returns the per-file raw content timeout.
func (c Config) GitHubRawTimeout() time.Duration {
	return seconds(c.GitHub.RawTimeoutSeconds)
}

// PlatformSleep returns the pause between platform calls.
func (c Config) PlatformSleep() time.Duration {
	return seconds(c.Platforms.SleepIntervalSeconds)
}

// PlatformTimeout returns the per-request platform timeout.
func (c Config) PlatformTimeout() time.Duration {
	return seconds(c.Platforms.RequestTimeoutSeconds)
}

// LivenessTimeout returns the validator dial timeout.
func (c Config) LivenessTimeout() time.Duration {
	return seconds(c.Liveness.TimeoutSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
