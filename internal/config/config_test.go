package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers() != 8 {
		t.Fatalf("expected 8 workers, got %d", cfg.Workers())
	}
	if !cfg.Harvest.RunGitHub || !cfg.Harvest.RunPlatforms {
		t.Fatalf("expected both phases enabled by default")
	}
	if cfg.Export.Path != "data/sub.txt" || cfg.Export.Base64Path != "data/sub_base64.txt" {
		t.Fatalf("unexpected export defaults: %+v", cfg.Export)
	}
	if cfg.GitHub.MaxKeywords != 1 || cfg.Platforms.MaxKeywords != 25 {
		t.Fatalf("unexpected keyword caps: github=%d platforms=%d", cfg.GitHub.MaxKeywords, cfg.Platforms.MaxKeywords)
	}
	if got := cfg.GitHubSleep(); got != 2*time.Second {
		t.Fatalf("expected 2s github sleep, got %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_WORKERS", "0")
	t.Setenv("RUN_GITHUB", "0")
	t.Setenv("RUN_PLATFORMS", "1")
	t.Setenv("GITHUB_SLEEP_INTERVAL", "0.5")
	t.Setenv("EXPORT_PATH", "out/all.txt")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("MAX_PLATFORM_KW", "3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers() != 1 {
		t.Fatalf("expected zero workers coerced to 1, got %d", cfg.Workers())
	}
	if cfg.Harvest.RunGitHub {
		t.Fatal("expected RUN_GITHUB=0 to disable the github phase")
	}
	if !cfg.Harvest.RunPlatforms {
		t.Fatal("expected RUN_PLATFORMS=1 to keep the platform phase")
	}
	if got := cfg.GitHubSleep(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", got)
	}
	if cfg.Export.Path != "out/all.txt" {
		t.Fatalf("expected export path override, got %q", cfg.Export.Path)
	}
	if cfg.DB.Driver != DriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.DB.Driver)
	}
	if cfg.Platforms.MaxKeywords != 3 {
		t.Fatalf("expected platform cap 3, got %d", cfg.Platforms.MaxKeywords)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
harvest:
  max_workers: 6
github:
  token: secret
  per_page: 50
export:
  path: /tmp/subs/sub.txt
  limit: 100
db:
  driver: memory
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers() != 6 {
		t.Fatalf("expected 6 workers, got %d", cfg.Workers())
	}
	if cfg.GitHub.Token != "secret" || cfg.GitHub.PerPage != 50 {
		t.Fatalf("expected github overrides, got %+v", cfg.GitHub)
	}
	if cfg.Export.Limit != 100 || cfg.Export.Path != "/tmp/subs/sub.txt" {
		t.Fatalf("expected export overrides, got %+v", cfg.Export)
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		GitHub:    GitHubConfig{PerPage: 30, RequestTimeoutSeconds: 10, RawTimeoutSeconds: 5},
		Platforms: PlatformConfig{PageSize: 100, RequestTimeoutSeconds: 10},
		Liveness:  LivenessConfig{TimeoutSeconds: 5},
		DB:        DBConfig{Driver: DriverPostgres, DSN: "postgres://localhost/db"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name string
		cfg  func(c Config) Config
		want string
	}{
		{
			name: "invalid per page",
			cfg:  func(c Config) Config { c.GitHub.PerPage = 0; return c },
			want: "github.per_page",
		},
		{
			name: "negative sleep",
			cfg:  func(c Config) Config { c.Platforms.SleepIntervalSeconds = -1; return c },
			want: "sleep_interval",
		},
		{
			name: "invalid liveness timeout",
			cfg:  func(c Config) Config { c.Liveness.TimeoutSeconds = 0; return c },
			want: "liveness.timeout",
		},
		{
			name: "negative export limit",
			cfg:  func(c Config) Config { c.Export.Limit = -1; return c },
			want: "export.limit",
		},
		{
			name: "missing dsn",
			cfg:  func(c Config) Config { c.DB.DSN = ""; return c },
			want: "db.dsn",
		},
		{
			name: "unknown driver",
			cfg:  func(c Config) Config { c.DB.Driver = "sqlite"; return c },
			want: "db.driver",
		},
		{
			name: "topic without project",
			cfg:  func(c Config) Config { c.PubSub.Topic = "exports"; return c },
			want: "pubsub.project_id",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg(base).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
