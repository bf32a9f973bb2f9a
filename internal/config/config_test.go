package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		OpenSky: OpenSkyConfig{
			URL:        "https://example.com/states/all",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Watchlist: WatchlistConfig{
			URL:              "https://example.com/db.csv",
			Categories:       []string{"Nuclear"},
			IdentifierColumn: "$ICAO",
			OperatorColumn:   "$Operator",
			CategoryHint:     "Category",
			Timeout:          time.Minute,
		},
		Scan: ScanConfig{
			CycleTimeout:   time.Minute,
			MaxTracePoints: 50,
		},
		Snapshot: SnapshotConfig{Path: "planes.json"},
		Alerts:   AlertsConfig{Policy: "every_cycle"},
		Storage:  StorageConfig{DBPath: "./data/test.db", MaxRuns: 10},
		Lock:     LockConfig{Backend: "file"},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoadAndValidate(t *testing.T) {
	// Create temp config file
	content := `
watchlist:
  categories:
    - Nuclear
    - Dictator Alert

scan:
  poll_interval: 5m
  max_trace_points: 20

snapshot:
  path: "./data/planes.json"
  preserve_on_empty_feed: true

alerts:
  policy: once_per_category
  cooldown: 6h

telegram:
  chat_id: "-100123"

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "json"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TELEGRAM_TOKEN", "legacy-token")
	t.Setenv("SKYWATCH_OPENSKY_USERNAME", "pilot")

	// Test Load
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify values
	if cfg.Scan.PollInterval != 5*time.Minute {
		t.Errorf("Unexpected poll interval: %v", cfg.Scan.PollInterval)
	}
	if cfg.Scan.MaxTracePoints != 20 {
		t.Errorf("Unexpected max trace points: %d", cfg.Scan.MaxTracePoints)
	}
	if len(cfg.Watchlist.Categories) != 2 {
		t.Errorf("Expected 2 categories, got %d", len(cfg.Watchlist.Categories))
	}
	if !cfg.Snapshot.PreserveOnEmptyFeed {
		t.Error("preserve_on_empty_feed not loaded")
	}
	if cfg.Alerts.Cooldown != 6*time.Hour {
		t.Errorf("Unexpected cooldown: %v", cfg.Alerts.Cooldown)
	}
	if cfg.Telegram.BotToken != "legacy-token" {
		t.Errorf("legacy TELEGRAM_TOKEN not applied: %q", cfg.Telegram.BotToken)
	}
	if cfg.OpenSky.Username != "pilot" {
		t.Errorf("prefixed env not applied: %q", cfg.OpenSky.Username)
	}
	if cfg.Lock.Path != "./data/planes.json.lock" {
		t.Errorf("lock path not derived from snapshot path: %q", cfg.Lock.Path)
	}
	if !cfg.TelegramReady() {
		t.Error("telegram should be ready with token and chat id")
	}

	// Test Validate
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Snapshot.Path != "planes.json" {
		t.Errorf("default snapshot path = %q", cfg.Snapshot.Path)
	}
	if len(cfg.Watchlist.Categories) != 7 {
		t.Errorf("default categories = %v", cfg.Watchlist.Categories)
	}
	if len(cfg.Alerts.HighPriority) != 3 {
		t.Errorf("default high priority = %v", cfg.Alerts.HighPriority)
	}
	if cfg.Scan.PollInterval != 0 {
		t.Errorf("default should run once, got interval %v", cfg.Scan.PollInterval)
	}
	if cfg.TelegramReady() {
		t.Error("telegram should not be ready without a token")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing opensky url", func(c *Config) { c.OpenSky.URL = "" }, true},
		{"password without username", func(c *Config) { c.OpenSky.Password = "pw" }, true},
		{"no categories", func(c *Config) { c.Watchlist.Categories = nil }, true},
		{"no category column", func(c *Config) { c.Watchlist.CategoryHint = "" }, true},
		{"poll interval too short", func(c *Config) { c.Scan.PollInterval = time.Second }, true},
		{"zero trace points", func(c *Config) { c.Scan.MaxTracePoints = 0 }, true},
		{"trace points above window", func(c *Config) { c.Scan.MaxTracePoints = 51 }, true},
		{"trace points at window", func(c *Config) { c.Scan.MaxTracePoints = 50 }, false},
		{"unknown policy", func(c *Config) { c.Alerts.Policy = "sometimes" }, true},
		{"negative cooldown", func(c *Config) { c.Alerts.Cooldown = -time.Second }, true},
		{"dedup without db", func(c *Config) {
			c.Alerts.Policy = "once_per_category"
			c.Storage.DBPath = ""
		}, true},
		{"redis without addr", func(c *Config) { c.Lock.Backend = "redis" }, true},
		{"redis ttl shorter than cycle", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.RedisAddr = "localhost:6379"
			c.Lock.TTL = time.Second
		}, true},
		{"redis ok", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.RedisAddr = "localhost:6379"
			c.Lock.TTL = 5 * time.Minute
		}, false},
		{"unknown lock backend", func(c *Config) { c.Lock.Backend = "etcd" }, true},
		{"nats without subject", func(c *Config) { c.NATS.URL = "nats://localhost:4222" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTelegramReady(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, BotToken: "t", ChatID: "1"}
	if !cfg.TelegramReady() {
		t.Error("expected ready")
	}
	cfg.Telegram.Enabled = false
	if cfg.TelegramReady() {
		t.Error("disabled telegram should not be ready")
	}
	cfg.Telegram = TelegramConfig{Enabled: true, ChatID: "1"}
	if cfg.TelegramReady() {
		t.Error("missing token should not be ready")
	}
}
