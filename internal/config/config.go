package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/skywatch/internal/models"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	OpenSky   OpenSkyConfig   `mapstructure:"opensky"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Lock      LockConfig      `mapstructure:"lock"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// OpenSkyConfig holds live-state feed configuration
type OpenSkyConfig struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WatchlistConfig holds watchlist source configuration
type WatchlistConfig struct {
	URL              string        `mapstructure:"url"`
	Categories       []string      `mapstructure:"categories"`
	IdentifierColumn string        `mapstructure:"identifier_column"`
	OperatorColumn   string        `mapstructure:"operator_column"`
	CategoryHint     string        `mapstructure:"category_hint"`
	CategoryDefault  string        `mapstructure:"category_default"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ScanConfig holds cycle behavior configuration
type ScanConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"` // 0 = run one cycle and exit
	CycleTimeout   time.Duration `mapstructure:"cycle_timeout"`
	MaxTracePoints int           `mapstructure:"max_trace_points"`
}

// SnapshotConfig holds snapshot persistence configuration
type SnapshotConfig struct {
	Path                string `mapstructure:"path"`
	PreserveOnEmptyFeed bool   `mapstructure:"preserve_on_empty_feed"`
}

// AlertsConfig holds alert decision configuration
type AlertsConfig struct {
	HighPriority []string      `mapstructure:"high_priority"`
	Policy       string        `mapstructure:"policy"` // every_cycle or once_per_category
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds alert-state database configuration
type StorageConfig struct {
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// LockConfig holds cycle overlap protection configuration
type LockConfig struct {
	Backend       string        `mapstructure:"backend"` // file, redis, or none
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	RedisKey      string        `mapstructure:"redis_key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// NATSConfig holds snapshot broadcast configuration
type NATSConfig struct {
	URL     string        `mapstructure:"url"`
	Subject string        `mapstructure:"subject"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds viewer API configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig holds the Prometheus endpoint served in loop mode
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty = disabled
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// legacyEnv maps configuration keys to the bare environment names used by
// existing deployments.
var legacyEnv = map[string]string{
	"opensky.username":   "OPENSKY_USERNAME",
	"opensky.password":   "OPENSKY_PASSWORD",
	"telegram.bot_token": "TELEGRAM_TOKEN",
	"telegram.chat_id":   "TELEGRAM_CHAT_ID",
}

// Load reads configuration from an optional file, a .env file, and
// environment variables. An empty path, or a path that does not exist,
// yields defaults plus environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("SKYWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "SKYWATCH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// Read config file
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Lock.Path == "" {
		cfg.Lock.Path = cfg.Snapshot.Path + ".lock"
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// OpenSky defaults
	v.SetDefault("opensky.url", "https://opensky-network.org/api/states/all")
	v.SetDefault("opensky.username", "")
	v.SetDefault("opensky.password", "")
	v.SetDefault("opensky.timeout", "30s")
	v.SetDefault("opensky.max_retries", 3)
	v.SetDefault("opensky.retry_delay_base", "2s")
	v.SetDefault("opensky.user_agent", "")

	// Watchlist defaults
	v.SetDefault("watchlist.url", "https://raw.githubusercontent.com/sdr-enthusiasts/plane-alert-db/main/plane-alert-db.csv")
	v.SetDefault("watchlist.categories", []string{
		"Dictator Alert", "Oligarchs", "Putin's War", "Hired Gun", "Nuclear", "Government", "Military",
	})
	v.SetDefault("watchlist.identifier_column", "$ICAO")
	v.SetDefault("watchlist.operator_column", "$Operator")
	v.SetDefault("watchlist.category_hint", "Category")
	v.SetDefault("watchlist.category_default", "#Category")
	v.SetDefault("watchlist.timeout", "60s")

	// Scan defaults
	v.SetDefault("scan.poll_interval", "0s")
	v.SetDefault("scan.cycle_timeout", "3m")
	v.SetDefault("scan.max_trace_points", 50)

	// Snapshot defaults
	v.SetDefault("snapshot.path", "planes.json")
	v.SetDefault("snapshot.preserve_on_empty_feed", false)

	// Alerts defaults
	v.SetDefault("alerts.high_priority", []string{"Dictator Alert", "Nuclear", "Putin's War"})
	v.SetDefault("alerts.policy", "every_cycle")
	v.SetDefault("alerts.cooldown", "0s")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.timeout", "15s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/skywatch.db")
	v.SetDefault("storage.max_runs", 1000)

	// Lock defaults
	v.SetDefault("lock.backend", "file")
	v.SetDefault("lock.path", "")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.redis_key", "skywatch:cycle")
	v.SetDefault("lock.ttl", "5m")

	// NATS defaults
	v.SetDefault("nats.url", "") // empty = broadcast disabled
	v.SetDefault("nats.subject", "skywatch.snapshot")
	v.SetDefault("nats.timeout", "5s")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// Metrics defaults
	v.SetDefault("metrics.addr", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate OpenSky config
	if c.OpenSky.URL == "" {
		return fmt.Errorf("opensky.url is required")
	}
	if c.OpenSky.Timeout <= 0 {
		return fmt.Errorf("opensky.timeout must be positive")
	}
	if c.OpenSky.MaxRetries < 1 {
		return fmt.Errorf("opensky.max_retries must be at least 1")
	}
	if c.OpenSky.Password != "" && c.OpenSky.Username == "" {
		return fmt.Errorf("opensky.username is required when a password is set")
	}

	// Validate Watchlist config
	if c.Watchlist.URL == "" {
		return fmt.Errorf("watchlist.url is required")
	}
	if len(c.Watchlist.Categories) == 0 {
		return fmt.Errorf("watchlist.categories must contain at least one category")
	}
	if c.Watchlist.IdentifierColumn == "" || c.Watchlist.OperatorColumn == "" {
		return fmt.Errorf("watchlist.identifier_column and watchlist.operator_column are required")
	}
	if c.Watchlist.CategoryHint == "" && c.Watchlist.CategoryDefault == "" {
		return fmt.Errorf("watchlist.category_hint or watchlist.category_default is required")
	}
	if c.Watchlist.Timeout <= 0 {
		return fmt.Errorf("watchlist.timeout must be positive")
	}

	// Validate Scan config
	if c.Scan.PollInterval != 0 && c.Scan.PollInterval < 10*time.Second {
		return fmt.Errorf("scan.poll_interval must be 0 or at least 10 seconds")
	}
	if c.Scan.CycleTimeout < 10*time.Second {
		return fmt.Errorf("scan.cycle_timeout must be at least 10 seconds")
	}
	if c.Scan.MaxTracePoints < 1 || c.Scan.MaxTracePoints > models.MaxTracePoints {
		return fmt.Errorf("scan.max_trace_points must be between 1 and %d", models.MaxTracePoints)
	}

	// Validate Snapshot config
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path is required")
	}

	// Validate Alerts config
	validPolicies := map[string]bool{"every_cycle": true, "once_per_category": true}
	if !validPolicies[c.Alerts.Policy] {
		return fmt.Errorf("alerts.policy must be one of: every_cycle, once_per_category")
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}

	// Storage backs the alert state table
	if c.Alerts.Policy == "once_per_category" && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required for the once_per_category policy")
	}
	if c.Storage.MaxRuns < 1 {
		return fmt.Errorf("storage.max_runs must be at least 1")
	}

	// Validate Lock config
	switch c.Lock.Backend {
	case "file", "none":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis backend")
		}
		if c.Lock.TTL < c.Scan.CycleTimeout {
			return fmt.Errorf("lock.ttl must be at least scan.cycle_timeout")
		}
	default:
		return fmt.Errorf("lock.backend must be one of: file, redis, none")
	}

	// Validate NATS config
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required when nats.url is set")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// TelegramReady reports whether alerts can be delivered: enabled and both
// credentials present. A missing token means alerts are skipped.
func (c *Config) TelegramReady() bool {
	return c.Telegram.Enabled && c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
