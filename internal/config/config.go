package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // Timezone names resolve on hosts without zoneinfo.

	"gopkg.in/yaml.v3"

	"github.com/stockup888888/stock/internal/domain"
)

// DefaultPath is used when STOCK_CONFIG is unset.
const DefaultPath = "config/stock.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the archive synchronizer.
type Config struct {
	Storage Storage `yaml:"storage"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Sync    Sync    `yaml:"sync"`
	RunLog  RunLog  `yaml:"runlog"`
	Metrics Metrics `yaml:"metrics"`
	Logging Logging `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	ArchiveDir  string `yaml:"archive_dir"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Sync controls which symbols are synchronized and how.
type Sync struct {
	Symbols         []string      `yaml:"symbols"`
	SymbolsFile     string        `yaml:"symbols_file"`
	StartDate       string        `yaml:"start_date"`
	Adjusted        bool          `yaml:"adjusted"`
	Delay           time.Duration `yaml:"delay"`
	Timezone        string        `yaml:"timezone"`
	MaxRetries      int           `yaml:"max_retries"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

// RunLog selects where per-run outcomes are recorded. An empty driver
// disables the run log.
type RunLog struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path from STOCK_CONFIG or DefaultPath.
func Path() string {
	if v := os.Getenv("STOCK_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}
	if v := os.Getenv("SNAPSHOT_DIR"); v != "" {
		cfg.Storage.SnapshotDir = v
	}

	if v := os.Getenv("SYNC_SYMBOLS"); v != "" {
		cfg.Sync.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("SYNC_START_DATE"); v != "" {
		cfg.Sync.StartDate = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("RUNLOG_DSN"); v != "" {
		switch cfg.RunLog.Driver {
		case "postgres":
			cfg.RunLog.PostgresDSN = v
		default:
			cfg.RunLog.SQLitePath = v
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// newConfig returns the Config that YAML is decoded onto. Fields where zero
// is a meaningful setting get their defaults here, so only an absent key
// yields the default.
func newConfig() *Config {
	return &Config{
		Sync: Sync{
			Delay:           time.Second,
			BreakerFailures: 5,
		},
	}
}

// applyDefaults fills unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = "data/archive"
	}
	if cfg.Storage.SnapshotDir == "" {
		cfg.Storage.SnapshotDir = "data/snapshots"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "sip"
	}
	if cfg.Sync.StartDate == "" {
		cfg.Sync.StartDate = "2020-01-01"
	}
	if cfg.Sync.Timezone == "" {
		cfg.Sync.Timezone = "America/New_York"
	}
	if cfg.Sync.BreakerTimeout == 0 {
		cfg.Sync.BreakerTimeout = time.Minute
	}
	if cfg.RunLog.Driver == "sqlite" && cfg.RunLog.SQLitePath == "" {
		cfg.RunLog.SQLitePath = "data/stock-sync.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.StartDate(); err != nil {
		errs = append(errs, fmt.Errorf("sync.start_date: %w", err))
	}
	if _, err := time.LoadLocation(c.Sync.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("sync.timezone: %w", err))
	}
	if c.Sync.Delay < 0 {
		errs = append(errs, errors.New("sync.delay must not be negative"))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, errors.New("sync.max_retries must not be negative"))
	}

	switch c.RunLog.Driver {
	case "":
	case "sqlite":
		if c.RunLog.SQLitePath == "" {
			errs = append(errs, errors.New("runlog.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if c.RunLog.PostgresDSN == "" {
			errs = append(errs, errors.New("runlog.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("runlog.driver %q: want sqlite, postgres or empty", c.RunLog.Driver))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want json or text", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// StartDate parses Sync.StartDate.
func (c *Config) StartDate() (time.Time, error) {
	return domain.ParseDate(c.Sync.StartDate)
}

// Location loads Sync.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Sync.Timezone)
}
