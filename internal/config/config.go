// Package config loads the playtrader YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the playtrader platform.
type Config struct {
	Storage    Storage          `yaml:"storage"`
	Server     Server           `yaml:"server"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Logging    Logging          `yaml:"logging"`
	Risk       RiskConfig       `yaml:"risk"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	PaperMode  bool             `yaml:"paper_mode"`

	// ShortPuts is the legacy name for the risk section; when present its
	// values win over `risk`.
	ShortPuts *RiskConfig `yaml:"short_puts"`
}

// Storage holds paths for data persistence.
type Storage struct {
	// PlaysDir is the root of the per-status play directories.
	PlaysDir string `yaml:"plays_dir"`
	// HistoryPath is the SQLite status-history database file.
	HistoryPath string `yaml:"history_path"`
	// ArchiveDir is where terminal plays are archived as parquet.
	ArchiveDir string `yaml:"archive_dir"`
}

// Server holds network listener configuration for the query API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	QuoteRatePerMin int    `yaml:"quote_rate_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RiskConfig defines the portfolio limits enforced before short-play order
// submission. It is passed explicitly to the risk gate at construction.
type RiskConfig struct {
	// MaxCapitalAllocation is the fraction of equity short plays may commit.
	MaxCapitalAllocation float64 `yaml:"max_capital_allocation"`
	// MaxNotionalLeverage is the notional exposure multiple of equity.
	MaxNotionalLeverage float64 `yaml:"max_notional_leverage"`
}

// MonitoringConfig defines the polling caller's cadence and retry policy.
type MonitoringConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Defaults returns a Config populated with documented defaults. Load starts
// from these so an absent key keeps its default rather than zeroing it.
func Defaults() *Config {
	return &Config{
		Storage: Storage{
			PlaysDir:    "data/plays",
			HistoryPath: "data/history.db",
			ArchiveDir:  "data/archive",
		},
		Server:  Server{Host: "127.0.0.1", Port: 8090},
		Logging: Logging{Level: "info", Format: "json"},
		Risk: RiskConfig{
			MaxCapitalAllocation: 0.50,
			MaxNotionalLeverage:  3.0,
		},
		Monitoring: MonitoringConfig{
			PollInterval: 30 * time.Second,
			MaxRetries:   3,
			RetryDelay:   15 * time.Second,
		},
		Alpaca: Alpaca{QuoteRatePerMin: 120},
	}
}

// Load reads the YAML configuration file at the given path over the
// defaults and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.ShortPuts != nil {
		if cfg.ShortPuts.MaxCapitalAllocation > 0 {
			cfg.Risk.MaxCapitalAllocation = cfg.ShortPuts.MaxCapitalAllocation
		}
		if cfg.ShortPuts.MaxNotionalLeverage > 0 {
			cfg.Risk.MaxNotionalLeverage = cfg.ShortPuts.MaxNotionalLeverage
		}
		cfg.ShortPuts = nil
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLAYS_DIR"); v != "" {
		cfg.Storage.PlaysDir = v
	}
	if v := os.Getenv("HISTORY_PATH"); v != "" {
		cfg.Storage.HistoryPath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Canonical Alpaca env vars recognized by the SDK win over everything.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
