package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/papertrader/market"
	"gopkg.in/yaml.v3"
)

// Config represents the complete papertrader configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Feed    FeedConfig    `json:"feed" yaml:"feed"`
	Alerts  []AlertConfig `json:"alerts,omitempty" yaml:"alerts,omitempty"`
	Log     LogConfig     `json:"log" yaml:"log"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	StartingBalance float64 `json:"starting_balance" yaml:"starting_balance"`
	Currency        string  `json:"currency" yaml:"currency"`
	DefaultUser     string  `json:"default_user,omitempty" yaml:"default_user,omitempty"`
}

// JournalConfig selects the ledger store backend
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "memory", "sqlite", "pebble" or "postgres"
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	PebblePath string `json:"pebble_path,omitempty" yaml:"pebble_path,omitempty"`
	DSN        string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// FeedConfig describes the price source and how often it is polled
type FeedConfig struct {
	Source        string             `json:"source" yaml:"source"` // "static", "random" or "replay"
	ReplayFile    string             `json:"replay_file,omitempty" yaml:"replay_file,omitempty"`
	Interval      string             `json:"interval" yaml:"interval"`
	Symbols       []string           `json:"symbols" yaml:"symbols"`
	InitialPrices map[string]float64 `json:"initial_prices,omitempty" yaml:"initial_prices,omitempty"`
	Seed          int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// PollInterval converts the interval string to time.Duration
func (f FeedConfig) PollInterval() (time.Duration, error) {
	if f.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(f.Interval)
}

// Prices returns the starting price for every configured symbol. Symbols
// without an explicit initial price fall back to the catalog base price.
func (f FeedConfig) Prices() map[string]float64 {
	base := market.BasePrices()
	out := make(map[string]float64, len(f.Symbols))
	for _, s := range f.Symbols {
		if p, ok := f.InitialPrices[s]; ok {
			out[s] = p
			continue
		}
		out[s] = base[s]
	}
	return out
}

// AlertConfig is a price alert installed at startup.
type AlertConfig struct {
	UserID string  `json:"user_id" yaml:"user_id"`
	Symbol string  `json:"symbol" yaml:"symbol"`
	Target float64 `json:"target" yaml:"target"`
	Above  bool    `json:"above" yaml:"above"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

type HTTPConfig struct {
	Addr        string   `json:"addr" yaml:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			StartingBalance: 10000,
			Currency:        "USD",
			DefaultUser:     "demo",
		},
		Journal: JournalConfig{
			Type:       "memory",
			DBPath:     "papertrader.db",
			PebblePath: "papertrader.pebble",
		},
		Feed: FeedConfig{
			Source:   "random",
			Interval: "5s",
			Symbols:  market.SymbolNames(),
			Seed:     1,
		},
		Log: LogConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
	}
}

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Marshal encodes the configuration as "yaml" or "json".
func (c *Config) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(c)
	case "json":
		return json.MarshalIndent(c, "", "  ")
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	data, err := c.Marshal(format)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv loads a .env file (if it exists) and overrides fields from
// TRADER_* environment variables. Priority: ENV > .env file > config file.
func (c *Config) ApplyEnv(envPath string) error {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("TRADER_JOURNAL_TYPE"); v != "" {
		c.Journal.Type = v
	}
	if v := os.Getenv("TRADER_DB_PATH"); v != "" {
		c.Journal.DBPath = v
		c.Journal.PebblePath = v
	}
	if v := os.Getenv("TRADER_DB_DSN"); v != "" {
		c.Journal.DSN = v
	}
	if v := os.Getenv("TRADER_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TRADER_POLL_INTERVAL"); v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("TRADER_POLL_INTERVAL: %w", err)
		}
		c.Feed.Interval = v
	}
	if v := os.Getenv("TRADER_STARTING_BALANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADER_STARTING_BALANCE: %w", err)
		}
		c.Account.StartingBalance = f
	}
	return c.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.StartingBalance < 0 {
		return fmt.Errorf("account.starting_balance must not be negative")
	}

	switch c.Journal.Type {
	case "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "pebble":
		if c.Journal.PebblePath == "" {
			return fmt.Errorf("journal.pebble_path required for pebble type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn required for postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be one of memory, sqlite, pebble, postgres")
	}

	switch c.Feed.Source {
	case "static", "random":
	case "replay":
		if c.Feed.ReplayFile == "" {
			return fmt.Errorf("feed.replay_file required for replay source")
		}
	default:
		return fmt.Errorf("feed.source must be one of static, random, replay")
	}
	d, err := c.Feed.PollInterval()
	if err != nil {
		return fmt.Errorf("feed.interval: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("feed.interval must not be negative")
	}
	for sym, p := range c.Feed.InitialPrices {
		if p <= 0 {
			return fmt.Errorf("feed.initial_prices[%s] must be positive", sym)
		}
	}
	for _, s := range c.Feed.Symbols {
		if _, ok := c.Feed.InitialPrices[s]; ok {
			continue
		}
		if _, ok := market.Symbols[s]; !ok {
			return fmt.Errorf("unknown symbol %s needs an initial price", s)
		}
	}

	for i, a := range c.Alerts {
		if a.UserID == "" || a.Symbol == "" {
			return fmt.Errorf("alerts[%d]: user_id and symbol are required", i)
		}
		if a.Target <= 0 {
			return fmt.Errorf("alerts[%d]: target must be positive", i)
		}
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
