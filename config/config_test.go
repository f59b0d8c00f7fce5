package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10000.0, cfg.Account.StartingBalance)
	assert.Equal(t, "memory", cfg.Journal.Type)
	assert.Contains(t, cfg.Feed.Symbols, "BTC")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	mutate := func(fn func(c *Config)) *Config {
		c := Default()
		fn(c)
		return c
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: Default(),
		},
		{
			name:    "missing currency",
			config:  mutate(func(c *Config) { c.Account.Currency = "" }),
			wantErr: true,
			errMsg:  "account.currency is required",
		},
		{
			name:    "negative balance",
			config:  mutate(func(c *Config) { c.Account.StartingBalance = -1 }),
			wantErr: true,
			errMsg:  "account.starting_balance must not be negative",
		},
		{
			name:    "unknown journal",
			config:  mutate(func(c *Config) { c.Journal.Type = "csv" }),
			wantErr: true,
			errMsg:  "journal.type must be one of",
		},
		{
			name:    "sqlite without path",
			config:  mutate(func(c *Config) { c.Journal.Type = "sqlite"; c.Journal.DBPath = "" }),
			wantErr: true,
			errMsg:  "journal.db_path required",
		},
		{
			name:    "postgres without dsn",
			config:  mutate(func(c *Config) { c.Journal.Type = "postgres" }),
			wantErr: true,
			errMsg:  "journal.dsn required",
		},
		{
			name:    "bad interval",
			config:  mutate(func(c *Config) { c.Feed.Interval = "soon" }),
			wantErr: true,
			errMsg:  "feed.interval",
		},
		{
			name:    "bad source",
			config:  mutate(func(c *Config) { c.Feed.Source = "oanda" }),
			wantErr: true,
			errMsg:  "feed.source",
		},
		{
			name:    "replay without file",
			config:  mutate(func(c *Config) { c.Feed.Source = "replay" }),
			wantErr: true,
			errMsg:  "feed.replay_file required",
		},
		{
			name:    "unknown symbol without price",
			config:  mutate(func(c *Config) { c.Feed.Symbols = []string{"PEPE"} }),
			wantErr: true,
			errMsg:  "unknown symbol PEPE",
		},
		{
			name: "unknown symbol with price",
			config: mutate(func(c *Config) {
				c.Feed.Symbols = []string{"PEPE"}
				c.Feed.InitialPrices = map[string]float64{"PEPE": 0.01}
			}),
		},
		{
			name: "alert without target",
			config: mutate(func(c *Config) {
				c.Alerts = []AlertConfig{{UserID: "u1", Symbol: "BTC"}}
			}),
			wantErr: true,
			errMsg:  "alerts[0]: target must be positive",
		},
		{
			name:    "missing http addr",
			config:  mutate(func(c *Config) { c.HTTP.Addr = "" }),
			wantErr: true,
			errMsg:  "http.addr is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Journal.Type = "sqlite"
			cfg.Alerts = []AlertConfig{{UserID: "u1", Symbol: "BTC", Target: 50000, Above: true}}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Account, loaded.Account)
			assert.Equal(t, "sqlite", loaded.Journal.Type)
			assert.Equal(t, cfg.Feed.Symbols, loaded.Feed.Symbols)
			assert.Equal(t, cfg.Alerts, loaded.Alerts)
		})
	}
}

func TestMarshal(t *testing.T) {
	cfg := Default()

	y, err := cfg.Marshal("YAML")
	require.NoError(t, err)
	assert.Contains(t, string(y), "starting_balance: 10000")

	j, err := cfg.Marshal("json")
	require.NoError(t, err)
	assert.Contains(t, string(j), `"starting_balance": 10000`)

	_, err = cfg.Marshal("toml")
	assert.Error(t, err)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  starting_balance: 500\n  currency: EUR\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500.0, cfg.Account.StartingBalance)
	assert.Equal(t, "EUR", cfg.Account.Currency)
	assert.Equal(t, "memory", cfg.Journal.Type)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		interval string
		expected string
		wantErr  bool
	}{
		{"1h", "1h0m0s", false},
		{"30m", "30m0s", false},
		{"5s", "5s", false},
		{"", "0s", false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			d, err := FeedConfig{Interval: tt.interval}.PollInterval()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, d.String())
			}
		})
	}
}

func TestFeedPrices(t *testing.T) {
	f := FeedConfig{
		Symbols:       []string{"BTC", "PEPE"},
		InitialPrices: map[string]float64{"PEPE": 0.01},
	}
	prices := f.Prices()
	assert.Equal(t, 45000.0, prices["BTC"])
	assert.Equal(t, 0.01, prices["PEPE"])
	assert.Len(t, prices, 2)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TRADER_JOURNAL_TYPE", "sqlite")
	t.Setenv("TRADER_DB_PATH", "/tmp/x.db")
	t.Setenv("TRADER_HTTP_ADDR", ":9999")
	t.Setenv("TRADER_LOG_LEVEL", "debug")
	t.Setenv("TRADER_POLL_INTERVAL", "250ms")
	t.Setenv("TRADER_STARTING_BALANCE", "2500")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "/tmp/x.db", cfg.Journal.DBPath)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "250ms", cfg.Feed.Interval)
	assert.Equal(t, 2500.0, cfg.Account.StartingBalance)
}

func TestApplyEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TRADER_STARTING_BALANCE=777\n"), 0644))
	// godotenv never overrides variables that are already set
	t.Setenv("TRADER_STARTING_BALANCE", "")
	os.Unsetenv("TRADER_STARTING_BALANCE")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(path))
	assert.Equal(t, 777.0, cfg.Account.StartingBalance)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	t.Setenv("TRADER_STARTING_BALANCE", "lots")
	cfg := Default()
	err := cfg.ApplyEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADER_STARTING_BALANCE")
}
