package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/internal/app"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A paper trading engine for simulated margin accounts",
	Long: `Trader runs simulated margin accounts against live or generated prices.

It provides tools for:
  - Placing market and limit orders with stop loss and take profit
  - Closing positions manually or automatically when triggers fire
  - Tracking balances, open positions and portfolio value
  - Exporting the trade journal as CSV or Org
  - FIFO performance statistics per user
  - Serving everything over a JSON REST API

Orders only survive between invocations with a persistent journal
(sqlite, pebble or postgres). Select one in the config file or with
TRADER_JOURNAL_TYPE.`,
	SilenceUsage: true,
}

var (
	cfgPath  string
	envPath  string
	logLevel string
	userID   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
// The context is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", ".env file with TRADER_* overrides (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (default account.default_user)")
}

// loadConfig resolves the configuration: defaults, then the config file,
// then .env and the environment, then command line flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(envPath); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, nil)
}

func currentUser(a *app.App) (string, error) {
	if userID != "" {
		return userID, nil
	}
	if a.Config.Account.DefaultUser != "" {
		return a.Config.Account.DefaultUser, nil
	}
	return "", fmt.Errorf("no user: pass --user or set account.default_user")
}
