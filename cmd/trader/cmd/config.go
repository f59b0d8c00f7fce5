package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/market"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check or print configuration",
	Long: `Work with trader configuration files.

A configuration is resolved in layers: built-in defaults, then the file
given with --config, then a .env file, then TRADER_* environment
variables, then command line flags.

Subcommands:
  init     - Write the default configuration to a new file
  validate - Load a file and report what it configures
  show     - Print the configuration after every layer is applied`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to a new file",
	Long: `Write the built-in defaults to a file. The format follows the file
extension: .yaml or .yml for YAML, anything else for JSON. An existing
file is left alone unless --force is given.

Example:
  trader config init -o paper.yaml
  trader config init -o paper.json --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load a configuration file and summarize it",
	Long: `Load a configuration file over the defaults and run every check on
it. Environment overrides are not applied, so this tells you whether
the file itself is usable.

Example:
  trader config validate -f paper.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the other commands would run with, after the
config file, .env, TRADER_* variables and flags have been applied.

Example:
  TRADER_JOURNAL_TYPE=sqlite trader config show -c paper.yaml --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var (
	configInitOutput   string
	configInitForce    bool
	configValidatePath string
	configShowFormat   string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "trader.yaml", "file to write")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "config file to check (required)")
	configValidateCmd.MarkFlagRequired("file")
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "yaml", "output format: yaml or json")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	defer func() { configInitForce = false }()

	if !configInitForce {
		if _, err := os.Stat(configInitOutput); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configInitOutput)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check %s: %w", configInitOutput, err)
		}
	}

	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and start the server with:")
	fmt.Fprintf(out, "  trader serve -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Account: %s %s for new users", market.FormatMoney(cfg.Account.StartingBalance), cfg.Account.Currency)
	if cfg.Account.DefaultUser != "" {
		fmt.Fprintf(out, " (default user %s)", cfg.Account.DefaultUser)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Journal: %s\n", describeJournal(cfg.Journal))
	fmt.Fprintf(out, "  Feed: %s every %s over %s\n", cfg.Feed.Source, cfg.Feed.Interval, strings.Join(cfg.Feed.Symbols, ","))
	if len(cfg.Alerts) > 0 {
		fmt.Fprintf(out, "  Alerts: %d installed at startup\n", len(cfg.Alerts))
	}
	fmt.Fprintf(out, "  HTTP: %s\n", cfg.HTTP.Addr)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal(configShowFormat)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

func describeJournal(j config.JournalConfig) string {
	switch j.Type {
	case "sqlite":
		return "sqlite at " + j.DBPath
	case "pebble":
		return "pebble at " + j.PebblePath
	case "postgres":
		return "postgres"
	default:
		return j.Type + " (orders are lost on exit)"
	}
}
