package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query and export trade journal data",
	Long: `Query and export the trade journal of the current user.

Subcommands:
  trades - Export every trade as Org or CSV
  orders - Export every order as Org or CSV
  today  - List trades executed today
  day    - List trades executed on a specific day

Examples:
  trader journal trades --format csv > trades.csv
  trader journal today
  trader journal day 2026-01-15`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Export every trade",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Export every order",
	Args:  cobra.NoArgs,
	RunE:  runJournalOrders,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades executed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJournalDay(cmd, []string{time.Now().In(time.Local).Format("2006-01-02")})
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalFormat string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd, journalOrdersCmd, journalTodayCmd, journalDayCmd)

	journalCmd.PersistentFlags().StringVar(&journalFormat, "format", "org", "output format: org or csv")
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := currentUser(a)
	if err != nil {
		return err
	}

	trades, err := a.Engine.Trades(cmd.Context(), user)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return writeTrades(cmd, trades)
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := currentUser(a)
	if err != nil {
		return err
	}

	orders, err := a.Engine.Orders(cmd.Context(), user)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}
	out := cmd.OutOrStdout()
	switch journalFormat {
	case "csv":
		return journal.WriteOrdersCSV(out, orders)
	case "org":
		for _, o := range orders {
			fmt.Fprintln(out, journal.FormatOrderOrg(o))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", journalFormat)
	}
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := currentUser(a)
	if err != nil {
		return err
	}

	trades, err := journal.TradesOnDay(cmd.Context(), a.Journal, user, time.Local, args[0])
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	return writeTrades(cmd, trades)
}

func writeTrades(cmd *cobra.Command, trades []broker.Trade) error {
	out := cmd.OutOrStdout()
	switch journalFormat {
	case "csv":
		return journal.WriteTradesCSV(out, trades)
	case "org":
		fmt.Fprintln(out, journal.FormatTradesOrg(trades))
		return nil
	default:
		return fmt.Errorf("unknown format %q", journalFormat)
	}
}
