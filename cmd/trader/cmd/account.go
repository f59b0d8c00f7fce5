package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/market"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show or fund a user's cash balance",
}

var accountBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the free cash balance",
	Args:  cobra.NoArgs,
	RunE:  runAccountBalance,
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Add funds to the balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountDeposit,
}

var accountValueCmd = &cobra.Command{
	Use:   "value",
	Short: "Mark open positions to the latest prices",
	Args:  cobra.NoArgs,
	RunE:  runAccountValue,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountBalanceCmd)
	accountCmd.AddCommand(accountDepositCmd)
	accountCmd.AddCommand(accountValueCmd)
}

func runAccountBalance(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := currentUser(a)
	if err != nil {
		return err
	}
	bal, err := a.Engine.Balance(cmd.Context(), user)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", user, market.FormatMoney(bal), a.Config.Account.Currency)
	return nil
}

func runAccountDeposit(cmd *cobra.Command, args []string) error {
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := currentUser(a)
	if err != nil {
		return err
	}
	bal, err := a.Engine.Deposit(cmd.Context(), user, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", user, market.FormatMoney(bal), a.Config.Account.Currency)
	return nil
}

// runAccountValue values positions against the configured feed's starting
// prices; a running server marks them to live quotes instead.
func runAccountValue(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := currentUser(a)
	if err != nil {
		return err
	}
	v, err := a.Engine.Valuation(cmd.Context(), user, a.Latest)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cash:       %s\n", market.FormatMoney(v.Cash))
	fmt.Fprintf(out, "Margin:     %s\n", market.FormatMoney(v.Margin))
	fmt.Fprintf(out, "Unrealized: %s\n", market.FormatMoney(v.Unrealized))
	fmt.Fprintf(out, "Total:      %s\n", market.FormatMoney(v.Total))
	return nil
}
