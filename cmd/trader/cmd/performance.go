package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/market"
)

var performanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "FIFO realized P/L and win rate from the trade journal",
	Args:  cobra.NoArgs,
	RunE:  runPerformance,
}

func init() {
	rootCmd.AddCommand(performanceCmd)
}

func runPerformance(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := currentUser(a)
	if err != nil {
		return err
	}

	m, err := a.Performance.ComputeForUser(cmd.Context(), user)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Trades:       %d (%d buys, %d sells)\n", m.TotalTrades, m.TotalBuys, m.TotalSells)
	fmt.Fprintf(out, "Closed:       %d (%d won, %d lost)\n", m.ClosedTrades, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(out, "Win rate:     %.1f%%\n", m.WinRate*100)
	fmt.Fprintf(out, "Realized P/L: %s\n", market.FormatMoney(m.RealizedPnL))
	fmt.Fprintf(out, "Avg / trade:  %s\n", market.FormatMoney(m.AvgProfitPerTrade))
	if m.UnmatchedQuantity > 0 {
		fmt.Fprintf(out, "Unmatched:    %s sold without a matching buy\n", market.FormatPrice(m.UnmatchedQuantity))
	}
	return nil
}
