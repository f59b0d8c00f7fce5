package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/market"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions grouped by symbol and direction",
	Args:  cobra.NoArgs,
	RunE:  runPositions,
}

func init() {
	rootCmd.AddCommand(positionsCmd)
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := currentUser(a)
	if err != nil {
		return err
	}

	positions, err := a.Engine.Positions(cmd.Context(), user)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(positions) == 0 {
		fmt.Fprintln(out, "no open positions")
		return nil
	}
	for _, p := range positions {
		fmt.Fprintf(out, "%-6s %-5s qty=%s avg=%s margin=%s orders=%d\n",
			p.Symbol, p.Direction, market.FormatPrice(p.Quantity), market.FormatPrice(p.AvgPrice),
			market.FormatMoney(p.Margin), len(p.OrderIDs))
	}
	return nil
}
