package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/risk"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place, fill, cancel and close orders",
	Long: `Manage orders for the current user.

Examples:
  trader order place --symbol BTC --side buy --price 45000 --qty 0.1 --sl 44000 --tp 47000
  trader order place --symbol ETH --type limit --side sell --price 2600 --qty 2
  trader order execute <order-id> 2590
  trader order cancel <order-id>
  trader order close <order-id> 46000
  trader order list --status executed`,
}

var orderPlaceCmd = &cobra.Command{
	Use:   "place",
	Short: "Place a market or limit order",
	Args:  cobra.NoArgs,
	RunE:  runOrderPlace,
}

var orderExecuteCmd = &cobra.Command{
	Use:   "execute <order-id> <price>",
	Short: "Fill a pending limit order",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrderExecute,
}

var orderCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel a pending order",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderCancel,
}

var orderCloseCmd = &cobra.Command{
	Use:   "close <order-id> <price>",
	Short: "Close an executed order's position",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrderClose,
}

var orderListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the user's orders",
	Args:  cobra.NoArgs,
	RunE:  runOrderList,
}

var orderShowCmd = &cobra.Command{
	Use:   "show <order-id>",
	Short: "Show one order as an Org block",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderShow,
}

var (
	placeSymbol string
	placeType   string
	placeSide   string
	placePrice  float64
	placeQty    float64
	placeSL     float64
	placeTP     float64
	placeDryRun bool

	listStatus string
)

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderPlaceCmd, orderExecuteCmd, orderCancelCmd, orderCloseCmd, orderListCmd, orderShowCmd)

	f := orderPlaceCmd.Flags()
	f.StringVarP(&placeSymbol, "symbol", "s", "", "symbol to trade (required)")
	f.StringVarP(&placeType, "type", "t", "market", "order type: market or limit")
	f.StringVar(&placeSide, "side", "buy", "buy (long) or sell (short)")
	f.Float64VarP(&placePrice, "price", "p", 0, "order price (required)")
	f.Float64VarP(&placeQty, "qty", "q", 0, "quantity (required)")
	f.Float64Var(&placeSL, "sl", 0, "stop loss level, 0 disables")
	f.Float64Var(&placeTP, "tp", 0, "take profit level, 0 disables")
	f.BoolVar(&placeDryRun, "dry-run", false, "print margin, risk and reward without placing")
	orderPlaceCmd.MarkFlagRequired("symbol")
	orderPlaceCmd.MarkFlagRequired("price")
	orderPlaceCmd.MarkFlagRequired("qty")

	orderListCmd.Flags().StringVar(&listStatus, "status", "", "comma separated statuses to include")
}

func parsePrice(s string) (market.Price, error) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, broker.ErrInvalidInput)
	}
	return p, nil
}

func runOrderPlace(cmd *cobra.Command, args []string) error {
	typ, err := broker.ParseOrderType(placeType)
	if err != nil {
		return err
	}
	side, err := broker.ParseSide(placeSide)
	if err != nil {
		return err
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

	req := broker.OrderRequest{
		UserID:     user,
		Symbol:     strings.ToUpper(placeSymbol),
		Type:       typ,
		Side:       side,
		Price:      placePrice,
		Quantity:   placeQty,
		StopLoss:   placeSL,
		TakeProfit: placeTP,
	}
	if placeDryRun {
		return previewOrder(cmd, a.Engine, req)
	}

	o, err := a.Engine.PlaceOrder(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrderOrg(o))
	return nil
}

func previewOrder(cmd *cobra.Command, b broker.Broker, req broker.OrderRequest) error {
	bal, err := b.Balance(cmd.Context(), req.UserID)
	if err != nil {
		return err
	}
	p, err := risk.PreviewOrder(req, bal, risk.DefaultLimits())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Margin: %s (%.1f%% of %s)\n", market.FormatMoney(p.Margin), p.MarginPct*100, market.FormatMoney(bal))
	if p.Risk > 0 {
		fmt.Fprintf(out, "Risk:   %s (%.2f%%)\n", market.FormatMoney(p.Risk), p.RiskPct*100)
	}
	if p.Reward > 0 {
		fmt.Fprintf(out, "Reward: %s (R:R %.2f)\n", market.FormatMoney(p.Reward), p.RR)
	}
	for _, w := range p.Warnings {
		fmt.Fprintf(out, "! %s: %s\n", w.Code, w.Msg)
	}
	return nil
}

func runOrderExecute(cmd *cobra.Command, args []string) error {
	price, err := parsePrice(args[1])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.Engine.Execute(cmd.Context(), args[0], price)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrderOrg(o))
	return nil
}

func runOrderCancel(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Engine.CancelOrder(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
	return nil
}

func runOrderClose(cmd *cobra.Command, args []string) error {
	price, err := parsePrice(args[1])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	realized, err := a.Engine.ClosePosition(cmd.Context(), args[0], price)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "closed %s at %s: realized %s\n",
		args[0], market.FormatPrice(price), market.FormatMoney(realized))
	return nil
}

func runOrderList(cmd *cobra.Command, args []string) error {
	var statuses []broker.Status
	if listStatus != "" {
		for _, part := range strings.Split(listStatus, ",") {
			st, err := broker.ParseStatus(part)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
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

	orders, err := a.Engine.Orders(cmd.Context(), user, statuses...)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(orders) == 0 {
		fmt.Fprintln(out, "no orders")
		return nil
	}
	for _, o := range orders {
		fmt.Fprintf(out, "%s  %-9s %-6s %-4s %-6s %s x %s\n",
			o.ID, o.Status, o.Type, o.Side, o.Symbol,
			market.FormatPrice(o.Quantity), market.FormatPrice(o.Price))
	}
	return nil
}

func runOrderShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	o, err := a.Engine.Order(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrderOrg(o))
	return nil
}
