package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// FormatTradeOrg renders a Trade as an Org-mode block. Structured facts go
// in the PROPERTIES drawer; the Notes heading is left for the trader.
func FormatTradeOrg(t broker.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s (%s)\n", t.Side, t.Symbol, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":ORDER_ID: %s\n", t.OrderID)
	fmt.Fprintf(&b, ":USER_ID: %s\n", t.UserID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":PRICE: %s\n", market.FormatPrice(t.Price))
	fmt.Fprintf(&b, ":QUANTITY: %s\n", f(t.Quantity))
	fmt.Fprintf(&b, ":NOTIONAL: %s\n", market.FormatMoney(t.Price*t.Quantity))
	fmt.Fprintf(&b, ":EXECUTED_AT: %s\n", t.ExecutedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":SEQ: %d\n", t.Seq)
	b.WriteString(":END:\n\n")
	b.WriteString("*** Notes\n- \n")
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []broker.Trade) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func FormatOrderOrg(o broker.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", o.Status, o.Side, o.Symbol, shortID(o.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", o.ID)
	fmt.Fprintf(&b, ":USER_ID: %s\n", o.UserID)
	fmt.Fprintf(&b, ":TYPE: %s\n", o.Type)
	fmt.Fprintf(&b, ":PRICE: %s\n", market.FormatPrice(o.Price))
	fmt.Fprintf(&b, ":QUANTITY: %s\n", f(o.Quantity))
	fmt.Fprintf(&b, ":MARGIN: %s\n", market.FormatMoney(o.Margin()))
	if o.StopLoss > 0 {
		fmt.Fprintf(&b, ":STOP_LOSS: %s\n", market.FormatPrice(o.StopLoss))
	}
	if o.TakeProfit > 0 {
		fmt.Fprintf(&b, ":TAKE_PROFIT: %s\n", market.FormatPrice(o.TakeProfit))
	}
	fmt.Fprintf(&b, ":CREATED_AT: %s\n", o.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n")
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
