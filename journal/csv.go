package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

var tradeHeader = []string{"seq", "trade_id", "order_id", "user_id", "symbol", "side", "price", "quantity", "notional", "executed_at"}

var orderHeader = []string{"order_id", "user_id", "symbol", "type", "side", "price", "quantity", "status", "stop_loss", "take_profit", "created_at"}

// WriteTradesCSV writes trades with a header row. Prices and quantities keep
// full precision; notional is rounded to cents.
func WriteTradesCSV(w io.Writer, trades []broker.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			strconv.FormatInt(t.Seq, 10),
			t.ID,
			t.OrderID,
			t.UserID,
			t.Symbol,
			string(t.Side),
			f(t.Price),
			f(t.Quantity),
			market.FormatMoney(t.Price * t.Quantity),
			t.ExecutedAt.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteOrdersCSV(w io.Writer, orders []broker.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return err
	}
	for _, o := range orders {
		if err := cw.Write([]string{
			o.ID,
			o.UserID,
			o.Symbol,
			string(o.Type),
			string(o.Side),
			f(o.Price),
			f(o.Quantity),
			string(o.Status),
			f(o.StopLoss),
			f(o.TakeProfit),
			o.CreatedAt.UTC().Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
