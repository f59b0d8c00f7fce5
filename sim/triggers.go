package sim

import (
	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

type Reason string

const (
	StopLoss   Reason = "StopLoss"
	TakeProfit Reason = "TakeProfit"
	Manual     Reason = "Manual"
)

// Trigger is a position that must be closed at Price.
type Trigger struct {
	OrderID string
	UserID  string
	Reason  Reason
	Price   market.Price
}

func hitStopLoss(o *broker.Order, price market.Price) bool {
	if o.StopLoss <= 0 {
		return false
	}
	if o.Side == broker.Buy {
		return price <= o.StopLoss
	}
	return price >= o.StopLoss
}

func hitTakeProfit(o *broker.Order, price market.Price) bool {
	if o.TakeProfit <= 0 {
		return false
	}
	if o.Side == broker.Buy {
		return price >= o.TakeProfit
	}
	return price <= o.TakeProfit
}

// Evaluate returns the positions on symbol that price closes out. Only
// EXECUTED orders are considered and stop-loss wins when both levels are
// crossed. The close happens at the configured level, not at price.
func Evaluate(orders []broker.Order, symbol string, price market.Price) []Trigger {
	var out []Trigger
	for i := range orders {
		o := &orders[i]
		if o.Status != broker.Executed || o.Symbol != symbol {
			continue
		}
		switch {
		case hitStopLoss(o, price):
			out = append(out, Trigger{OrderID: o.ID, UserID: o.UserID, Reason: StopLoss, Price: o.StopLoss})
		case hitTakeProfit(o, price):
			out = append(out, Trigger{OrderID: o.ID, UserID: o.UserID, Reason: TakeProfit, Price: o.TakeProfit})
		}
	}
	return out
}
