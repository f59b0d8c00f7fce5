// Package risk sizes orders and previews what they put at stake before they
// are placed. Nothing here rejects an order; the engine's margin check is
// the only hard limit.
package risk

import (
	"math"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// PlannedRisk is the loss on qty if price moves from entry to stop.
func PlannedRisk(qty market.Quantity, entry, stop market.Price) market.Money {
	return qty * math.Abs(entry-stop)
}

// RR is the reward to risk ratio of a bracket. Zero when there is no risk.
func RR(entry, stop, takeProfit market.Price) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// RiskPct is planned risk as a fraction of balance.
func RiskPct(planned, balance market.Money) float64 {
	if balance <= 0 {
		return math.Inf(1)
	}
	return planned / balance
}

// SizeForRisk returns the quantity that loses riskPct of balance when the
// stop is hit, capped so its margin fits in balance.
func SizeForRisk(balance market.Money, riskPct float64, entry, stop market.Price) market.Quantity {
	if entry <= 0 || balance <= 0 || riskPct <= 0 {
		return 0
	}
	move := math.Abs(entry - stop)
	if move == 0 {
		return 0
	}
	qty := balance * riskPct / move
	if most := balance / entry; qty > most {
		qty = most
	}
	return qty
}

// stopOnWrongSide reports a stop loss that would fire at once: a long stop
// above entry or a short stop below it.
func stopOnWrongSide(side broker.Side, entry, stop market.Price) bool {
	if stop <= 0 {
		return false
	}
	if side == broker.Sell {
		return stop <= entry
	}
	return stop >= entry
}

func targetOnWrongSide(side broker.Side, entry, tp market.Price) bool {
	if tp <= 0 {
		return false
	}
	if side == broker.Sell {
		return tp >= entry
	}
	return tp <= entry
}
