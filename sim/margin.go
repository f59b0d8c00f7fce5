package sim

import (
	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Settlement is the cash effect of closing a position.
type Settlement struct {
	Margin   market.Money
	PL       market.Money
	Credit   market.Money
	Realized market.Money
}

// Settle computes the close of o at price. A loss larger than the margin is
// capped: the credit never goes below zero, so Realized is at least -Margin.
func Settle(o broker.Order, price market.Price) Settlement {
	s := Settlement{
		Margin: o.Margin(),
		PL:     o.PL(price),
	}
	s.Credit = s.Margin + s.PL
	s.Realized = s.PL
	if s.Credit < 0 {
		s.Credit = 0
		s.Realized = -s.Margin
	}
	return s
}
