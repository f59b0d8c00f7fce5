package sim

import (
	"context"
	"fmt"
	"sort"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Aggregate groups executed orders by symbol and direction. Quantities add
// up and the entry price is volume weighted.
func Aggregate(orders []broker.Order) []broker.Position {
	type key struct {
		symbol string
		dir    broker.Direction
	}
	byKey := make(map[key]*broker.Position)
	notional := make(map[key]market.Money)

	for _, o := range orders {
		if o.Status != broker.Executed {
			continue
		}
		k := key{o.Symbol, o.Side.Direction()}
		p, ok := byKey[k]
		if !ok {
			p = &broker.Position{Symbol: o.Symbol, Direction: k.dir}
			byKey[k] = p
		}
		p.Quantity += o.Quantity
		p.Margin += o.Margin()
		p.OrderIDs = append(p.OrderIDs, o.ID)
		notional[k] += o.Price * o.Quantity
	}

	out := make([]broker.Position, 0, len(byKey))
	for k, p := range byKey {
		if p.Quantity > 0 {
			p.AvgPrice = notional[k] / p.Quantity
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Direction < out[j].Direction
	})
	return out
}

// Valuation marks a user's account to market.
type Valuation struct {
	Cash       market.Money `json:"cash"`
	Margin     market.Money `json:"margin"`
	Unrealized market.Money `json:"unrealized_pnl"`
	Total      market.Money `json:"total"`
}

// Value marks positions to the prices from src. Total is what the account
// would hold if every position were closed now.
func Value(ctx context.Context, cash market.Money, positions []broker.Position, src market.PriceSource) (Valuation, error) {
	v := Valuation{Cash: cash}
	for _, p := range positions {
		price, err := src.CurrentPrice(ctx, p.Symbol)
		if err != nil {
			return Valuation{}, fmt.Errorf("price %s: %w: %w", p.Symbol, broker.ErrUnavailable, err)
		}
		pl := p.PL(price)
		credit := p.Margin + pl
		if credit < 0 {
			credit = 0
			pl = -p.Margin
		}
		v.Margin += p.Margin
		v.Unrealized += pl
		v.Total += credit
	}
	v.Total += cash
	return v, nil
}
