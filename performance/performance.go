// Package performance rebuilds trading statistics from the trade ledger.
//
// BUY trades open lots per symbol; each SELL consumes the oldest lots first
// and realizes (sell price - lot price) on the matched quantity. Quantity
// sold with no lot left is booked at a zero cost basis and reported in
// UnmatchedQuantity. CLOSE_LONG and CLOSE_SHORT trades only count toward
// TotalTrades.
package performance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

type EquityPoint struct {
	Time  time.Time    `json:"time"`
	Value market.Money `json:"value"`
}

type Metrics struct {
	TotalTrades       int             `json:"total_trades"`
	TotalBuys         int             `json:"total_buys"`
	TotalSells        int             `json:"total_sells"`
	ClosedTrades      int             `json:"closed_trades"`
	WinningTrades     int             `json:"winning_trades"`
	LosingTrades      int             `json:"losing_trades"`
	RealizedPnL       market.Money    `json:"realized_pnl"`
	AvgProfitPerTrade market.Money    `json:"avg_profit_per_trade"`
	WinRate           float64         `json:"win_rate"`
	UnmatchedQuantity market.Quantity `json:"unmatched_quantity"`
	Equity            []EquityPoint   `json:"equity"`
}

type lot struct {
	qty   market.Quantity
	price market.Price
}

// Compute replays trades in execution order. Trades with equal ExecutedAt
// keep their Seq order. The input slice is not modified.
func Compute(trades []broker.Trade) Metrics {
	sorted := make([]broker.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.ExecutedAt.Equal(b.ExecutedAt) {
			return a.ExecutedAt.Before(b.ExecutedAt)
		}
		return a.Seq < b.Seq
	})

	m := Metrics{TotalTrades: len(sorted), Equity: []EquityPoint{}}
	lots := make(map[string][]lot)
	var cumulative market.Money

	for _, t := range sorted {
		switch t.Side {
		case broker.TradeBuy:
			m.TotalBuys++
			lots[t.Symbol] = append(lots[t.Symbol], lot{qty: t.Quantity, price: t.Price})

		case broker.TradeSell:
			m.TotalSells++
			profit, unmatched := consume(lots, t)
			m.UnmatchedQuantity += unmatched

			m.RealizedPnL += profit
			m.ClosedTrades++
			switch {
			case profit > 0:
				m.WinningTrades++
			case profit < 0:
				m.LosingTrades++
			}

			cumulative += profit
			m.Equity = append(m.Equity, EquityPoint{Time: t.ExecutedAt, Value: cumulative})
		}
	}

	if m.ClosedTrades > 0 {
		m.AvgProfitPerTrade = m.RealizedPnL / market.Money(m.ClosedTrades)
		m.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades)
	}
	return m
}

// consume matches sell t against the symbol's lots, oldest first.
func consume(lots map[string][]lot, t broker.Trade) (market.Money, market.Quantity) {
	queue := lots[t.Symbol]
	remaining := t.Quantity
	var profit market.Money

	for remaining > market.Epsilon && len(queue) > 0 {
		used := math.Min(remaining, queue[0].qty)
		profit += (t.Price - queue[0].price) * used
		queue[0].qty -= used
		remaining -= used
		if queue[0].qty <= market.Epsilon {
			queue = queue[1:]
		}
	}
	lots[t.Symbol] = queue

	var unmatched market.Quantity
	if remaining > market.Epsilon {
		profit += t.Price * remaining
		unmatched = remaining
	}
	return profit, unmatched
}

// TradeSource reads a user's trades.
type TradeSource interface {
	TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error)
}

type Service struct {
	trades TradeSource
}

func NewService(trades TradeSource) *Service {
	return &Service{trades: trades}
}

// ComputeForUser computes metrics over a snapshot of the user's trades.
func (s *Service) ComputeForUser(ctx context.Context, userID string) (Metrics, error) {
	trades, err := s.trades.TradesByUser(ctx, userID)
	if err != nil {
		return Metrics{}, fmt.Errorf("performance for %s: %w", userID, err)
	}
	return Compute(trades), nil
}
