package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// OrderFilter selects orders for ListOrders. Empty fields match everything.
type OrderFilter struct {
	UserID   string
	Symbol   string
	Statuses []broker.Status
}

func (f OrderFilter) Match(o broker.Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}

// Journal is the durable record of orders, trades and balances.
//
// Orders are mutable records keyed by ID. Trades are append-only; CreateTrade
// assigns each one a strictly increasing Seq. CommitTrade updates an order and
// appends its trade in one atomic write. Implementations are safe for
// concurrent use.
type Journal interface {
	CreateOrder(ctx context.Context, o broker.Order) error
	UpdateOrder(ctx context.Context, o broker.Order) error
	Order(ctx context.Context, id string) (broker.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]broker.Order, error)

	CreateTrade(ctx context.Context, t broker.Trade) (broker.Trade, error)
	CommitTrade(ctx context.Context, o broker.Order, t broker.Trade) (broker.Trade, error)
	TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error)
	// TradesBetween returns trades executed within [start, end). An empty
	// userID matches every user.
	TradesBetween(ctx context.Context, userID string, start, end time.Time) ([]broker.Trade, error)

	LoadBalance(ctx context.Context, userID string) (market.Money, bool, error)
	SaveBalance(ctx context.Context, userID string, balance market.Money) error

	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, broker.ErrUnavailable, err)
}

func orderNotFound(id string) error {
	return fmt.Errorf("order %q: %w", id, broker.ErrNotFound)
}

func sortOrders(orders []broker.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}

func sortTrades(trades []broker.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Seq < trades[j].Seq
	})
}
