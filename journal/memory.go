package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Memory is a Journal that keeps everything in process memory.
type Memory struct {
	mu       sync.RWMutex
	orders   map[string]broker.Order
	trades   []broker.Trade
	balances map[string]market.Money
	seq      int64
}

func NewMemory() *Memory {
	return &Memory{
		orders:   make(map[string]broker.Order),
		balances: make(map[string]market.Money),
	}
}

func (m *Memory) CreateOrder(ctx context.Context, o broker.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %q already exists: %w", o.ID, broker.ErrInvalidInput)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o broker.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return orderNotFound(o.ID)
	}
	m.orders[o.ID] = o
	return nil
}

func (m *Memory) Order(ctx context.Context, id string) (broker.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return broker.Order{}, orderNotFound(id)
	}
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, f OrderFilter) ([]broker.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []broker.Order
	for _, o := range m.orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	sortOrders(out)
	return out, nil
}

func (m *Memory) CreateTrade(ctx context.Context, t broker.Trade) (broker.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTradeLocked(t), nil
}

func (m *Memory) CommitTrade(ctx context.Context, o broker.Order, t broker.Trade) (broker.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return broker.Trade{}, orderNotFound(o.ID)
	}
	m.orders[o.ID] = o
	return m.appendTradeLocked(t), nil
}

func (m *Memory) appendTradeLocked(t broker.Trade) broker.Trade {
	m.seq++
	t.Seq = m.seq
	m.trades = append(m.trades, t)
	return t
}

func (m *Memory) TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []broker.Trade
	for _, t := range m.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) TradesBetween(ctx context.Context, userID string, start, end time.Time) ([]broker.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []broker.Trade
	for _, t := range m.trades {
		if userID != "" && t.UserID != userID {
			continue
		}
		if t.ExecutedAt.Before(start) || !t.ExecutedAt.Before(end) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) LoadBalance(ctx context.Context, userID string) (market.Money, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.balances[userID]
	return b, ok, nil
}

func (m *Memory) SaveBalance(ctx context.Context, userID string, balance market.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = balance
	return nil
}

func (m *Memory) Close() error { return nil }
