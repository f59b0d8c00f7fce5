package market

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// ErrNoPrice is returned when a source has no quote for a symbol.
var ErrNoPrice = errors.New("price not available")

// PriceSource supplies the current price for a symbol.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (Price, error)
}

// PriceStore is an in-memory PriceSource whose quotes are set explicitly.
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string]Price
}

func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[string]Price)}
}

func (ps *PriceStore) Set(symbol string, p Price) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.prices[symbol] = p
}

func (ps *PriceStore) CurrentPrice(ctx context.Context, symbol string) (Price, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return p, nil
}

// Snapshot returns a copy of every quote held by the store.
func (ps *PriceStore) Snapshot() map[string]Price {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]Price, len(ps.prices))
	for k, v := range ps.prices {
		out[k] = v
	}
	return out
}

// RandomWalk is a simulated feed. Every call to CurrentPrice moves the quote
// by a uniformly random fraction within ±Volatility, never dropping below
// Floor.
type RandomWalk struct {
	Volatility float64
	Floor      Price

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]Price
}

// NewRandomWalk seeds a walk starting from the given prices.
func NewRandomWalk(seed int64, start map[string]Price) *RandomWalk {
	prices := make(map[string]Price, len(start))
	for k, v := range start {
		prices[k] = v
	}
	return &RandomWalk{
		Volatility: 0.01,
		Floor:      1.0,
		rng:        rand.New(rand.NewSource(seed)),
		prices:     prices,
	}
}

func (w *RandomWalk) CurrentPrice(ctx context.Context, symbol string) (Price, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	p = p * (1 + (w.rng.Float64()-0.5)*2*w.Volatility)
	if p < w.Floor {
		p = w.Floor
	}
	w.prices[symbol] = p
	return p, nil
}
