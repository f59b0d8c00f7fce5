package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/alerts"
	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/wallet"
)

func newEngine(t *testing.T) *sim.Engine {
	t.Helper()
	j := journal.NewMemory()
	return sim.NewEngine(j, wallet.NewBook(1000, wallet.WithStore(j)))
}

func TestTickClosesTriggeredPositions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEngine(t)

	o, err := e.PlaceOrder(ctx, broker.OrderRequest{
		UserID: "alice", Symbol: "BTC", Type: broker.Market, Side: broker.Buy,
		Price: 100, Quantity: 2, StopLoss: 90, TakeProfit: 120,
	})
	require.NoError(t, err)

	prices := market.NewPriceStore()
	prices.Set("BTC", 125)
	ab := alerts.NewBook(nil, nil)
	_, err = ab.Add("alice", "BTC", 120, true)
	require.NoError(t, err)

	var seen []market.Price
	p := &Poller{
		Source:  prices,
		Engine:  e,
		Alerts:  ab,
		Symbols: []string{"BTC", "ETH"},
		OnPrice: func(_ string, price market.Price) { seen = append(seen, price) },
	}

	err = p.Tick(ctx)
	assert.ErrorIs(t, err, market.ErrNoPrice, "ETH has no quote")
	assert.Equal(t, []market.Price{125}, seen)

	got, err := e.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Closed, got.Status)

	bal, err := e.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1040, bal, 1e-9)

	rules := ab.List("alice")
	require.Len(t, rules, 1)
	assert.False(t, rules[0].Enabled)
}

type countingSource struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSource) CurrentPrice(ctx context.Context, symbol string) (market.Price, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 100, nil
}

func (c *countingSource) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	src := &countingSource{}
	p := &Poller{
		Source:   src,
		Engine:   newEngine(t),
		Symbols:  []string{"BTC"},
		Interval: 10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return src.count() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
