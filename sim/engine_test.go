package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/wallet"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, balance float64) (*Engine, *journal.Memory) {
	t.Helper()
	j := journal.NewMemory()
	book := wallet.NewBook(balance, wallet.WithStore(j))
	now := t0
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return NewEngine(j, book, WithClock(clock)), j
}

func place(t *testing.T, e *Engine, req broker.OrderRequest) broker.Order {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "alice"
	}
	if req.Symbol == "" {
		req.Symbol = "BTC"
	}
	if req.Type == "" {
		req.Type = broker.Market
	}
	if req.Side == "" {
		req.Side = broker.Buy
	}
	o, err := e.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return o
}

func balance(t *testing.T, e *Engine, user string) float64 {
	t.Helper()
	b, err := e.Balance(context.Background(), user)
	require.NoError(t, err)
	return b
}

func TestPlaceMarketOrderDebitsMargin(t *testing.T) {
	t.Parallel()
	e, j := newEngine(t, 1000)

	o := place(t, e, broker.OrderRequest{Price: 100, Quantity: 2})
	assert.Equal(t, broker.Executed, o.Status)
	assert.Equal(t, 100.0, o.Price)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 800.0, balance(t, e, "alice"))

	trades, err := j.TradesByUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, broker.TradeBuy, trades[0].Side)
	assert.Equal(t, o.ID, trades[0].OrderID)
	assert.Equal(t, 100.0, trades[0].Price)
	assert.Equal(t, 2.0, trades[0].Quantity)

	stored, err := e.Order(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Executed, stored.Status)
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	t.Parallel()
	e, j := newEngine(t, 100)
	ctx := context.Background()

	for _, typ := range []broker.OrderType{broker.Market, broker.Limit} {
		_, err := e.PlaceOrder(ctx, broker.OrderRequest{
			UserID: "alice", Symbol: "BTC", Type: typ, Side: broker.Sell, Price: 60, Quantity: 2,
		})
		assert.ErrorIs(t, err, broker.ErrInsufficientFunds)
	}
	assert.Equal(t, 100.0, balance(t, e, "alice"))

	orders, err := j.ListOrders(ctx, journal.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	trades, err := j.TradesByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestPlaceOrderInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(r *broker.OrderRequest)
	}{
		{"zero_qty", func(r *broker.OrderRequest) { r.Quantity = 0 }},
		{"nan_price", func(r *broker.OrderRequest) { r.Price = math.NaN() }},
		{"inf_price", func(r *broker.OrderRequest) { r.Price = math.Inf(1) }},
		{"neg_inf_price", func(r *broker.OrderRequest) { r.Price = math.Inf(-1) }},
		{"nan_qty", func(r *broker.OrderRequest) { r.Quantity = math.NaN() }},
		{"inf_qty", func(r *broker.OrderRequest) { r.Quantity = math.Inf(1) }},
		{"nan_sl", func(r *broker.OrderRequest) { r.StopLoss = math.NaN() }},
		{"nan_tp", func(r *broker.OrderRequest) { r.TakeProfit = math.NaN() }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, j := newEngine(t, 1000)
			ctx := context.Background()

			req := broker.OrderRequest{
				UserID: "alice", Symbol: "BTC", Type: broker.Market, Side: broker.Buy, Price: 100, Quantity: 1,
			}
			tt.mutate(&req)
			_, err := e.PlaceOrder(ctx, req)
			assert.ErrorIs(t, err, broker.ErrInvalidInput)
			assert.Equal(t, 1000.0, balance(t, e, "alice"))

			orders, err := j.ListOrders(ctx, journal.OrderFilter{UserID: "alice"})
			require.NoError(t, err)
			assert.Empty(t, orders)
		})
	}
}

func TestNonFinitePricesRejected(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	open := place(t, e, broker.OrderRequest{Price: 100, Quantity: 2, StopLoss: 90})
	pending := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 1})
	require.Equal(t, 800.0, balance(t, e, "alice"))

	for _, p := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := e.ClosePosition(ctx, open.ID, p)
		assert.ErrorIs(t, err, broker.ErrInvalidInput)

		_, err = e.Execute(ctx, pending.ID, p)
		assert.ErrorIs(t, err, broker.ErrInvalidInput)

		closed, err := e.UpdatePrice(ctx, "BTC", p)
		assert.ErrorIs(t, err, broker.ErrInvalidInput)
		assert.Empty(t, closed)
	}

	assert.Equal(t, 800.0, balance(t, e, "alice"))
	got, err := e.Order(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Executed, got.Status)
	got, err = e.Order(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Pending, got.Status)
}

func TestLimitOrderLifecycle(t *testing.T) {
	t.Parallel()
	e, j := newEngine(t, 1000)
	ctx := context.Background()

	o := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 2})
	assert.Equal(t, broker.Pending, o.Status)
	assert.Equal(t, 1000.0, balance(t, e, "alice"))

	filled, err := e.Execute(ctx, o.ID, 95)
	require.NoError(t, err)
	assert.Equal(t, broker.Executed, filled.Status)
	assert.Equal(t, 95.0, filled.Price)
	assert.Equal(t, 810.0, balance(t, e, "alice"))

	_, err = e.Execute(ctx, o.ID, 95)
	assert.ErrorIs(t, err, broker.ErrInvalidState)
	assert.Equal(t, 810.0, balance(t, e, "alice"))

	trades, err := j.TradesByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 95.0, trades[0].Price)

	_, err = e.Execute(ctx, "missing", 95)
	assert.ErrorIs(t, err, broker.ErrNotFound)
	_, err = e.Execute(ctx, o.ID, 0)
	assert.ErrorIs(t, err, broker.ErrInvalidInput)
}

func TestExecuteInsufficientFundsLeavesPending(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	limit := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 5})
	place(t, e, broker.OrderRequest{Price: 100, Quantity: 6})
	assert.Equal(t, 400.0, balance(t, e, "alice"))

	_, err := e.Execute(ctx, limit.ID, 100)
	assert.ErrorIs(t, err, broker.ErrInsufficientFunds)
	assert.Equal(t, 400.0, balance(t, e, "alice"))

	got, err := e.Order(ctx, limit.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Pending, got.Status)
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	pending := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 2})
	ok, err := e.CancelOrder(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1000.0, balance(t, e, "alice"))

	got, err := e.Order(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Cancelled, got.Status)

	ok, err = e.CancelOrder(ctx, pending.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, broker.ErrInvalidState)

	_, err = e.Execute(ctx, pending.ID, 100)
	assert.ErrorIs(t, err, broker.ErrInvalidState)

	executed := place(t, e, broker.OrderRequest{Price: 100, Quantity: 2})
	ok, err = e.CancelOrder(ctx, executed.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, broker.ErrInvalidState)
	assert.Equal(t, 800.0, balance(t, e, "alice"))

	ok, err = e.CancelOrder(ctx, "missing")
	assert.False(t, ok)
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func TestClosePosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		side        broker.Side
		close       float64
		wantPL      float64
		wantBalance float64
		wantTrade   broker.TradeSide
	}{
		{"long_gain", broker.Buy, 110, 20, 1020, broker.CloseLong},
		{"long_loss", broker.Buy, 90, -20, 980, broker.CloseLong},
		{"short_gain", broker.Sell, 90, 20, 1020, broker.CloseShort},
		{"short_loss", broker.Sell, 125, -50, 950, broker.CloseShort},
		{"short_wipeout", broker.Sell, 250, -200, 800, broker.CloseShort},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, j := newEngine(t, 1000)
			ctx := context.Background()

			o := place(t, e, broker.OrderRequest{Side: tt.side, Price: 100, Quantity: 2})
			require.Equal(t, 800.0, balance(t, e, "alice"))

			pl, err := e.ClosePosition(ctx, o.ID, tt.close)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantPL, pl, 1e-9)
			assert.InDelta(t, tt.wantBalance, balance(t, e, "alice"), 1e-9)

			got, err := e.Order(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, broker.Closed, got.Status)

			trades, err := j.TradesByUser(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, trades, 2)
			assert.Equal(t, tt.wantTrade, trades[1].Side)
			assert.Equal(t, tt.close, trades[1].Price)

			_, err = e.ClosePosition(ctx, o.ID, tt.close)
			assert.ErrorIs(t, err, broker.ErrInvalidState)
			assert.InDelta(t, tt.wantBalance, balance(t, e, "alice"), 1e-9)
		})
	}
}

func TestClosePositionRejects(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	_, err := e.ClosePosition(ctx, "missing", 100)
	assert.ErrorIs(t, err, broker.ErrNotFound)

	pending := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 1})
	_, err = e.ClosePosition(ctx, pending.ID, 100)
	assert.ErrorIs(t, err, broker.ErrInvalidState)
	assert.Equal(t, 1000.0, balance(t, e, "alice"))

	_, err = e.ClosePosition(ctx, pending.ID, -1)
	assert.ErrorIs(t, err, broker.ErrInvalidInput)
}

type recordingListener struct {
	mu     sync.Mutex
	closed []Closed
}

func (l *recordingListener) OnTradeClosed(c Closed) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = append(l.closed, c)
}

func TestUpdatePriceStopLossBeatsTakeProfit(t *testing.T) {
	t.Parallel()
	e, j := newEngine(t, 1000)
	ctx := context.Background()
	l := &recordingListener{}
	e.SetTradeClosedListener(l)

	o := place(t, e, broker.OrderRequest{Price: 100, Quantity: 2, StopLoss: 90, TakeProfit: 120})

	closed, err := e.UpdatePrice(ctx, "BTC", 85)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, o.ID, closed[0].Order.ID)
	assert.Equal(t, StopLoss, closed[0].Reason)
	assert.Equal(t, 90.0, closed[0].Price)
	assert.InDelta(t, -20, closed[0].Realized, 1e-9)
	assert.InDelta(t, 980, balance(t, e, "alice"), 1e-9)

	trades, err := j.TradesByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, broker.CloseLong, trades[1].Side)
	assert.Equal(t, 90.0, trades[1].Price)

	require.Len(t, l.closed, 1)
	assert.Equal(t, StopLoss, l.closed[0].Reason)

	closed, err = e.UpdatePrice(ctx, "BTC", 80)
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestUpdatePriceTakeProfitShort(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	short := place(t, e, broker.OrderRequest{Side: broker.Sell, Price: 100, Quantity: 1, TakeProfit: 80})
	place(t, e, broker.OrderRequest{Symbol: "ETH", Price: 100, Quantity: 1, StopLoss: 99})
	place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 100, Quantity: 1, StopLoss: 99})
	place(t, e, broker.OrderRequest{UserID: "bob", Price: 100, Quantity: 1})

	closed, err := e.UpdatePrice(ctx, "BTC", 75)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, short.ID, closed[0].Order.ID)
	assert.Equal(t, TakeProfit, closed[0].Reason)
	assert.Equal(t, 80.0, closed[0].Price)
	assert.InDelta(t, 20, closed[0].Realized, 1e-9)

	// 1000 - 100 (short) - 100 (ETH) + 120 (close)
	assert.InDelta(t, 920, balance(t, e, "alice"), 1e-9)

	_, err = e.UpdatePrice(ctx, "BTC", 0)
	assert.ErrorIs(t, err, broker.ErrInvalidInput)
}

func TestConcurrentPlacementNeverOverspends(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.PlaceOrder(ctx, broker.OrderRequest{
				UserID: "alice", Symbol: "BTC", Type: broker.Market, Side: broker.Buy, Price: 600, Quantity: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, broker.ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 400.0, balance(t, e, "alice"))
}

func TestConcurrentClosePaysOnce(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	o := place(t, e, broker.OrderRequest{Price: 100, Quantity: 2, StopLoss: 90})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = e.ClosePosition(ctx, o.ID, 110)
		}()
		go func() {
			defer wg.Done()
			_, _ = e.UpdatePrice(ctx, "BTC", 85)
		}()
	}
	wg.Wait()

	b := balance(t, e, "alice")
	assert.True(t, b == 1020 || b == 980, "balance %v", b)
}

func TestPositionsAndValuation(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 10000)
	ctx := context.Background()

	b1 := place(t, e, broker.OrderRequest{Price: 100, Quantity: 1})
	b2 := place(t, e, broker.OrderRequest{Price: 200, Quantity: 3})
	s1 := place(t, e, broker.OrderRequest{Side: broker.Sell, Price: 150, Quantity: 1})
	place(t, e, broker.OrderRequest{Symbol: "ETH", Type: broker.Limit, Price: 10, Quantity: 1})

	positions, err := e.Positions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, broker.Long, positions[0].Direction)
	assert.Equal(t, 4.0, positions[0].Quantity)
	assert.InDelta(t, 175, positions[0].AvgPrice, 1e-9)
	assert.Equal(t, 700.0, positions[0].Margin)
	assert.Equal(t, []string{b1.ID, b2.ID}, positions[0].OrderIDs)

	assert.Equal(t, broker.Short, positions[1].Direction)
	assert.Equal(t, 1.0, positions[1].Quantity)
	assert.Equal(t, []string{s1.ID}, positions[1].OrderIDs)

	prices := market.NewPriceStore()
	prices.Set("BTC", 200)
	v, err := e.Valuation(ctx, "alice", prices)
	require.NoError(t, err)
	assert.InDelta(t, 9150, v.Cash, 1e-9)
	assert.InDelta(t, 850, v.Margin, 1e-9)
	// long +100, short -50
	assert.InDelta(t, 50, v.Unrealized, 1e-9)
	assert.InDelta(t, 10050, v.Total, 1e-9)

	_, err = e.Valuation(ctx, "alice", market.NewPriceStore())
	assert.ErrorIs(t, err, broker.ErrUnavailable)
}

func TestOrdersAndTradesHistory(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, 1000)
	ctx := context.Background()

	m := place(t, e, broker.OrderRequest{Price: 100, Quantity: 1})
	l := place(t, e, broker.OrderRequest{Type: broker.Limit, Price: 90, Quantity: 1})
	place(t, e, broker.OrderRequest{UserID: "bob", Price: 10, Quantity: 1})

	all, err := e.Orders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, m.ID, all[0].ID)
	assert.Equal(t, l.ID, all[1].ID)

	pending, err := e.Orders(ctx, "alice", broker.Pending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, l.ID, pending[0].ID)

	trades, err := e.Trades(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	bal, err := e.Deposit(ctx, "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal)
}
