package performance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/journal"
)

var t0 = time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

func trade(side broker.TradeSide, symbol string, price, qty float64, minute int) broker.Trade {
	return broker.Trade{
		Side:       side,
		Symbol:     symbol,
		Price:      price,
		Quantity:   qty,
		ExecutedAt: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	m := Compute(nil)
	assert.Equal(t, 0, m.TotalTrades)
	assert.Equal(t, 0, m.ClosedTrades)
	assert.Equal(t, 0.0, m.WinRate)
	assert.Equal(t, 0.0, m.AvgProfitPerTrade)
	assert.Empty(t, m.Equity)
}

func TestComputeFIFOAcrossLots(t *testing.T) {
	t.Parallel()

	m := Compute([]broker.Trade{
		trade(broker.TradeBuy, "BTC", 100, 1, 0),
		trade(broker.TradeBuy, "BTC", 200, 1, 1),
		trade(broker.TradeSell, "BTC", 150, 1.5, 2),
	})

	// 1 @ (150-100) + 0.5 @ (150-200)
	assert.InDelta(t, 25, m.RealizedPnL, 1e-9)
	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.TotalBuys)
	assert.Equal(t, 1, m.TotalSells)
	assert.Equal(t, 1, m.ClosedTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 0.0, m.UnmatchedQuantity)
	require.Len(t, m.Equity, 1)
	assert.InDelta(t, 25, m.Equity[0].Value, 1e-9)
	assert.True(t, t0.Add(2*time.Minute).Equal(m.Equity[0].Time))
}

func TestComputeWinRate(t *testing.T) {
	t.Parallel()

	m := Compute([]broker.Trade{
		trade(broker.TradeBuy, "ETH", 100, 3, 0),
		trade(broker.TradeSell, "ETH", 110, 1, 1),
		trade(broker.TradeSell, "ETH", 95, 1, 2),
		trade(broker.TradeSell, "ETH", 100, 1, 3),
	})

	assert.Equal(t, 3, m.ClosedTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 1.0/3.0, m.WinRate, 1e-12)
	assert.InDelta(t, 5, m.RealizedPnL, 1e-9)
	assert.InDelta(t, 5.0/3.0, m.AvgProfitPerTrade, 1e-9)

	require.Len(t, m.Equity, 3)
	assert.InDelta(t, 10, m.Equity[0].Value, 1e-9)
	assert.InDelta(t, 5, m.Equity[1].Value, 1e-9)
	assert.InDelta(t, 5, m.Equity[2].Value, 1e-9)
}

func TestComputeUnmatchedSellAtZeroCost(t *testing.T) {
	t.Parallel()

	m := Compute([]broker.Trade{
		trade(broker.TradeBuy, "SOL", 100, 1, 0),
		trade(broker.TradeSell, "SOL", 120, 3, 1),
	})

	// 1 matched @ +20, 2 unmatched booked at full price
	assert.InDelta(t, 20+240, m.RealizedPnL, 1e-9)
	assert.InDelta(t, 2, m.UnmatchedQuantity, 1e-12)
	assert.Equal(t, 1, m.WinningTrades)
}

func TestComputeLotsArePerSymbol(t *testing.T) {
	t.Parallel()

	m := Compute([]broker.Trade{
		trade(broker.TradeBuy, "BTC", 100, 1, 0),
		trade(broker.TradeBuy, "ETH", 10, 1, 1),
		trade(broker.TradeSell, "ETH", 12, 1, 2),
		trade(broker.TradeSell, "BTC", 90, 1, 3),
	})

	assert.InDelta(t, -8, m.RealizedPnL, 1e-9)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 0.5, m.WinRate)
}

func TestComputeSortsByTimeThenSeq(t *testing.T) {
	t.Parallel()

	sell := trade(broker.TradeSell, "BTC", 150, 1, 5)
	sell.Seq = 3
	first := trade(broker.TradeBuy, "BTC", 100, 1, 0)
	first.Seq = 2
	second := trade(broker.TradeBuy, "BTC", 200, 1, 0)
	second.Seq = 1

	input := []broker.Trade{sell, first, second}
	m := Compute(input)

	// second has the lower seq at the same instant so it is the oldest lot.
	assert.InDelta(t, -50, m.RealizedPnL, 1e-9)
	assert.Equal(t, broker.TradeSell, input[0].Side, "input must not be reordered")
}

func TestComputeIgnoresCloseTradesForMatching(t *testing.T) {
	t.Parallel()

	m := Compute([]broker.Trade{
		trade(broker.TradeBuy, "BTC", 100, 1, 0),
		trade(broker.CloseLong, "BTC", 110, 1, 1),
		trade(broker.CloseShort, "BTC", 90, 1, 2),
	})

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.TotalBuys)
	assert.Equal(t, 0, m.TotalSells)
	assert.Equal(t, 0, m.ClosedTrades)
	assert.Equal(t, 0.0, m.RealizedPnL)
	assert.Empty(t, m.Equity)
}

func TestServiceComputeForUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := journal.NewMemory()
	for _, tr := range []broker.Trade{
		trade(broker.TradeBuy, "BTC", 100, 1, 0),
		trade(broker.TradeSell, "BTC", 130, 1, 1),
	} {
		tr.UserID = "alice"
		_, err := j.CreateTrade(ctx, tr)
		require.NoError(t, err)
	}
	other := trade(broker.TradeSell, "BTC", 1000, 1, 2)
	other.UserID = "bob"
	_, err := j.CreateTrade(ctx, other)
	require.NoError(t, err)

	m, err := NewService(j).ComputeForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalTrades)
	assert.InDelta(t, 30, m.RealizedPnL, 1e-9)
	assert.Equal(t, 1.0, m.WinRate)
}
