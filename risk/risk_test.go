package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/papertrader/broker"
)

func TestRR(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		entry, stop, take float64
		want              float64
	}{
		{"long 2R", 100, 90, 120, 2},
		{"short 1.5R", 100, 110, 85, 1.5},
		{"no risk", 100, 100, 120, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, RR(tt.entry, tt.stop, tt.take), 1e-12)
		})
	}
}

func TestRiskPct(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.02, RiskPct(20, 1000), 1e-12)
	assert.True(t, math.IsInf(RiskPct(20, 0), 1))
}

func TestSizeForRisk(t *testing.T) {
	t.Parallel()

	// 1% of 10000 over a 10 point stop
	assert.InDelta(t, 10, SizeForRisk(10000, 0.01, 100, 90), 1e-9)

	// capped by what the balance can margin
	assert.InDelta(t, 10, SizeForRisk(1000, 0.5, 100, 99), 1e-9)

	assert.Zero(t, SizeForRisk(1000, 0.01, 100, 100))
	assert.Zero(t, SizeForRisk(0, 0.01, 100, 90))
}

func TestPreviewOrder(t *testing.T) {
	t.Parallel()

	req := broker.OrderRequest{
		UserID: "u1", Symbol: "BTC", Type: broker.Market, Side: broker.Buy,
		Price: 100, Quantity: 2, StopLoss: 95, TakeProfit: 115,
	}
	p, err := PreviewOrder(req, 1000, DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, 200.0, p.Margin)
	assert.InDelta(t, 0.2, p.MarginPct, 1e-12)
	assert.True(t, p.Affordable)
	assert.Equal(t, 10.0, p.Risk)
	assert.Equal(t, 30.0, p.Reward)
	assert.InDelta(t, 3, p.RR, 1e-12)
	assert.InDelta(t, 0.01, p.RiskPct, 1e-12)
	assert.Empty(t, p.Warnings)
}

func TestPreviewOrderWarnings(t *testing.T) {
	t.Parallel()

	codes := func(p Preview) []string {
		var out []string
		for _, w := range p.Warnings {
			out = append(out, w.Code)
		}
		return out
	}

	tests := []struct {
		name    string
		req     broker.OrderRequest
		balance float64
		want    []string
	}{
		{
			name:    "no stop",
			req:     broker.OrderRequest{UserID: "u", Symbol: "BTC", Type: broker.Market, Side: broker.Buy, Price: 10, Quantity: 1},
			balance: 1000,
			want:    []string{"NO_STOP"},
		},
		{
			name:    "unaffordable",
			req:     broker.OrderRequest{UserID: "u", Symbol: "BTC", Type: broker.Limit, Side: broker.Buy, Price: 100, Quantity: 20, StopLoss: 99.99},
			balance: 1000,
			want:    []string{"INSUFFICIENT_FUNDS"},
		},
		{
			name:    "short stop below entry",
			req:     broker.OrderRequest{UserID: "u", Symbol: "BTC", Type: broker.Market, Side: broker.Sell, Price: 100, Quantity: 1, StopLoss: 99},
			balance: 1000,
			want:    []string{"STOP_WRONG_SIDE"},
		},
		{
			name:    "big risk low rr",
			req:     broker.OrderRequest{UserID: "u", Symbol: "BTC", Type: broker.Market, Side: broker.Buy, Price: 100, Quantity: 4, StopLoss: 80, TakeProfit: 110},
			balance: 1000,
			want:    []string{"RISK_TOO_HIGH", "RR_TOO_LOW"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := PreviewOrder(tt.req, tt.balance, DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.want, codes(p))
		})
	}
}

func TestPreviewOrderInvalid(t *testing.T) {
	t.Parallel()
	_, err := PreviewOrder(broker.OrderRequest{UserID: "u"}, 1000, DefaultLimits())
	assert.ErrorIs(t, err, broker.ErrInvalidInput)
}
