// Package poller drives trigger evaluation from a price source on a fixed
// interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/alerts"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/sim"
)

const DefaultInterval = 5 * time.Second

// PriceUpdater closes positions whose triggers a price crosses.
type PriceUpdater interface {
	UpdatePrice(ctx context.Context, symbol string, price market.Price) ([]sim.Closed, error)
}

// AlertEvaluator fires price alerts.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, symbol string, price market.Price) []alerts.Alert
}

type Poller struct {
	Source   market.PriceSource
	Engine   PriceUpdater
	Alerts   AlertEvaluator
	Symbols  []string
	Interval time.Duration
	Log      *zap.Logger

	// OnPrice, if set, sees every price fetched.
	OnPrice func(symbol string, price market.Price)
}

// Tick fetches one price per symbol and feeds it to the engine and alerts.
// The price is resolved before the engine is called. A failing symbol does
// not stop the others; their errors are joined.
func (p *Poller) Tick(ctx context.Context) error {
	var errs []error
	for _, sym := range p.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		price, err := p.Source.CurrentPrice(ctx, sym)
		if err != nil {
			p.log().Warn("price fetch failed", zap.String("symbol", sym), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		if p.OnPrice != nil {
			p.OnPrice(sym, price)
		}

		closed, err := p.Engine.UpdatePrice(ctx, sym, price)
		for _, c := range closed {
			p.log().Info("trigger closed position",
				zap.String("order_id", c.Order.ID),
				zap.String("user_id", c.Order.UserID),
				zap.String("symbol", sym),
				zap.String("reason", string(c.Reason)),
				zap.Float64("price", c.Price),
				zap.Float64("realized", c.Realized),
			)
		}
		if err != nil {
			p.log().Error("trigger evaluation failed", zap.String("symbol", sym), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
		}

		if p.Alerts != nil {
			p.Alerts.Evaluate(ctx, sym, price)
		}
	}
	return errors.Join(errs...)
}

// Run ticks immediately and then every Interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = p.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log().Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = p.Tick(ctx)
		}
	}
}

func (p *Poller) log() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
