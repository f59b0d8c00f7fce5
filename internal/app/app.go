// Package app assembles the trading engine and its collaborators from a
// config.Config.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/alerts"
	"github.com/rustyeddy/papertrader/config"
	"github.com/rustyeddy/papertrader/internal/logging"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/performance"
	"github.com/rustyeddy/papertrader/poller"
	"github.com/rustyeddy/papertrader/sim"
	"github.com/rustyeddy/papertrader/wallet"
)

type App struct {
	Config      *config.Config
	Log         *zap.Logger
	Journal     journal.Journal
	Book        *wallet.Book
	Engine      *sim.Engine
	Alerts      *alerts.Book
	Performance *performance.Service

	// Source is the feed polled for new prices. Latest holds the last
	// price seen for every symbol and is what valuations read.
	Source market.PriceSource
	Latest *market.PriceStore
	Poller *poller.Poller
}

// OpenJournal opens the ledger store selected by cfg.Type.
func OpenJournal(ctx context.Context, cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "", "memory":
		return journal.NewMemory(), nil
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "pebble":
		return journal.NewPebble(cfg.PebblePath)
	case "postgres":
		return journal.NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}

// New builds an App. If log is nil one is created from cfg.Log.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		var err error
		if cfg.Log.File != "" {
			log, err = logging.NewWithFile(cfg.Log.File, cfg.Log.Level)
		} else {
			log, err = logging.New(cfg.Log.Level)
		}
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
	}

	j, err := OpenJournal(ctx, cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	book := wallet.NewBook(cfg.Account.StartingBalance,
		wallet.WithStore(j),
		wallet.WithLogger(log.Named("wallet")),
	)
	engine := sim.NewEngine(j, book, sim.WithLogger(log.Named("engine")))
	engine.SetTradeClosedListener(closeLogger{log: log.Named("triggers")})

	ab := alerts.NewBook(alerts.LogNotifier{Log: log.Named("alerts")}, log.Named("alerts"))
	for _, a := range cfg.Alerts {
		if _, err := ab.Add(a.UserID, a.Symbol, a.Target, a.Above); err != nil {
			j.Close()
			return nil, fmt.Errorf("install alert: %w", err)
		}
	}

	start := cfg.Feed.Prices()
	latest := market.NewPriceStore()
	for sym, p := range start {
		latest.Set(sym, p)
	}

	var src market.PriceSource = latest
	switch cfg.Feed.Source {
	case "random":
		src = market.NewRandomWalk(cfg.Feed.Seed, start)
	case "replay":
		r, err := market.OpenReplay(cfg.Feed.ReplayFile)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("open replay: %w", err)
		}
		src = r
	}

	interval, err := cfg.Feed.PollInterval()
	if err != nil {
		j.Close()
		return nil, err
	}

	a := &App{
		Config:      cfg,
		Log:         log,
		Journal:     j,
		Book:        book,
		Engine:      engine,
		Alerts:      ab,
		Performance: performance.NewService(j),
		Source:      src,
		Latest:      latest,
	}
	a.Poller = &poller.Poller{
		Source:   src,
		Engine:   engine,
		Alerts:   ab,
		Symbols:  cfg.Feed.Symbols,
		Interval: interval,
		Log:      log.Named("poller"),
		OnPrice:  latest.Set,
	}
	return a, nil
}

func (a *App) Close() error {
	_ = a.Log.Sync()
	return a.Journal.Close()
}

type closeLogger struct {
	log *zap.Logger
}

func (c closeLogger) OnTradeClosed(cl sim.Closed) {
	c.log.Info("position closed",
		zap.String("order_id", cl.Order.ID),
		zap.String("user_id", cl.Order.UserID),
		zap.String("symbol", cl.Order.Symbol),
		zap.String("reason", string(cl.Reason)),
		zap.String("price", market.FormatPrice(cl.Price)),
		zap.String("realized", market.FormatMoney(cl.Realized)),
	)
}
