// Package wallet holds each user's free cash balance.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Store persists balances. Every journal implements it.
type Store interface {
	LoadBalance(ctx context.Context, userID string) (market.Money, bool, error)
	SaveBalance(ctx context.Context, userID string, balance market.Money) error
}

// Book is the balance ledger. A user's balance never goes negative: Debit
// either removes the whole amount or nothing.
type Book struct {
	mu       sync.Mutex
	balances map[string]market.Money
	store    Store
	starting market.Money
	log      *zap.Logger
}

type Option func(*Book)

func WithLogger(l *zap.Logger) Option {
	return func(b *Book) { b.log = l }
}

// WithStore makes every change write through to s.
func WithStore(s Store) Option {
	return func(b *Book) { b.store = s }
}

// NewBook creates a ledger where unknown users start with starting cash.
func NewBook(starting market.Money, opts ...Option) *Book {
	b := &Book{
		balances: make(map[string]market.Money),
		starting: starting,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Book) Balance(ctx context.Context, userID string) (market.Money, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadLocked(ctx, userID)
}

// Debit removes amount from the user's balance. It fails with
// ErrInsufficientFunds when amount exceeds the balance.
func (b *Book) Debit(ctx context.Context, userID string, amount market.Money) error {
	if !market.Finite(amount) || amount < 0 {
		return fmt.Errorf("debit %v: %w", amount, broker.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, err := b.loadLocked(ctx, userID)
	if err != nil {
		return err
	}
	if amount > bal {
		return fmt.Errorf("debit %s from %s: %w",
			market.FormatMoney(amount), market.FormatMoney(bal), broker.ErrInsufficientFunds)
	}
	if err := b.setLocked(ctx, userID, bal, bal-amount); err != nil {
		return err
	}
	b.log.Debug("debit", zap.String("user_id", userID), zap.Float64("amount", amount), zap.Float64("balance", bal-amount))
	return nil
}

// Credit adds amount to the user's balance.
func (b *Book) Credit(ctx context.Context, userID string, amount market.Money) error {
	if !market.Finite(amount) || amount < 0 {
		return fmt.Errorf("credit %v: %w", amount, broker.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	bal, err := b.loadLocked(ctx, userID)
	if err != nil {
		return err
	}
	if err := b.setLocked(ctx, userID, bal, bal+amount); err != nil {
		return err
	}
	b.log.Debug("credit", zap.String("user_id", userID), zap.Float64("amount", amount), zap.Float64("balance", bal+amount))
	return nil
}

// Deposit funds an account. Unlike Credit the amount must be positive.
func (b *Book) Deposit(ctx context.Context, userID string, amount market.Money) (market.Money, error) {
	if !market.Positive(amount) {
		return 0, fmt.Errorf("deposit must be positive: %w", broker.ErrInvalidInput)
	}
	if err := b.Credit(ctx, userID, amount); err != nil {
		return 0, err
	}
	b.log.Info("deposit", zap.String("user_id", userID), zap.Float64("amount", amount))
	return b.Balance(ctx, userID)
}

func (b *Book) loadLocked(ctx context.Context, userID string) (market.Money, error) {
	if bal, ok := b.balances[userID]; ok {
		return bal, nil
	}
	bal := b.starting
	if b.store != nil {
		stored, ok, err := b.store.LoadBalance(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("load balance for %s: %w", userID, err)
		}
		if ok {
			bal = stored
		}
	}
	b.balances[userID] = bal
	return bal, nil
}

// setLocked persists next and then publishes it. On a store failure the
// in-memory balance stays at prev.
func (b *Book) setLocked(ctx context.Context, userID string, prev, next market.Money) error {
	if b.store != nil {
		if err := b.store.SaveBalance(ctx, userID, next); err != nil {
			b.balances[userID] = prev
			return fmt.Errorf("save balance for %s: %w", userID, err)
		}
	}
	b.balances[userID] = next
	return nil
}
