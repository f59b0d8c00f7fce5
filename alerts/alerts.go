// Package alerts implements per-user price alerts. A rule fires once when
// the price reaches its target from the watched direction and is then
// disabled until re-enabled.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/market"
)

type Rule struct {
	ID      string       `json:"id"`
	UserID  string       `json:"user_id"`
	Symbol  string       `json:"symbol"`
	Target  market.Price `json:"target"`
	Above   bool         `json:"above"`
	Enabled bool         `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	FiredAt   time.Time `json:"fired_at,omitempty"`
}

// Crossed reports whether price satisfies the rule.
func (r Rule) Crossed(price market.Price) bool {
	if r.Above {
		return price >= r.Target
	}
	return price <= r.Target
}

// Alert is a fired rule together with the price that fired it.
type Alert struct {
	Rule  Rule
	Price market.Price
	At    time.Time
}

func (a Alert) Message() string {
	dir := "fell to"
	if a.Rule.Above {
		dir = "rose to"
	}
	return fmt.Sprintf("%s %s %s (target %s)", a.Rule.Symbol, dir,
		market.FormatPrice(a.Price), market.FormatPrice(a.Rule.Target))
}

// Notifier delivers fired alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes alerts to a zap logger.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(ctx context.Context, a Alert) error {
	n.Log.Info("price alert",
		zap.String("alert_id", a.Rule.ID),
		zap.String("user_id", a.Rule.UserID),
		zap.String("symbol", a.Rule.Symbol),
		zap.Float64("price", a.Price),
		zap.Float64("target", a.Rule.Target),
		zap.Bool("above", a.Rule.Above),
		zap.String("message", a.Message()),
	)
	return nil
}

type Book struct {
	mu       sync.Mutex
	rules    map[string]Rule
	notifier Notifier
	now      func() time.Time
	log      *zap.Logger
}

func NewBook(n Notifier, log *zap.Logger) *Book {
	if log == nil {
		log = zap.NewNop()
	}
	return &Book{
		rules:    make(map[string]Rule),
		notifier: n,
		now:      time.Now,
		log:      log,
	}
}

// Add registers an enabled rule and returns it with its id set.
func (b *Book) Add(userID, symbol string, target market.Price, above bool) (Rule, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if userID == "" || symbol == "" {
		return Rule{}, fmt.Errorf("user and symbol are required: %w", broker.ErrInvalidInput)
	}
	if !market.Positive(target) {
		return Rule{}, fmt.Errorf("target must be positive: %w", broker.ErrInvalidInput)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now().UTC()
	r := Rule{
		ID:        id.NewAt(now),
		UserID:    userID,
		Symbol:    symbol,
		Target:    target,
		Above:     above,
		Enabled:   true,
		CreatedAt: now,
	}
	b.rules[r.ID] = r
	return r, nil
}

func (b *Book) Remove(ruleID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rules[ruleID]; !ok {
		return fmt.Errorf("alert %q: %w", ruleID, broker.ErrNotFound)
	}
	delete(b.rules, ruleID)
	return nil
}

func (b *Book) SetEnabled(ruleID string, enabled bool) (Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rules[ruleID]
	if !ok {
		return Rule{}, fmt.Errorf("alert %q: %w", ruleID, broker.ErrNotFound)
	}
	r.Enabled = enabled
	b.rules[ruleID] = r
	return r, nil
}

// List returns the user's rules, oldest first.
func (b *Book) List(userID string) []Rule {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Rule
	for _, r := range b.rules {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Symbols returns every symbol watched by an enabled rule.
func (b *Book) Symbols() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range b.rules {
		if r.Enabled && !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// Evaluate fires every enabled rule on symbol crossed by price. Fired rules
// are disabled before the notifier runs, outside the book lock.
func (b *Book) Evaluate(ctx context.Context, symbol string, price market.Price) []Alert {
	b.mu.Lock()
	now := b.now().UTC()
	var fired []Alert
	for rid, r := range b.rules {
		if !r.Enabled || r.Symbol != symbol || !r.Crossed(price) {
			continue
		}
		r.Enabled = false
		r.FiredAt = now
		b.rules[rid] = r
		fired = append(fired, Alert{Rule: r, Price: price, At: now})
	}
	b.mu.Unlock()

	sort.Slice(fired, func(i, j int) bool { return fired[i].Rule.ID < fired[j].Rule.ID })
	if b.notifier != nil {
		for _, a := range fired {
			if err := b.notifier.Notify(ctx, a); err != nil {
				b.log.Warn("alert delivery failed", zap.String("alert_id", a.Rule.ID), zap.Error(err))
			}
		}
	}
	return fired
}
