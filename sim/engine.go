package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/market"
	"github.com/rustyeddy/papertrader/wallet"
)

// TradeClosedListener is notified when UpdatePrice closes a position.
type TradeClosedListener interface {
	OnTradeClosed(c Closed)
}

// Closed describes a position closed by a trigger.
type Closed struct {
	Order    broker.Order
	Reason   Reason
	Price    market.Price
	Realized market.Money
}

// Engine runs the order lifecycle PENDING -> EXECUTED -> CLOSED (or
// PENDING -> CANCELLED) on top of a journal and a balance book.
//
// Mutations for one user are serialized; different users run in parallel.
type Engine struct {
	journal journal.Journal
	book    *wallet.Book
	now     func() time.Time
	log     *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	listenerMu sync.RWMutex
	listener   TradeClosedListener
}

var _ broker.Broker = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(j journal.Journal, book *wallet.Book, opts ...Option) *Engine {
	e := &Engine{
		journal: j,
		book:    book,
		now:     time.Now,
		log:     zap.NewNop(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTradeClosedListener sets the listener for trigger closes. It is called
// after the user lock is released.
func (e *Engine) SetTradeClosedListener(l TradeClosedListener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listener = l
}

func (e *Engine) lockUser(userID string) func() {
	e.locksMu.Lock()
	m, ok := e.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[userID] = m
	}
	e.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// PlaceOrder validates req and checks its margin against the free balance.
// A MARKET order fills immediately at req.Price; a LIMIT order stays PENDING
// until Execute. Nothing is persisted when the margin check fails.
func (e *Engine) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error) {
	if err := req.Validate(); err != nil {
		return broker.Order{}, fmt.Errorf("place order: %w", err)
	}

	unlock := e.lockUser(req.UserID)
	defer unlock()

	bal, err := e.book.Balance(ctx, req.UserID)
	if err != nil {
		return broker.Order{}, fmt.Errorf("place order: %w", err)
	}
	if margin := req.Margin(); margin > bal {
		return broker.Order{}, fmt.Errorf("place order: margin %s exceeds balance %s: %w",
			market.FormatMoney(margin), market.FormatMoney(bal), broker.ErrInsufficientFunds)
	}

	now := e.clock()
	o := broker.Order{
		ID:         id.NewAt(now),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Type:       req.Type,
		Side:       req.Side,
		Price:      req.Price,
		Quantity:   req.Quantity,
		Status:     broker.Pending,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if req.Type == broker.Market {
		// Debit before anything is written so a rejected fill leaves no trace.
		if err := e.book.Debit(ctx, o.UserID, o.Margin()); err != nil {
			return broker.Order{}, fmt.Errorf("place order: %w", err)
		}
		if err := e.journal.CreateOrder(ctx, o); err != nil {
			e.refund(ctx, o.UserID, o.Margin())
			return broker.Order{}, fmt.Errorf("place order: %w", err)
		}
		filled, err := e.commitFillLocked(ctx, o, o.Price, now)
		if err != nil {
			e.refund(ctx, o.UserID, o.Margin())
			o.Status = broker.Cancelled
			if uerr := e.journal.UpdateOrder(ctx, o); uerr != nil {
				e.log.Error("cancel unfilled market order", zap.String("order_id", o.ID), zap.Error(uerr))
			}
			return broker.Order{}, fmt.Errorf("place order: %w", err)
		}
		return filled, nil
	}

	if err := e.journal.CreateOrder(ctx, o); err != nil {
		return broker.Order{}, fmt.Errorf("place order: %w", err)
	}
	e.log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Float64("price", o.Price),
		zap.Float64("quantity", o.Quantity),
	)
	return o, nil
}

// Execute fills a PENDING order at price, debiting price*quantity.
func (e *Engine) Execute(ctx context.Context, orderID string, price market.Price) (broker.Order, error) {
	if !market.Positive(price) {
		return broker.Order{}, fmt.Errorf("execute %s: price must be positive: %w", orderID, broker.ErrInvalidInput)
	}
	o, unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return broker.Order{}, fmt.Errorf("execute: %w", err)
	}
	defer unlock()

	if !o.Status.CanTransition(broker.Executed) {
		return o, fmt.Errorf("execute %s: order is %s: %w", orderID, o.Status, broker.ErrInvalidState)
	}

	margin := price * o.Quantity
	if err := e.book.Debit(ctx, o.UserID, margin); err != nil {
		return o, fmt.Errorf("execute %s: %w", orderID, err)
	}
	filled, err := e.commitFillLocked(ctx, o, price, e.clock())
	if err != nil {
		e.refund(ctx, o.UserID, margin)
		return o, fmt.Errorf("execute %s: %w", orderID, err)
	}
	return filled, nil
}

// commitFillLocked marks o EXECUTED at price and appends the opening trade.
// The caller has already debited the margin.
func (e *Engine) commitFillLocked(ctx context.Context, o broker.Order, price market.Price, at time.Time) (broker.Order, error) {
	o.Status = broker.Executed
	o.Price = price
	o.UpdatedAt = at

	t := broker.Trade{
		ID:         id.NewAt(at),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Symbol:     o.Symbol,
		Side:       broker.TradeSide(o.Side),
		Price:      price,
		Quantity:   o.Quantity,
		ExecutedAt: at,
	}
	if _, err := e.journal.CommitTrade(ctx, o, t); err != nil {
		return broker.Order{}, err
	}

	e.log.Info("order executed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Float64("price", price),
		zap.Float64("quantity", o.Quantity),
		zap.Float64("margin", o.Margin()),
	)
	return o, nil
}

// CancelOrder cancels a PENDING order. The balance is untouched.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	o, unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}
	defer unlock()

	if !o.Status.CanTransition(broker.Cancelled) {
		return false, fmt.Errorf("cancel %s: order is %s: %w", orderID, o.Status, broker.ErrInvalidState)
	}
	o.Status = broker.Cancelled
	o.UpdatedAt = e.clock()
	if err := e.journal.UpdateOrder(ctx, o); err != nil {
		return false, fmt.Errorf("cancel %s: %w", orderID, err)
	}
	e.log.Info("order cancelled", zap.String("order_id", o.ID), zap.String("user_id", o.UserID))
	return true, nil
}

// ClosePosition closes an EXECUTED order at price, credits margin plus
// profit and returns the realized profit or loss.
func (e *Engine) ClosePosition(ctx context.Context, orderID string, price market.Price) (market.Money, error) {
	if !market.Positive(price) {
		return 0, fmt.Errorf("close %s: price must be positive: %w", orderID, broker.ErrInvalidInput)
	}
	o, unlock, err := e.lockOrder(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("close: %w", err)
	}
	defer unlock()

	_, s, err := e.closeLocked(ctx, o, price, Manual)
	if err != nil {
		return 0, fmt.Errorf("close %s: %w", orderID, err)
	}
	return s.Realized, nil
}

func (e *Engine) closeLocked(ctx context.Context, o broker.Order, price market.Price, reason Reason) (broker.Order, Settlement, error) {
	if !o.Status.CanTransition(broker.Closed) {
		return o, Settlement{}, fmt.Errorf("order is %s: %w", o.Status, broker.ErrInvalidState)
	}

	s := Settle(o, price)
	if err := e.book.Credit(ctx, o.UserID, s.Credit); err != nil {
		return o, Settlement{}, err
	}

	now := e.clock()
	o.Status = broker.Closed
	o.UpdatedAt = now
	t := broker.Trade{
		ID:         id.NewAt(now),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Symbol:     o.Symbol,
		Side:       o.CloseSide(),
		Price:      price,
		Quantity:   o.Quantity,
		ExecutedAt: now,
	}
	if _, err := e.journal.CommitTrade(ctx, o, t); err != nil {
		if derr := e.book.Debit(ctx, o.UserID, s.Credit); derr != nil {
			e.log.Error("reverse close credit", zap.String("order_id", o.ID), zap.Error(derr))
		}
		return o, Settlement{}, err
	}

	e.log.Info("position closed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("symbol", o.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("price", price),
		zap.Float64("realized", s.Realized),
	)
	return o, s, nil
}

// UpdatePrice closes every position on symbol whose stop-loss or
// take-profit is crossed by price. Positions closed concurrently by someone
// else are skipped. Failures are collected and do not stop the scan.
func (e *Engine) UpdatePrice(ctx context.Context, symbol string, price market.Price) ([]Closed, error) {
	if !market.Positive(price) {
		return nil, fmt.Errorf("update price %s: price must be positive: %w", symbol, broker.ErrInvalidInput)
	}
	open, err := e.journal.ListOrders(ctx, journal.OrderFilter{
		Symbol:   symbol,
		Statuses: []broker.Status{broker.Executed},
	})
	if err != nil {
		return nil, fmt.Errorf("update price %s: %w", symbol, err)
	}

	var (
		closed []Closed
		errs   []error
	)
	for _, trig := range Evaluate(open, symbol, price) {
		c, ok, err := e.fireTrigger(ctx, trig)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", trig.Reason, trig.OrderID, err))
			continue
		}
		if ok {
			closed = append(closed, c)
		}
	}

	e.listenerMu.RLock()
	listener := e.listener
	e.listenerMu.RUnlock()
	if listener != nil {
		for _, c := range closed {
			listener.OnTradeClosed(c)
		}
	}
	return closed, errors.Join(errs...)
}

func (e *Engine) fireTrigger(ctx context.Context, trig Trigger) (Closed, bool, error) {
	unlock := e.lockUser(trig.UserID)
	defer unlock()

	o, err := e.journal.Order(ctx, trig.OrderID)
	if err != nil {
		return Closed{}, false, err
	}
	if o.Status != broker.Executed {
		return Closed{}, false, nil
	}
	o, s, err := e.closeLocked(ctx, o, trig.Price, trig.Reason)
	if err != nil {
		return Closed{}, false, err
	}
	return Closed{Order: o, Reason: trig.Reason, Price: trig.Price, Realized: s.Realized}, true, nil
}

// lockOrder takes the lock of the order's owner and returns the order as
// read under that lock.
func (e *Engine) lockOrder(ctx context.Context, orderID string) (broker.Order, func(), error) {
	o, err := e.journal.Order(ctx, orderID)
	if err != nil {
		return broker.Order{}, nil, err
	}
	unlock := e.lockUser(o.UserID)
	o, err = e.journal.Order(ctx, orderID)
	if err != nil {
		unlock()
		return broker.Order{}, nil, err
	}
	return o, unlock, nil
}

func (e *Engine) refund(ctx context.Context, userID string, amount market.Money) {
	if err := e.book.Credit(ctx, userID, amount); err != nil {
		e.log.Error("refund margin", zap.String("user_id", userID), zap.Float64("amount", amount), zap.Error(err))
	}
}

func (e *Engine) Balance(ctx context.Context, userID string) (market.Money, error) {
	return e.book.Balance(ctx, userID)
}

func (e *Engine) Deposit(ctx context.Context, userID string, amount market.Money) (market.Money, error) {
	return e.book.Deposit(ctx, userID, amount)
}

func (e *Engine) Order(ctx context.Context, orderID string) (broker.Order, error) {
	return e.journal.Order(ctx, orderID)
}

// Orders lists a user's orders, optionally limited to some statuses.
func (e *Engine) Orders(ctx context.Context, userID string, statuses ...broker.Status) ([]broker.Order, error) {
	return e.journal.ListOrders(ctx, journal.OrderFilter{UserID: userID, Statuses: statuses})
}

func (e *Engine) Trades(ctx context.Context, userID string) ([]broker.Trade, error) {
	return e.journal.TradesByUser(ctx, userID)
}

func (e *Engine) Positions(ctx context.Context, userID string) ([]broker.Position, error) {
	orders, err := e.Orders(ctx, userID, broker.Executed)
	if err != nil {
		return nil, err
	}
	return Aggregate(orders), nil
}

// Valuation marks the user's open positions to prices from src.
func (e *Engine) Valuation(ctx context.Context, userID string, src market.PriceSource) (Valuation, error) {
	positions, err := e.Positions(ctx, userID)
	if err != nil {
		return Valuation{}, err
	}
	cash, err := e.book.Balance(ctx, userID)
	if err != nil {
		return Valuation{}, err
	}
	return Value(ctx, cash, positions, src)
}
