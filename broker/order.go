package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool { return t == Market || t == Limit }

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Direction of the position opened by an order on this side.
func (s Side) Direction() Direction {
	if s == Sell {
		return Short
	}
	return Long
}

type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

type Status string

const (
	Pending   Status = "PENDING"
	Executed  Status = "EXECUTED"
	Cancelled Status = "CANCELLED"
	Closed    Status = "CLOSED"
)

var transitions = map[Status][]Status{
	Pending:  {Executed, Cancelled},
	Executed: {Closed},
}

// CanTransition reports whether an order may move from s to next.
// CANCELLED and CLOSED are terminal.
func (s Status) CanTransition(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case Pending, Executed, Cancelled, Closed:
		return true
	}
	return false
}

type Order struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Type       OrderType       `json:"type"`
	Side       Side            `json:"side"`
	Price      market.Price    `json:"price"`
	Quantity   market.Quantity `json:"quantity"`
	Status     Status          `json:"status"`
	StopLoss   market.Price    `json:"stop_loss,omitempty"`
	TakeProfit market.Price    `json:"take_profit,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Margin is the cash held against the order while it is open.
func (o Order) Margin() market.Money {
	return o.Price * o.Quantity
}

// PL is the profit or loss of the position if it were closed at current.
func (o Order) PL(current market.Price) market.Money {
	if o.Side == Sell {
		return (o.Price - current) * o.Quantity
	}
	return (current - o.Price) * o.Quantity
}

// CloseSide is the trade side recorded when this order's position is closed.
func (o Order) CloseSide() TradeSide {
	if o.Side == Sell {
		return CloseShort
	}
	return CloseLong
}

type TradeSide string

const (
	TradeBuy   TradeSide = "BUY"
	TradeSell  TradeSide = "SELL"
	CloseLong  TradeSide = "CLOSE_LONG"
	CloseShort TradeSide = "CLOSE_SHORT"
)

// Trade is an immutable fill record. Seq is assigned by the journal on append
// and breaks ties between trades that share an ExecutedAt.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       TradeSide       `json:"side"`
	Price      market.Price    `json:"price"`
	Quantity   market.Quantity `json:"quantity"`
	ExecutedAt time.Time       `json:"executed_at"`
	Seq        int64           `json:"seq"`
}

// Position aggregates the executed orders of one user on one symbol and direction.
type Position struct {
	Symbol    string          `json:"symbol"`
	Direction Direction       `json:"direction"`
	Quantity  market.Quantity `json:"quantity"`
	AvgPrice  market.Price    `json:"avg_price"`
	Margin    market.Money    `json:"margin"`
	OrderIDs  []string        `json:"order_ids"`
}

// PL is the unrealized profit or loss of the position at current.
func (p Position) PL(current market.Price) market.Money {
	if p.Direction == Short {
		return (p.AvgPrice - current) * p.Quantity
	}
	return (current - p.AvgPrice) * p.Quantity
}

func ParseSide(s string) (Side, error) {
	v := Side(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("side %q: %w", s, ErrInvalidInput)
	}
	return v, nil
}

func ParseOrderType(s string) (OrderType, error) {
	v := OrderType(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("order type %q: %w", s, ErrInvalidInput)
	}
	return v, nil
}

func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("status %q: %w", s, ErrInvalidInput)
	}
	return v, nil
}
