package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/papertrader/market"
)

// Broker is the order-facing surface of the position engine. Every call is
// scoped by the user id carried in the request or looked up from the order.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Order, error)
	Execute(ctx context.Context, orderID string, price market.Price) (Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	ClosePosition(ctx context.Context, orderID string, price market.Price) (market.Money, error)
	Positions(ctx context.Context, userID string) ([]Position, error)
	Balance(ctx context.Context, userID string) (market.Money, error)
}

type OrderRequest struct {
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Type       OrderType       `json:"type"`
	Side       Side            `json:"side"`
	Price      market.Price    `json:"price"`
	Quantity   market.Quantity `json:"quantity"`
	StopLoss   market.Price    `json:"stop_loss,omitempty"`
	TakeProfit market.Price    `json:"take_profit,omitempty"`
}

// Validate rejects requests that could never become a well formed order.
func (r OrderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("user id is required: %w", ErrInvalidInput)
	case strings.TrimSpace(r.Symbol) == "":
		return fmt.Errorf("symbol is required: %w", ErrInvalidInput)
	case !r.Type.Valid():
		return fmt.Errorf("order type %q: %w", r.Type, ErrInvalidInput)
	case !r.Side.Valid():
		return fmt.Errorf("side %q: %w", r.Side, ErrInvalidInput)
	case !market.Positive(r.Price):
		return fmt.Errorf("price must be positive: %w", ErrInvalidInput)
	case !market.Positive(r.Quantity):
		return fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
	case !market.Finite(r.StopLoss) || !market.Finite(r.TakeProfit) || r.StopLoss < 0 || r.TakeProfit < 0:
		return fmt.Errorf("stop loss and take profit must not be negative: %w", ErrInvalidInput)
	}
	return nil
}

// Margin is the cash reserved when the request is filled at its price.
func (r OrderRequest) Margin() market.Money {
	return r.Price * r.Quantity
}
