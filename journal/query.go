package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/papertrader/broker"
)

// DayBounds returns [start, end) of the calendar day "YYYY-MM-DD" in loc.
func DayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

// TradesOnDay lists trades executed on the given calendar day.
func TradesOnDay(ctx context.Context, j Journal, userID string, loc *time.Location, day string) ([]broker.Trade, error) {
	start, end, err := DayBounds(loc, day)
	if err != nil {
		return nil, err
	}
	return j.TradesBetween(ctx, userID, start, end)
}

// OpenOrders lists the user's EXECUTED orders, optionally narrowed to a symbol.
func OpenOrders(ctx context.Context, j Journal, userID, symbol string) ([]broker.Order, error) {
	return j.ListOrders(ctx, OrderFilter{
		UserID:   userID,
		Symbol:   symbol,
		Statuses: []broker.Status{broker.Executed},
	})
}
