package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

const orderColumns = `id, user_id, symbol, type, side, price, quantity, status, stop_loss, take_profit, created_at, updated_at`

const tradeColumns = `seq, id, order_id, user_id, symbol, side, price, quantity, executed_at`

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	// One connection serializes writers and lets ":memory:" databases work.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) CreateOrder(ctx context.Context, o broker.Order) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.Symbol, string(o.Type), string(o.Side), o.Price, o.Quantity,
		string(o.Status), o.StopLoss, o.TakeProfit, nanos(o.CreatedAt), nanos(o.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("order %q already exists: %w", o.ID, broker.ErrInvalidInput)
		}
		return unavailable("insert order", err)
	}
	return nil
}

func (j *SQLite) UpdateOrder(ctx context.Context, o broker.Order) error {
	return updateOrder(ctx, j.db, o)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateOrder(ctx context.Context, db execer, o broker.Order) error {
	res, err := db.ExecContext(ctx, `UPDATE orders SET
		symbol = ?, type = ?, side = ?, price = ?, quantity = ?, status = ?,
		stop_loss = ?, take_profit = ?, updated_at = ?
		WHERE id = ?`,
		o.Symbol, string(o.Type), string(o.Side), o.Price, o.Quantity, string(o.Status),
		o.StopLoss, o.TakeProfit, nanos(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return unavailable("update order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update order", err)
	}
	if n == 0 {
		return orderNotFound(o.ID)
	}
	return nil
}

func (j *SQLite) Order(ctx context.Context, id string) (broker.Order, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return broker.Order{}, orderNotFound(id)
		}
		return broker.Order{}, unavailable("get order", err)
	}
	return o, nil
}

func (j *SQLite) ListOrders(ctx context.Context, f OrderFilter) ([]broker.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	defer rows.Close()

	var out []broker.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, unavailable("scan order", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list orders", err)
	}
	return out, nil
}

func (j *SQLite) CreateTrade(ctx context.Context, t broker.Trade) (broker.Trade, error) {
	return insertTrade(ctx, j.db, t)
}

func (j *SQLite) CommitTrade(ctx context.Context, o broker.Order, t broker.Trade) (broker.Trade, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return broker.Trade{}, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateOrder(ctx, tx, o); err != nil {
		return broker.Trade{}, err
	}
	t, err = insertTrade(ctx, tx, t)
	if err != nil {
		return broker.Trade{}, err
	}
	if err := tx.Commit(); err != nil {
		return broker.Trade{}, unavailable("commit", err)
	}
	return t, nil
}

func insertTrade(ctx context.Context, db execer, t broker.Trade) (broker.Trade, error) {
	res, err := db.ExecContext(ctx, `INSERT INTO trades
		(id, order_id, user_id, symbol, side, price, quantity, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.OrderID, t.UserID, t.Symbol, string(t.Side), t.Price, t.Quantity, nanos(t.ExecutedAt),
	)
	if err != nil {
		return broker.Trade{}, unavailable("insert trade", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return broker.Trade{}, unavailable("insert trade", err)
	}
	t.Seq = seq
	return t, nil
}

func (j *SQLite) TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error) {
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE user_id = ? ORDER BY seq ASC`, userID)
}

func (j *SQLite) TradesBetween(ctx context.Context, userID string, start, end time.Time) ([]broker.Trade, error) {
	if userID == "" {
		return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
			WHERE executed_at >= ? AND executed_at < ? ORDER BY seq ASC`, nanos(start), nanos(end))
	}
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE user_id = ? AND executed_at >= ? AND executed_at < ? ORDER BY seq ASC`,
		userID, nanos(start), nanos(end))
}

func (j *SQLite) queryTrades(ctx context.Context, q string, args ...any) ([]broker.Trade, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("query trades", err)
	}
	defer rows.Close()

	var out []broker.Trade
	for rows.Next() {
		var (
			t          broker.Trade
			side       string
			executedAt int64
		)
		if err := rows.Scan(&t.Seq, &t.ID, &t.OrderID, &t.UserID, &t.Symbol, &side,
			&t.Price, &t.Quantity, &executedAt); err != nil {
			return nil, unavailable("scan trade", err)
		}
		t.Side = broker.TradeSide(side)
		t.ExecutedAt = fromNanos(executedAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query trades", err)
	}
	return out, nil
}

func (j *SQLite) LoadBalance(ctx context.Context, userID string) (market.Money, bool, error) {
	var b market.Money
	err := j.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("load balance", err)
	}
	return b, true, nil
}

func (j *SQLite) SaveBalance(ctx context.Context, userID string, balance market.Money) error {
	_, err := j.db.ExecContext(ctx, `INSERT INTO balances (user_id, balance) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance`, userID, balance)
	if err != nil {
		return unavailable("save balance", err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (broker.Order, error) {
	var (
		o                    broker.Order
		typ, side, status    string
		createdAt, updatedAt int64
	)
	err := r.Scan(&o.ID, &o.UserID, &o.Symbol, &typ, &side, &o.Price, &o.Quantity,
		&status, &o.StopLoss, &o.TakeProfit, &createdAt, &updatedAt)
	if err != nil {
		return broker.Order{}, err
	}
	o.Type = broker.OrderType(typ)
	o.Side = broker.Side(side)
	o.Status = broker.Status(status)
	o.CreatedAt = fromNanos(createdAt)
	o.UpdatedAt = fromNanos(updatedAt)
	return o, nil
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
