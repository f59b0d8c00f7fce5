package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Postgres is a Journal backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and applies PostgresSchema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *Postgres) CreateOrder(ctx context.Context, o broker.Order) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.UserID, o.Symbol, string(o.Type), string(o.Side), o.Price, o.Quantity,
		string(o.Status), o.StopLoss, o.TakeProfit, nanos(o.CreatedAt), nanos(o.UpdatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("order %q already exists: %w", o.ID, broker.ErrInvalidInput)
		}
		return unavailable("insert order", err)
	}
	return nil
}

func (p *Postgres) UpdateOrder(ctx context.Context, o broker.Order) error {
	return pgUpdateOrder(ctx, p.pool, o)
}

func pgUpdateOrder(ctx context.Context, db pgExecer, o broker.Order) error {
	tag, err := db.Exec(ctx, `UPDATE orders SET
		symbol = $1, type = $2, side = $3, price = $4, quantity = $5, status = $6,
		stop_loss = $7, take_profit = $8, updated_at = $9
		WHERE id = $10`,
		o.Symbol, string(o.Type), string(o.Side), o.Price, o.Quantity, string(o.Status),
		o.StopLoss, o.TakeProfit, nanos(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return unavailable("update order", err)
	}
	if tag.RowsAffected() == 0 {
		return orderNotFound(o.ID)
	}
	return nil
}

func (p *Postgres) Order(ctx context.Context, id string) (broker.Order, error) {
	o, err := pgScanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return broker.Order{}, orderNotFound(id)
		}
		return broker.Order{}, unavailable("get order", err)
	}
	return o, nil
}

func (p *Postgres) ListOrders(ctx context.Context, f OrderFilter) ([]broker.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	defer rows.Close()

	var out []broker.Order
	for rows.Next() {
		o, err := pgScanOrder(rows)
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

func (p *Postgres) CreateTrade(ctx context.Context, t broker.Trade) (broker.Trade, error) {
	return pgInsertTrade(ctx, p.pool, t)
}

func (p *Postgres) CommitTrade(ctx context.Context, o broker.Order, t broker.Trade) (broker.Trade, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return broker.Trade{}, unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := pgUpdateOrder(ctx, tx, o); err != nil {
		return broker.Trade{}, err
	}
	t, err = pgInsertTrade(ctx, tx, t)
	if err != nil {
		return broker.Trade{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return broker.Trade{}, unavailable("commit", err)
	}
	return t, nil
}

func pgInsertTrade(ctx context.Context, db pgExecer, t broker.Trade) (broker.Trade, error) {
	err := db.QueryRow(ctx, `INSERT INTO trades
		(id, order_id, user_id, symbol, side, price, quantity, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`,
		t.ID, t.OrderID, t.UserID, t.Symbol, string(t.Side), t.Price, t.Quantity, nanos(t.ExecutedAt),
	).Scan(&t.Seq)
	if err != nil {
		return broker.Trade{}, unavailable("insert trade", err)
	}
	return t, nil
}

func (p *Postgres) TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error) {
	return p.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE user_id = $1 ORDER BY seq ASC`, userID)
}

func (p *Postgres) TradesBetween(ctx context.Context, userID string, start, end time.Time) ([]broker.Trade, error) {
	if userID == "" {
		return p.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
			WHERE executed_at >= $1 AND executed_at < $2 ORDER BY seq ASC`, nanos(start), nanos(end))
	}
	return p.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE user_id = $1 AND executed_at >= $2 AND executed_at < $3 ORDER BY seq ASC`,
		userID, nanos(start), nanos(end))
}

func (p *Postgres) queryTrades(ctx context.Context, q string, args ...any) ([]broker.Trade, error) {
	rows, err := p.pool.Query(ctx, q, args...)
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

func (p *Postgres) LoadBalance(ctx context.Context, userID string) (market.Money, bool, error) {
	var b market.Money
	err := p.pool.QueryRow(ctx, `SELECT balance FROM balances WHERE user_id = $1`, userID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("load balance", err)
	}
	return b, true, nil
}

func (p *Postgres) SaveBalance(ctx context.Context, userID string, balance market.Money) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO balances (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = EXCLUDED.balance`, userID, balance)
	if err != nil {
		return unavailable("save balance", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func pgScanOrder(r pgx.Row) (broker.Order, error) {
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
