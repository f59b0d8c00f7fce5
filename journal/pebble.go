package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rustyeddy/papertrader/broker"
	"github.com/rustyeddy/papertrader/market"
)

// Key layout:
//
//	ord:{orderID}              order JSON
//	trade:{userID}:{seq:020d}  trade JSON
//	bal:{userID}               balance JSON
//	meta:seq                   last trade seq (8 bytes, big endian)
const (
	prefixOrder   = "ord:"
	prefixTrade   = "trade:"
	prefixBalance = "bal:"
	keySeq        = "meta:seq"
)

func orderKey(id string) []byte { return []byte(prefixOrder + id) }

func tradeKey(userID string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, userID, seq))
}

func tradeUserPrefix(userID string) []byte {
	return []byte(prefixTrade + userID + ":")
}

func balanceKey(userID string) []byte { return []byte(prefixBalance + userID) }

func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Pebble is a Journal backed by an embedded Pebble key-value store.
type Pebble struct {
	db *pebble.DB

	// mu serializes writers so seq and read-modify-write checks stay consistent.
	mu  sync.Mutex
	seq int64
}

func NewPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        pebble.NewCache(32 << 20),
		MemTableSize: 16 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}

	p := &Pebble{db: db}
	val, closer, err := db.Get([]byte(keySeq))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("read trade seq: %w", err)
	default:
		if len(val) == 8 {
			p.seq = int64(binary.BigEndian.Uint64(val))
		}
		closer.Close()
	}
	return p, nil
}

func (p *Pebble) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (p *Pebble) CreateOrder(ctx context.Context, o broker.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var existing broker.Order
	ok, err := p.getJSON(orderKey(o.ID), &existing)
	if err != nil {
		return unavailable("get order", err)
	}
	if ok {
		return fmt.Errorf("order %q already exists: %w", o.ID, broker.ErrInvalidInput)
	}
	return p.setOrder(nil, o)
}

func (p *Pebble) setOrder(b *pebble.Batch, o broker.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if b != nil {
		return b.Set(orderKey(o.ID), data, nil)
	}
	if err := p.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return unavailable("save order", err)
	}
	return nil
}

func (p *Pebble) UpdateOrder(ctx context.Context, o broker.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOrderLocked(o.ID); err != nil {
		return err
	}
	return p.setOrder(nil, o)
}

func (p *Pebble) requireOrderLocked(id string) error {
	_, closer, err := p.db.Get(orderKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return orderNotFound(id)
	}
	if err != nil {
		return unavailable("get order", err)
	}
	return closer.Close()
}

func (p *Pebble) Order(ctx context.Context, id string) (broker.Order, error) {
	var o broker.Order
	ok, err := p.getJSON(orderKey(id), &o)
	if err != nil {
		return broker.Order{}, unavailable("get order", err)
	}
	if !ok {
		return broker.Order{}, orderNotFound(id)
	}
	return o, nil
}

func (p *Pebble) ListOrders(ctx context.Context, f OrderFilter) ([]broker.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, unavailable("list orders", err)
	}
	defer iter.Close()

	var out []broker.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o broker.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", iter.Key(), err)
		}
		if f.Match(o) {
			out = append(out, o)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable("list orders", err)
	}
	sortOrders(out)
	return out, nil
}

func (p *Pebble) CreateTrade(ctx context.Context, t broker.Trade) (broker.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.db.NewBatch()
	defer b.Close()
	t, err := p.appendTradeLocked(b, t)
	if err != nil {
		return broker.Trade{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		p.seq--
		return broker.Trade{}, unavailable("commit trade", err)
	}
	return t, nil
}

func (p *Pebble) CommitTrade(ctx context.Context, o broker.Order, t broker.Trade) (broker.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.requireOrderLocked(o.ID); err != nil {
		return broker.Trade{}, err
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := p.setOrder(b, o); err != nil {
		return broker.Trade{}, err
	}
	t, err := p.appendTradeLocked(b, t)
	if err != nil {
		return broker.Trade{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		p.seq--
		return broker.Trade{}, unavailable("commit trade", err)
	}
	return t, nil
}

// appendTradeLocked stages t and the advanced seq counter into b.
func (p *Pebble) appendTradeLocked(b *pebble.Batch, t broker.Trade) (broker.Trade, error) {
	t.Seq = p.seq + 1
	data, err := json.Marshal(t)
	if err != nil {
		return broker.Trade{}, fmt.Errorf("marshal trade: %w", err)
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(t.Seq))

	if err := b.Set(tradeKey(t.UserID, t.Seq), data, nil); err != nil {
		return broker.Trade{}, unavailable("stage trade", err)
	}
	if err := b.Set([]byte(keySeq), seqBuf[:], nil); err != nil {
		return broker.Trade{}, unavailable("stage seq", err)
	}
	p.seq = t.Seq
	return t, nil
}

func (p *Pebble) scanTrades(prefix []byte, keep func(broker.Trade) bool) ([]broker.Trade, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, unavailable("scan trades", err)
	}
	defer iter.Close()

	var out []broker.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		var t broker.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal trade %s: %w", iter.Key(), err)
		}
		if keep(t) {
			out = append(out, t)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, unavailable("scan trades", err)
	}
	sortTrades(out)
	return out, nil
}

func (p *Pebble) TradesByUser(ctx context.Context, userID string) ([]broker.Trade, error) {
	return p.scanTrades(tradeUserPrefix(userID), func(t broker.Trade) bool {
		return t.UserID == userID
	})
}

func (p *Pebble) TradesBetween(ctx context.Context, userID string, start, end time.Time) ([]broker.Trade, error) {
	prefix := []byte(prefixTrade)
	if userID != "" {
		prefix = tradeUserPrefix(userID)
	}
	return p.scanTrades(prefix, func(t broker.Trade) bool {
		if userID != "" && t.UserID != userID {
			return false
		}
		return !t.ExecutedAt.Before(start) && t.ExecutedAt.Before(end)
	})
}

func (p *Pebble) LoadBalance(ctx context.Context, userID string) (market.Money, bool, error) {
	var b market.Money
	ok, err := p.getJSON(balanceKey(userID), &b)
	if err != nil {
		return 0, false, unavailable("load balance", err)
	}
	return b, ok, nil
}

func (p *Pebble) SaveBalance(ctx context.Context, userID string, balance market.Money) error {
	data, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("marshal balance: %w", err)
	}
	if err := p.db.Set(balanceKey(userID), data, pebble.Sync); err != nil {
		return unavailable("save balance", err)
	}
	return nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}
