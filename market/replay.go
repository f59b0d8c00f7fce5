package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Tick struct {
	Time   time.Time
	Symbol string
	Price  Price
}

// Replay plays recorded ticks back in time order. Each CurrentPrice call
// advances the symbol by one tick; once a symbol runs out its last price
// is repeated.
type Replay struct {
	mu    sync.Mutex
	ticks map[string][]Tick
	next  map[string]int
}

func NewReplay(ticks []Tick) *Replay {
	r := &Replay{ticks: make(map[string][]Tick), next: make(map[string]int)}
	for _, t := range ticks {
		r.ticks[t.Symbol] = append(r.ticks[t.Symbol], t)
	}
	for _, ts := range r.ticks {
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].Time.Before(ts[j].Time) })
	}
	return r
}

// OpenReplay loads a replay from a CSV file. See ReadTicksCSV.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ticks, err := ReadTicksCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewReplay(ticks), nil
}

// ReadTicksCSV parses rows of either
//
//	time,symbol,price
//	time,symbol,bid,ask
//
// A header row is allowed. Bid/ask rows use the mid price.
func ReadTicksCSV(r io.Reader) ([]Tick, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var out []Tick
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}
		if len(row) < 3 || len(row) > 4 {
			return nil, fmt.Errorf("expected 3 or 4 columns, got %d: %v", len(row), row)
		}

		ts := strings.TrimSpace(row[0])
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("bad time %q: %w", ts, err)
		}
		sym := strings.ToUpper(strings.TrimSpace(row[1]))
		if sym == "" {
			continue
		}

		p, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("bad price %q: %w", row[2], err)
		}
		if len(row) == 4 {
			ask, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
			if err != nil {
				return nil, fmt.Errorf("bad ask %q: %w", row[3], err)
			}
			p = (p + ask) / 2
		}
		if !Positive(p) {
			return nil, fmt.Errorf("price must be positive: %v", row)
		}
		out = append(out, Tick{Time: t, Symbol: sym, Price: p})
	}
}

func (r *Replay) CurrentPrice(ctx context.Context, symbol string) (Price, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.ticks[symbol]
	if len(ts) == 0 {
		return 0, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	i := r.next[symbol]
	if i >= len(ts) {
		return ts[len(ts)-1].Price, nil
	}
	r.next[symbol] = i + 1
	return ts[i].Price, nil
}

// Remaining is the number of ticks not yet played for symbol.
func (r *Replay) Remaining(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.ticks[symbol]) - r.next[symbol]
	if n < 0 {
		return 0
	}
	return n
}
