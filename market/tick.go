package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrNoPrice = errors.New("price not found")

// Tick is one OHLCV bar for a symbol. Valuation uses Close.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

func (t Tick) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("%w: tick missing symbol", ErrMalformed)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: tick missing timestamp", ErrMalformed)
	}
	if t.Close <= 0 {
		return fmt.Errorf("%w: tick close must be positive, got %v", ErrMalformed, t.Close)
	}
	if t.Volume < 0 {
		return fmt.Errorf("%w: tick volume negative", ErrMalformed)
	}
	return nil
}

// SortTicks orders ticks by timestamp, keeping input order for ties.
func SortTicks(ticks []Tick) {
	sort.SliceStable(ticks, func(i, j int) bool {
		return ticks[i].Timestamp.Before(ticks[j].Timestamp)
	})
}

// PriceStore holds the last known price per symbol.
type PriceStore struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceStore() *PriceStore {
	return &PriceStore{prices: make(map[string]float64)}
}

func (ps *PriceStore) Set(symbol string, price float64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.prices[symbol] = price
}

func (ps *PriceStore) Get(symbol string) (float64, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoPrice, symbol)
	}
	return p, nil
}

// Snapshot returns a copy of all prices.
func (ps *PriceStore) Snapshot() map[string]float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make(map[string]float64, len(ps.prices))
	for k, v := range ps.prices {
		out[k] = v
	}
	return out
}
