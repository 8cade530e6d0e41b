package backtest

import (
	"sort"

	"github.com/rustyeddy/execsim/market"
)

// tickIndex holds, per symbol, the positions of that symbol's ticks in
// the merged series.
type tickIndex map[string][]int

func indexTicks(ticks []market.Tick) tickIndex {
	ix := make(tickIndex)
	for i, t := range ticks {
		ix[t.Symbol] = append(ix[t.Symbol], i)
	}
	return ix
}

// firstAtOrAfter returns the position of the first tick for sig's symbol
// stamped at or after sig.
func (ix tickIndex) firstAtOrAfter(ticks []market.Tick, sig market.Signal) (int, bool) {
	pos := ix[sig.Symbol]
	j := sort.Search(len(pos), func(k int) bool {
		return !ticks[pos[k]].Timestamp.Before(sig.Timestamp)
	})
	if j == len(pos) {
		return 0, false
	}
	return pos[j], true
}

// Align pairs each signal with the close of the first tick of its symbol
// at or after it. Signals without a reference price take that close.
// Signals with no such tick are dropped. With no ticks the signals' own prices are the marks.
// Both inputs must be sorted by timestamp.
func Align(signals []market.Signal, ticks []market.Tick) ([]market.Signal, []float64) {
	out := make([]market.Signal, 0, len(signals))
	prices := make([]float64, 0, len(signals))

	if len(ticks) == 0 {
		for _, s := range signals {
			if s.Price > 0 {
				out = append(out, s)
				prices = append(prices, s.Price)
			}
		}
		return out, prices
	}

	ix := indexTicks(ticks)
	for _, s := range signals {
		i, ok := ix.firstAtOrAfter(ticks, s)
		if !ok {
			continue
		}
		if s.Price <= 0 {
			s.Price = ticks[i].Close
		}
		out = append(out, s)
		prices = append(prices, ticks[i].Close)
	}
	return out, prices
}

// Queue assigns each signal to the first tick of its symbol at or after it
// and returns the queue with the tick close series.
func Queue(signals []market.Signal, ticks []market.Tick) ([]TickSignal, []float64) {
	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.Close
	}

	ix := indexTicks(ticks)
	queued := make([]TickSignal, 0, len(signals))
	for _, s := range signals {
		i, ok := ix.firstAtOrAfter(ticks, s)
		if !ok {
			continue
		}
		queued = append(queued, TickSignal{Tick: i, Signal: s})
	}
	return queued, prices
}

// SplitWindows cuts aligned signals and prices into n contiguous windows of
// near-equal length. n < 1 is treated as 1.
func SplitWindows(signals []market.Signal, prices []float64, n int) []Window {
	total := min(len(signals), len(prices))
	if n < 1 {
		n = 1
	}
	n = min(n, max(total, 1))

	size := (total + n - 1) / n
	windows := make([]Window, 0, n)
	for start := 0; start < total; start += size {
		end := min(start+size, total)
		windows = append(windows, Window{
			Signals: signals[start:end],
			Prices:  prices[start:end],
		})
	}
	return windows
}
