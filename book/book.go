// Package book simulates filling an order against a depth-of-book ladder.
package book

import (
	"math"

	"github.com/rustyeddy/execsim/broker"
)

// epsilon below which a remaining quantity counts as fully filled.
const epsilon = 1e-12

const (
	DefaultDepth = 5
	DefaultTick  = 0.01
	DefaultSize  = 100
)

type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Book holds bids best-first (descending) and asks best-first (ascending).
type Book struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Side returns the levels an order on side trades against.
func (b Book) Side(side broker.Side) []Level {
	if side == broker.Sell {
		return b.Bids
	}
	return b.Asks
}

type Fill struct {
	Price float64
	Qty   float64
}

type Result struct {
	ExecutedQty  float64
	AvgPrice     *float64 // nil when nothing executed
	Fills        []Fill
	RemainingQty float64
}

// Simulate walks levels in order, consuming liquidity until qty is filled,
// the ladder runs out, or a level violates limit. A nil limit is a market
// order.
func Simulate(qty float64, side broker.Side, limit *float64, levels []Level) Result {
	if qty <= 0 {
		return Result{}
	}

	remaining := qty
	var executed, spent float64
	var fills []Fill

	for _, lvl := range levels {
		if limit != nil {
			if side == broker.Buy && lvl.Price > *limit {
				break
			}
			if side == broker.Sell && lvl.Price < *limit {
				break
			}
		}
		if lvl.Size <= 0 {
			continue
		}

		take := math.Min(lvl.Size, remaining)
		fills = append(fills, Fill{Price: lvl.Price, Qty: take})
		executed += take
		spent += take * lvl.Price
		remaining -= take

		if remaining <= epsilon {
			remaining = 0
			break
		}
	}

	res := Result{ExecutedQty: executed, Fills: fills, RemainingQty: remaining}
	if executed > 0 {
		avg := spent / executed
		res.AvgPrice = &avg
	}
	return res
}

// Synthetic builds a symmetric ladder around mid: depth levels per side,
// tick apart, each holding size. Prices are rounded to 8 decimals.
func Synthetic(mid float64, depth int, tick, size float64) Book {
	b := Book{
		Bids: make([]Level, 0, depth),
		Asks: make([]Level, 0, depth),
	}
	for i := 1; i <= depth; i++ {
		off := float64(i) * tick
		b.Bids = append(b.Bids, Level{Price: round8(mid - off), Size: size})
		b.Asks = append(b.Asks, Level{Price: round8(mid + off), Size: size})
	}
	return b
}

func DefaultSynthetic(mid float64) Book {
	return Synthetic(mid, DefaultDepth, DefaultTick, DefaultSize)
}

func round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}
