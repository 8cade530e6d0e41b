package backtest

import "math"

type TradeStats struct {
	Trades      int     `json:"n_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	AvgPnL      float64 `json:"avg_pnl"`
	WinRate     float64 `json:"win_rate"`
	AvgSlippage float64 `json:"avg_slippage"`
}

// CumulativePnL returns the running sum of pnls.
func CumulativePnL(pnls []float64) []float64 {
	out := make([]float64, len(pnls))
	var total float64
	for i, p := range pnls {
		total += p
		out[i] = total
	}
	return out
}

// MaxDrawdown is the largest peak-to-trough drop in a cumulative series.
func MaxDrawdown(cum []float64) float64 {
	peak := math.Inf(-1)
	var dd float64
	for _, x := range cum {
		if x > peak {
			peak = x
		}
		dd = math.Max(dd, peak-x)
	}
	return dd
}

func Stats(results []TradeResult) TradeStats {
	n := len(results)
	if n == 0 {
		return TradeStats{}
	}

	var total, slip float64
	wins := 0
	for _, r := range results {
		total += r.PnL
		slip += r.Slippage
		if r.PnL > 0 {
			wins++
		}
	}

	return TradeStats{
		Trades:      n,
		TotalPnL:    total,
		AvgPnL:      total / float64(n),
		WinRate:     float64(wins) / float64(n),
		AvgSlippage: slip / float64(n),
	}
}

// TickTrades converts tick results for Stats.
func TickTrades(results []TickResult) []TradeResult {
	out := make([]TradeResult, len(results))
	for i, r := range results {
		out[i] = TradeResult{
			ExecutedPrice: r.ExecutedPrice,
			Notional:      r.Notional,
			Cost:          r.Cost,
			PnL:           r.PnL,
			Slippage:      r.Slippage,
		}
	}
	return out
}

// PnLs extracts per-trade pnl.
func PnLs(results []TradeResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.PnL
	}
	return out
}
