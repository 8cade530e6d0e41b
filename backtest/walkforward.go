package backtest

import (
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/slippage"
)

// Window is one independent historical slice.
type Window struct {
	Signals []market.Signal
	Prices  []float64
}

// WalkForward runs RunMTM over each window from a fresh ledger. Results for
// a window never depend on the windows before it.
func WalkForward(windows []Window, m slippage.Model) [][]MTMResult {
	return Runner{Model: m}.WalkForward(windows)
}

func (r Runner) WalkForward(windows []Window) [][]MTMResult {
	out := make([][]MTMResult, 0, len(windows))
	for i, w := range windows {
		res := r.RunMTM(w.Signals, w.Prices)
		out = append(out, res)

		if n := len(res); n > 0 {
			r.Log.Info().
				Int("window", i).
				Int("steps", n).
				Float64("final_mtm", res[n-1].MTM).
				Msg("window complete")
		}
	}
	return out
}
