package risk

import "math"

// Size returns the whole-unit quantity to trade: the requested quantity
// capped by the risk budget and by the per-position notional cap. The loss
// per unit is never assumed below 1 bp of price. A result below 1 means
// the trade cannot be sized.
func Size(in SizingInputs) float64 {
	if in.Price <= 0 || in.PortfolioValue <= 0 || in.RequestedQty <= 0 {
		return 0
	}

	riskAmt := in.PortfolioValue * in.RiskPct
	lossPerUnit := in.Price * math.Max(in.MinProfitBp, minLossBp) / 10000
	maxQty := math.Floor(riskAmt / lossPerUnit)

	capPct := in.MaxPositionPct
	if capPct <= 0 {
		capPct = defaultMaxPositionPct
	}
	maxShares := math.Floor(in.PortfolioValue * capPct / in.Price)

	return math.Floor(math.Min(in.RequestedQty, math.Min(maxQty, maxShares)))
}
