// Package slippage prices executions: basis-point slippage, transaction
// costs, and a volume-aware impact model for thin liquidity.
package slippage

import (
	"math"

	"github.com/rustyeddy/execsim/broker"
)

// DefaultImpactCoeff scales the extra slippage charged for the unfilled
// fraction of an order in ApplyVolumeAware.
const DefaultImpactCoeff = 0.25

// Model bundles cost parameters for a backtest run. The zero value is
// frictionless.
type Model struct {
	SlippageBp    float64 `yaml:"slippage_bp" json:"slippage_bp" validate:"gte=0"`
	CommissionPct float64 `yaml:"commission_pct" json:"commission_pct" validate:"gte=0"`
	FixedFee      float64 `yaml:"fixed_fee" json:"fixed_fee" validate:"gte=0"`
	ImpactCoeff   float64 `yaml:"impact_coeff" json:"impact_coeff" validate:"gte=0"`
}

// Impact returns the configured impact coefficient or the default when
// unset.
func (m Model) Impact() float64 {
	if m.ImpactCoeff == 0 {
		return DefaultImpactCoeff
	}
	return m.ImpactCoeff
}

// Apply moves price against the taker by bp basis points. A zero bp
// returns price unchanged.
func Apply(price float64, side broker.Side, bp float64) float64 {
	if bp == 0 {
		return price
	}
	if side == broker.Sell {
		return price * (1 - bp/10000)
	}
	return price * (1 + bp/10000)
}

func TransactionCost(notional, commissionPct, fixedFee float64) float64 {
	return math.Abs(notional)*commissionPct + fixedFee
}

// ApplyTrade returns the executed notional and the transaction cost of
// trading qty at price.
func ApplyTrade(price, qty float64, side broker.Side, bp, commissionPct, fixedFee float64) (notional, cost float64) {
	notional = Apply(price, side, bp) * qty
	cost = TransactionCost(notional, commissionPct, fixedFee)
	return notional, cost
}

// Trade is ApplyTrade with the model's parameters.
func (m Model) Trade(price, qty float64, side broker.Side) (notional, cost float64) {
	return ApplyTrade(price, qty, side, m.SlippageBp, m.CommissionPct, m.FixedFee)
}

// VolumeFill is the outcome of a volume-aware execution.
type VolumeFill struct {
	FilledQty   float64
	Price       float64
	EffectiveBp float64
}

// ApplyVolumeAware fills at most availableVolume of qty and charges extra
// slippage proportional to the unfilled fraction. A non-positive
// availableVolume means volume is unknown: the full quantity fills at bp.
func ApplyVolumeAware(price, qty float64, side broker.Side, bp, availableVolume, impactCoeff float64) VolumeFill {
	if availableVolume <= 0 || qty <= 0 {
		return VolumeFill{FilledQty: qty, Price: Apply(price, side, bp), EffectiveBp: bp}
	}

	fraction := math.Min(1, availableVolume/qty)
	effBp := bp + impactCoeff*(1-fraction)*bp

	filled := qty
	if fraction < 1 {
		filled = availableVolume
	}

	return VolumeFill{
		FilledQty:   filled,
		Price:       Apply(price, side, effBp),
		EffectiveBp: effBp,
	}
}
