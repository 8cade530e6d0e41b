package risk

// Limits are hard exposure caps, in account currency.
type Limits struct {
	MaxPositionSize    float64 `yaml:"max_position_size" json:"max_position_size" default:"100000" validate:"gt=0"`
	MaxLeverage        float64 `yaml:"max_leverage" json:"max_leverage" default:"2" validate:"gt=0"`
	PerInstrumentLimit float64 `yaml:"per_instrument_limit" json:"per_instrument_limit" default:"50000" validate:"gt=0"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:    100000,
		MaxLeverage:        2.0,
		PerInstrumentLimit: 50000,
	}
}

// Portfolio is the exposure view checked against Limits. Positions maps
// symbol to signed notional (qty * price).
type Portfolio struct {
	Cash      float64
	Positions map[string]float64
}

// SizingInputs feed Size.
type SizingInputs struct {
	PortfolioValue float64
	Price          float64
	RequestedQty   float64

	RiskPct        float64 // fraction of portfolio risked per trade, 0.01 = 1%
	MinProfitBp    float64 // expected adverse move per unit, in bp of price
	MaxPositionPct float64 // cap on position notional as a fraction of portfolio; 0 means 0.10
}

const (
	defaultMaxPositionPct = 0.10
	minLossBp             = 1.0
)
