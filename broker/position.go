package broker

// PositionState is the per-symbol exposure state.
type PositionState string

const (
	Flat  PositionState = "FLAT"
	Long  PositionState = "LONG"
	Short PositionState = "SHORT"
)

// Position holds a signed quantity: positive is long, negative is short.
type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

func (p Position) State() PositionState {
	return StateOf(p.Qty)
}

// StateOf maps a signed quantity to FLAT, LONG, or SHORT.
func StateOf(qty float64) PositionState {
	switch {
	case qty > 0:
		return Long
	case qty < 0:
		return Short
	}
	return Flat
}

// Abs is the unsigned size of the position.
func (p Position) Abs() float64 {
	if p.Qty < 0 {
		return -p.Qty
	}
	return p.Qty
}
