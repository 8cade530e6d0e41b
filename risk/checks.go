package risk

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

type Violation struct {
	Code string
	Msg  string
}

func (v Violation) String() string { return v.Code + ": " + v.Msg }

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// ExposureChecker gates an order on the exposure it would leave behind.
type ExposureChecker interface {
	CheckExposure(p Portfolio) (bool, []Violation)
}

// CheckExposure validates every position against the per-instrument and
// max-position caps, then gross leverage. Leverage is only checked when
// cash is positive.
func CheckExposure(p Portfolio, l Limits) (bool, []Violation) {
	d := evaluate(p, l)
	return d.Allowed, d.Violations
}

func evaluate(p Portfolio, l Limits) Decision {
	d := Decision{Allowed: true}

	symbols := make([]string, 0, len(p.Positions))
	for s := range p.Positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		exp := abs(p.Positions[sym])
		if exp > l.PerInstrumentLimit {
			d.add("PER_INSTRUMENT",
				fmt.Sprintf("%s: exposure %.2f exceeds limit %.2f", sym, exp, l.PerInstrumentLimit))
		}
		if exp > l.MaxPositionSize {
			d.add("POSITION_SIZE",
				fmt.Sprintf("%s: position size %.2f exceeds max %.2f", sym, exp, l.MaxPositionSize))
		}
	}

	if p.Cash > 0 {
		lev := Leverage(GrossExposure(p.Positions), p.Cash)
		if lev > l.MaxLeverage {
			d.add("LEVERAGE",
				fmt.Sprintf("leverage %.2fx exceeds limit %.2fx", lev, l.MaxLeverage))
		}
	}
	return d
}

// Checker is the logging ExposureChecker used by the live filter.
type Checker struct {
	Limits Limits
	Log    zerolog.Logger
}

func NewChecker(l Limits, log zerolog.Logger) *Checker {
	return &Checker{Limits: l, Log: log}
}

func (c *Checker) CheckExposure(p Portfolio) (bool, []Violation) {
	d := evaluate(p, c.Limits)
	for _, v := range d.Violations {
		c.Log.Warn().Str("code", v.Code).Msg(v.Msg)
	}
	if d.Allowed {
		c.Log.Debug().
			Float64("gross", GrossExposure(p.Positions)).
			Float64("cash", p.Cash).
			Msg("exposure check passed")
	}
	return d.Allowed, d.Violations
}
