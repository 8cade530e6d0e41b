package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/execsim/book"
	"github.com/rustyeddy/execsim/broker"
)

var ErrMalformed = errors.New("malformed record")

// Signal is a strategy's request to trade. Optional fields are nil when
// the producer did not supply them.
type Signal struct {
	Timestamp      time.Time
	Symbol         string
	Side           broker.Side
	Qty            float64
	LimitPrice     *float64
	Confidence     *float64
	ExpectedEdgeBp *float64

	// Backtest hints.
	Price           float64
	AvailableVolume *float64
	UseOrderBook    bool
	Book            *book.Book
}

func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: signal missing symbol", ErrMalformed)
	}
	if !s.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrMalformed, s.Side)
	}
	if s.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrMalformed, s.Qty)
	}
	if s.Confidence != nil && (*s.Confidence < 0 || *s.Confidence > 1) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformed, *s.Confidence)
	}
	return nil
}

// SortSignals orders signals by timestamp, keeping input order for ties.
func SortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Timestamp.Before(signals[j].Timestamp)
	})
}

// signalRecord is the wire shape. Producers disagree on a few names, so
// both side/action and qty/quantity are accepted.
type signalRecord struct {
	Timestamp       string      `json:"timestamp"`
	Symbol          string      `json:"symbol"`
	Side            string      `json:"side"`
	Action          string      `json:"action"`
	Qty             json.Number `json:"qty"`
	Quantity        json.Number `json:"quantity"`
	Price           *float64    `json:"price"`
	LimitPrice      *float64    `json:"limit_price"`
	Confidence      *float64    `json:"confidence"`
	ExpectedProfit  *float64    `json:"expected_profit"`
	ExpectedEdgeBp  *float64    `json:"expected_edge_bp"`
	AvailableVolume *float64    `json:"available_volume"`
	UseOrderBook    bool        `json:"use_order_book"`
	Book            *book.Book  `json:"book"`
}

// DecodeSignal parses one JSON signal line. expected_profit is a fraction
// and is converted to basis points; expected_edge_bp wins when both are
// present.
func DecodeSignal(line []byte) (Signal, error) {
	var rec signalRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ts, err := ParseTime(rec.Timestamp)
	if err != nil {
		return Signal{}, err
	}

	sideStr := rec.Side
	if sideStr == "" {
		sideStr = rec.Action
	}
	side, err := broker.ParseSide(sideStr)
	if err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	num := rec.Qty
	if num == "" {
		num = rec.Quantity
	}
	if num == "" {
		return Signal{}, fmt.Errorf("%w: missing quantity", ErrMalformed)
	}
	qty, err := num.Float64()
	if err != nil {
		return Signal{}, fmt.Errorf("%w: quantity %q: %v", ErrMalformed, num, err)
	}

	s := Signal{
		Timestamp:       ts,
		Symbol:          strings.TrimSpace(rec.Symbol),
		Side:            side,
		Qty:             qty,
		LimitPrice:      rec.LimitPrice,
		Confidence:      rec.Confidence,
		AvailableVolume: rec.AvailableVolume,
		UseOrderBook:    rec.UseOrderBook,
		Book:            rec.Book,
	}
	if rec.Price != nil {
		s.Price = *rec.Price
	}
	switch {
	case rec.ExpectedEdgeBp != nil:
		s.ExpectedEdgeBp = rec.ExpectedEdgeBp
	case rec.ExpectedProfit != nil:
		bp := *rec.ExpectedProfit * 10000
		s.ExpectedEdgeBp = &bp
	}

	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// DecodeTick parses one JSON tick line.
func DecodeTick(line []byte) (Tick, error) {
	var rec struct {
		Timestamp string  `json:"timestamp"`
		Symbol    string  `json:"symbol"`
		Open      float64 `json:"open"`
		High      float64 `json:"high"`
		Low       float64 `json:"low"`
		Close     float64 `json:"close"`
		Volume    float64 `json:"volume"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ts, err := ParseTime(rec.Timestamp)
	if err != nil {
		return Tick{}, err
	}
	t := Tick{
		Timestamp: ts,
		Symbol:    strings.TrimSpace(rec.Symbol),
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
	}
	if err := t.Validate(); err != nil {
		return Tick{}, err
	}
	return t, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC3339 and the naive ISO forms, which are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, s)
}
