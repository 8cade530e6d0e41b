// Package account persists the simulated account between live sessions.
package account

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/execsim/broker"
)

// DefaultCash is the starting capital of a fresh account.
const DefaultCash = 100000.0

type PositionState struct {
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// State is the snapshot carried from one session to the next.
type State struct {
	LastUpdated    time.Time                `json:"last_updated"`
	Cash           float64                  `json:"cash"`
	PortfolioValue float64                  `json:"portfolio_value"`
	Positions      map[string]PositionState `json:"positions"`
	TradesCount    int                      `json:"trades_count"`
	SessionCount   int                      `json:"session_count"`
}

// Store loads and saves a single State. Load returns (nil, nil) when
// nothing has been saved yet.
type Store interface {
	Load() (*State, error)
	Save(State) error
	Reset(initialCash float64) error
	Close() error
}

// Fresh is the state written by Reset.
func Fresh(initialCash float64, now time.Time) State {
	return State{
		LastUpdated:    now.UTC(),
		Cash:           initialCash,
		PortfolioValue: initialCash,
		Positions:      map[string]PositionState{},
	}
}

// StartingCash returns the saved portfolio value, or def when the store
// is empty. A new session starts flat with the whole value in cash.
func StartingCash(s Store, def float64) (float64, error) {
	st, err := s.Load()
	if err != nil {
		return 0, err
	}
	if st == nil {
		return def, nil
	}
	return st.PortfolioValue, nil
}

// EndSession builds the state saved when a session closes. prev may be
// nil for a first session.
func EndSession(prev *State, acct broker.Account, positions []broker.Position, sessionTrades int, now time.Time) State {
	st := State{
		LastUpdated:    now.UTC(),
		Cash:           acct.Cash,
		PortfolioValue: acct.PortfolioValue,
		Positions:      FromPositions(positions),
		TradesCount:    sessionTrades,
		SessionCount:   1,
	}
	if prev != nil {
		st.TradesCount += prev.TradesCount
		st.SessionCount += prev.SessionCount
	}
	return st
}

func FromPositions(ps []broker.Position) map[string]PositionState {
	out := make(map[string]PositionState, len(ps))
	for _, p := range ps {
		out[p.Symbol] = PositionState{Qty: p.Qty, AvgPrice: p.AvgPrice}
	}
	return out
}

// BrokerPositions converts the saved positions for sim.Engine.Restore.
func (s State) BrokerPositions() map[string]broker.Position {
	out := make(map[string]broker.Position, len(s.Positions))
	for sym, p := range s.Positions {
		out[sym] = broker.Position{Symbol: sym, Qty: p.Qty, AvgPrice: p.AvgPrice}
	}
	return out
}

// Symbols returns the held symbols in sorted order.
func (s State) Symbols() []string {
	out := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Open returns the store for backend, "file" or "pebble".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(path)
	case "pebble":
		return NewPebbleStore(path)
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}
