package live

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/account"
	"github.com/rustyeddy/execsim/broker"
)

// Session carries the account across runs: the store is read once when
// the session begins and written once when it ends.
type Session struct {
	Store            account.Store
	Prev             *account.State
	StartingCash     float64
	RestorePositions bool
	log              zerolog.Logger
}

// BeginSession loads the saved state. A new session starts flat with the
// saved portfolio value as cash, unless restorePositions is set, in which
// case it starts from the saved cash and positions.
func BeginSession(store account.Store, initialCash float64, restorePositions bool, log zerolog.Logger) (*Session, error) {
	prev, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load account state: %w", err)
	}

	s := &Session{
		Store:            store,
		Prev:             prev,
		StartingCash:     initialCash,
		RestorePositions: restorePositions,
		log:              log,
	}
	switch {
	case prev == nil:
		log.Info().Float64("initial_cash", initialCash).Msg("starting new account")
	case restorePositions:
		s.StartingCash = prev.Cash
	default:
		s.StartingCash = prev.PortfolioValue
	}

	if prev != nil {
		log.Info().
			Int("session", prev.SessionCount+1).
			Time("last_updated", prev.LastUpdated).
			Float64("portfolio_value", prev.PortfolioValue).
			Float64("cash", prev.Cash).
			Int("lifetime_trades", prev.TradesCount).
			Msg("resuming account")
	}
	return s, nil
}

// Positions returns the positions to restore into the broker, nil unless
// restoring.
func (s *Session) Positions() map[string]broker.Position {
	if !s.RestorePositions || s.Prev == nil {
		return nil
	}
	return s.Prev.BrokerPositions()
}

// End saves the account with session_count+1 and the lifetime trade count.
func (s *Session) End(ctx context.Context, e *Engine) error {
	acct, err := e.venue.GetAccount(ctx)
	if err != nil {
		return err
	}
	positions, err := e.venue.Positions(ctx)
	if err != nil {
		return err
	}

	st := account.EndSession(s.Prev, acct, positions, e.TradesExecuted(), e.clock.Now())
	if err := s.Store.Save(st); err != nil {
		return fmt.Errorf("save account state: %w", err)
	}
	s.log.Info().
		Float64("portfolio_value", st.PortfolioValue).
		Int("session", st.SessionCount).
		Int("lifetime_trades", st.TradesCount).
		Msg("account state saved")
	return nil
}
