package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrTradeNotFound = errors.New("trade not found")

const tradeCols = `order_id, time, signal_time, symbol, side, qty, filled_price, status`

// GetTrade returns a single trade record by order ID.
func (j *SQLiteJournal) GetTrade(orderID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeCols+` FROM trades WHERE order_id = ?`, orderID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("get trade: %w: %q", ErrTradeNotFound, orderID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesBetween returns trades timestamped within [start, end), oldest
// first. An empty symbol matches all symbols.
func (j *SQLiteJournal) ListTradesBetween(symbol string, start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeCols+`
		FROM trades
		WHERE time >= ? AND time < ? AND (? = '' OR symbol = ?)
		ORDER BY time ASC`, start.UTC(), end.UTC(), symbol, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns snapshots within [start, end), oldest first.
func (j *SQLiteJournal) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, update_type, cash, portfolio_value, buying_power, positions, trades_executed
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		e, err := scanEquity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountTrades counts trades by status. An empty status counts all.
func (j *SQLiteJournal) CountTrades(status string) (int, error) {
	var n int
	err := j.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE (? = '' OR status = ?)`, status, status).Scan(&n)
	return n, err
}
