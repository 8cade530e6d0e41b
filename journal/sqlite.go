package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

// NewSQLite opens path and applies Schema. synchronous=FULL makes every
// committed insert durable before it returns.
func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_sync=FULL&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	var sigTime any
	if !t.SignalTime.IsZero() {
		sigTime = t.SignalTime.UTC()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(order_id, time, signal_time, symbol, side, qty, filled_price, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.Time.UTC(), sigTime, t.Symbol, t.Side,
		t.Qty, t.FilledPrice, t.Status,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	e = e.Rounded()
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, update_type, cash, portfolio_value, buying_power, positions, trades_executed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), string(e.UpdateType), e.Cash, e.PortfolioValue,
		e.BuyingPower, e.Positions, e.TradesExecuted,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	var sigTime sql.NullTime
	err := s.Scan(
		&rec.OrderID,
		&rec.Time,
		&sigTime,
		&rec.Symbol,
		&rec.Side,
		&rec.Qty,
		&rec.FilledPrice,
		&rec.Status,
	)
	if sigTime.Valid {
		rec.SignalTime = sigTime.Time
	}
	return rec, err
}

func scanEquity(s scanner) (EquitySnapshot, error) {
	var e EquitySnapshot
	var ut string
	err := s.Scan(
		&e.Time,
		&ut,
		&e.Cash,
		&e.PortfolioValue,
		&e.BuyingPower,
		&e.Positions,
		&e.TradesExecuted,
	)
	e.UpdateType = UpdateType(ut)
	return e, err
}

var _ Journal = (*SQLiteJournal)(nil)
var _ Journal = (*JSONLJournal)(nil)
var _ Journal = (*CSVJournal)(nil)
