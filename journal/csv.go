package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSVJournal writes both streams as CSV with a header row. Every record is
// flushed and synced before returning.
type CSVJournal struct {
	mu     sync.Mutex
	trades *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	j := &CSVJournal{trades: csv.NewWriter(tf), equity: csv.NewWriter(ef), tf: tf, ef: ef}

	if err := j.write(j.trades, j.tf, []string{"timestamp", "signal_timestamp", "order_id", "symbol", "side", "qty", "filled_price", "status"}); err != nil {
		j.Close()
		return nil, err
	}
	if err := j.write(j.equity, j.ef, []string{"timestamp", "update_type", "cash", "portfolio_value", "buying_power", "positions", "trades_executed"}); err != nil {
		j.Close()
		return nil, err
	}

	return j, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	sig := ""
	if !t.SignalTime.IsZero() {
		sig = t.SignalTime.Format(time.RFC3339Nano)
	}
	return j.write(j.trades, j.tf, []string{
		t.Time.Format(time.RFC3339Nano),
		sig,
		t.OrderID,
		t.Symbol,
		t.Side,
		f(t.Qty),
		f(t.FilledPrice),
		t.Status,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	e = e.Rounded()
	return j.write(j.equity, j.ef, []string{
		e.Time.Format(time.RFC3339Nano),
		string(e.UpdateType),
		f(e.Cash),
		f(e.PortfolioValue),
		f(e.BuyingPower),
		strconv.Itoa(e.Positions),
		strconv.Itoa(e.TradesExecuted),
	})
}

func (j *CSVJournal) write(w *csv.Writer, file *os.File, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return file.Sync()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	j.equity.Flush()
	return errors.Join(j.trades.Error(), j.equity.Error(), j.tf.Close(), j.ef.Close())
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
