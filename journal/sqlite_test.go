package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteTradeRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	ts := time.Date(2024, 4, 10, 14, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(TradeRecord{
		Time: ts, SignalTime: ts.Add(-2 * time.Second), OrderID: "A1",
		Symbol: "SPY", Side: "BUY", Qty: 10, FilledPrice: 501.25, Status: "filled",
	}))
	require.NoError(t, j.RecordTrade(TradeRecord{
		Time: ts.Add(time.Minute), OrderID: "A2",
		Symbol: "QQQ", Side: "SELL", Qty: 3, Status: "rejected",
	}))

	got, err := j.GetTrade("A1")
	require.NoError(t, err)
	assert.Equal(t, "SPY", got.Symbol)
	assert.Equal(t, 501.25, got.FilledPrice)
	assert.True(t, ts.Equal(got.Time))
	assert.True(t, ts.Add(-2*time.Second).Equal(got.SignalTime))

	got, err = j.GetTrade("A2")
	require.NoError(t, err)
	assert.True(t, got.SignalTime.IsZero())

	_, err = j.GetTrade("missing")
	assert.ErrorIs(t, err, ErrTradeNotFound)

	all, err := j.ListTradesBetween("", ts, ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "A1", all[0].OrderID)

	spy, err := j.ListTradesBetween("SPY", ts, ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, spy, 1)

	n, err := j.CountTrades("filled")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = j.CountTrades("")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteDuplicateOrderIDFails(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	rec := TradeRecord{Time: time.Now(), OrderID: "dup", Symbol: "SPY", Side: "BUY", Qty: 1, Status: "filled"}
	require.NoError(t, j.RecordTrade(rec))
	assert.Error(t, j.RecordTrade(rec))
}

func TestSQLiteEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	t0 := time.Date(2024, 4, 10, 14, 0, 0, 0, time.UTC)
	for i, ut := range []UpdateType{UpdateInit, UpdateTick, UpdateTrade} {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			Time:           t0.Add(time.Duration(i) * time.Second),
			UpdateType:     ut,
			Cash:           100000.004,
			PortfolioValue: 100000 + float64(i),
			BuyingPower:    100000 + float64(i),
			Positions:      i,
			TradesExecuted: i,
		}))
	}

	snaps, err := j.ListEquityBetween(t0, t0.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, UpdateInit, snaps[0].UpdateType)
	assert.Equal(t, UpdateTick, snaps[1].UpdateType)
	assert.Equal(t, 100000.0, snaps[0].Cash)
	assert.Equal(t, 1, snaps[1].Positions)
}
