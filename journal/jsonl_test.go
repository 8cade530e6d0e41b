package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJSONL(t *testing.T) (*JSONLJournal, string, string) {
	t.Helper()

	dir := t.TempDir()
	tp := filepath.Join(dir, "trades.jsonl")
	ep := filepath.Join(dir, "equity.jsonl")

	j, err := NewJSONL(tp, ep)
	require.NoError(t, err)
	return j, tp, ep
}

func TestJSONLRecordTrade(t *testing.T) {
	t.Parallel()

	j, tp, _ := newTestJSONL(t)

	ts := time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC)
	rec := TradeRecord{
		Time:        ts,
		SignalTime:  ts.Add(-time.Second),
		OrderID:     "01HX",
		Symbol:      "SPY",
		Side:        "BUY",
		Qty:         10,
		FilledPrice: 512.34,
		Status:      "filled",
	}
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(tp)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(data), "\n"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &raw))
	for _, k := range []string{"timestamp", "signal_timestamp", "order_id", "symbol", "side", "qty", "filled_price", "status"} {
		assert.Contains(t, raw, k)
	}

	got, truncated, err := ReadTrades(tp)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, got, 1)
	assert.Equal(t, "01HX", got[0].OrderID)
	assert.True(t, ts.Equal(got[0].Time))
}

func TestJSONLSignalTimeOmittedWhenZero(t *testing.T) {
	t.Parallel()

	j, tp, _ := newTestJSONL(t)
	require.NoError(t, j.RecordTrade(TradeRecord{Time: time.Now(), OrderID: "x", Status: "rejected"}))
	require.NoError(t, j.Close())

	data, err := os.ReadFile(tp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "signal_timestamp")
}

func TestJSONLRecordEquityRoundsToCents(t *testing.T) {
	t.Parallel()

	j, _, ep := newTestJSONL(t)
	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:           time.Date(2024, 5, 1, 13, 30, 0, 0, time.UTC),
		UpdateType:     UpdateTick,
		Cash:           1000.126,
		PortfolioValue: 2000.333,
		BuyingPower:    2000.333,
		Positions:      1,
		TradesExecuted: 3,
	}))
	require.NoError(t, j.Close())

	snaps, _, err := ReadEquity(ep)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 1000.13, snaps[0].Cash)
	assert.Equal(t, 2000.33, snaps[0].PortfolioValue)
	assert.Equal(t, UpdateTick, snaps[0].UpdateType)
	assert.Equal(t, 3, snaps[0].TradesExecuted)
}

func TestReadDiscardsTruncatedTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.jsonl")
	body := `{"timestamp":"2024-05-01T13:30:00Z","order_id":"a","status":"filled"}
{"timestamp":"2024-05-01T13:31:00Z","order_id":"b","status":"filled"}
{"timestamp":"2024-05-01T13:32:00Z","order_id":"c","sta`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	got, truncated, err := ReadTrades(path)
	require.NoError(t, err)
	assert.True(t, truncated)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].OrderID)
}

func TestRepairThenAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tp := filepath.Join(dir, "trades.jsonl")
	ep := filepath.Join(dir, "equity.jsonl")
	require.NoError(t, os.WriteFile(tp, []byte("{\"order_id\":\"a\"}\n{\"order_id\":\"b"), 0o644))

	cut, err := Repair(tp)
	require.NoError(t, err)
	assert.True(t, cut)

	cut, err = Repair(tp)
	require.NoError(t, err)
	assert.False(t, cut)

	// reopening repairs again and appends on a clean line
	require.NoError(t, os.WriteFile(tp, []byte("{\"order_id\":\"a\"}\n{\"ord"), 0o644))
	j, err := NewJSONL(tp, ep)
	require.NoError(t, err)
	require.NoError(t, j.RecordTrade(TradeRecord{OrderID: "c", Time: time.Now()}))
	require.NoError(t, j.Close())

	got, truncated, err := ReadTrades(tp)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].OrderID)
	assert.Equal(t, "c", got[1].OrderID)
}

func TestRepairMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Repair(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "equity.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n\n3\n4\npartial"), 0o644))

	lines, err := Tail(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, lines)

	lines, err = Tail(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, lines)
}

type failingJournal struct{ err error }

func (f failingJournal) RecordTrade(TradeRecord) error     { return f.err }
func (f failingJournal) RecordEquity(EquitySnapshot) error { return f.err }
func (f failingJournal) Close() error                      { return nil }

func TestMultiPropagatesErrors(t *testing.T) {
	t.Parallel()

	j, tp, _ := newTestJSONL(t)
	boom := os.ErrPermission
	m := Multi{j, failingJournal{err: boom}}

	err := m.RecordTrade(TradeRecord{OrderID: "z", Time: time.Now()})
	assert.ErrorIs(t, err, boom)
	require.NoError(t, m.Close())

	got, _, err := ReadTrades(tp)
	require.NoError(t, err)
	assert.Len(t, got, 1, "healthy journal still written")
}
