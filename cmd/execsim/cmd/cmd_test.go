package cmd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/execsim/config"
	"github.com/rustyeddy/execsim/journal"
)

func TestDayBounds(t *testing.T) {
	t.Parallel()

	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), end)

	_, _, err = dayBounds(time.UTC, "01/15/2024")
	assert.Error(t, err)
}

func TestFilterConfigCarriesEveryField(t *testing.T) {
	t.Parallel()

	c := config.Default().Filter
	c.AllowShort = true
	c.PrimarySymbol = "AAPL"

	got := filterConfig(c)
	assert.Equal(t, c.MinConfidence, got.MinConfidence)
	assert.Equal(t, c.MinEdgeBp, got.MinEdgeBp)
	assert.Equal(t, c.Cooldown, got.Cooldown)
	assert.Equal(t, c.RiskPct, got.RiskPct)
	assert.Equal(t, c.MaxPositionPct, got.MaxPositionPct)
	assert.True(t, got.AllowShort)
	assert.Equal(t, c.PollAttempts, got.PollAttempts)
	assert.Equal(t, c.PollInterval, got.PollInterval)
	assert.Equal(t, c.SnapshotInterval, got.SnapshotInterval)
	assert.Equal(t, "AAPL", got.PrimarySymbol)
}

func TestOpenJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for _, typ := range []string{"jsonl", "csv", "sqlite"} {
		c := config.JournalConfig{
			Type:       typ,
			TradesFile: filepath.Join(dir, typ+"-trades"),
			EquityFile: filepath.Join(dir, typ+"-equity"),
			DBPath:     filepath.Join(dir, "journal.db"),
		}
		j, err := openJournal(c)
		require.NoError(t, err, typ)
		require.NoError(t, j.RecordEquity(journal.EquitySnapshot{Time: time.Now(), UpdateType: journal.UpdateInit}), typ)
		require.NoError(t, j.Close(), typ)
	}

	_, err := openJournal(config.JournalConfig{Type: "parquet"})
	assert.Error(t, err)
}
