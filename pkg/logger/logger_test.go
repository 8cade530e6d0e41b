package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelFallback(t *testing.T) {
	t.Parallel()

	l, err := New(Config{Level: "nonsense", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())

	l, err = New(Config{Level: "DEBUG", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
}

func TestNewWritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sim.log")
	l, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	lg := Component(l, "broker")
	lg.Info().Str("symbol", "SPY").Msg("fill")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "broker", rec["component"])
	assert.Equal(t, "SPY", rec["symbol"])
	assert.Equal(t, "fill", rec["message"])
	assert.Contains(t, rec, "time")
}
