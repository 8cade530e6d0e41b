package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// ErrTruncated marks a log whose last line has no terminating newline,
// which is what an unclean shutdown mid-write leaves behind.
var ErrTruncated = errors.New("truncated trailing record")

// JSONLJournal appends one JSON object per line and fsyncs after every
// write.
type JSONLJournal struct {
	mu     sync.Mutex
	trades *os.File
	equity *os.File
}

// NewJSONL opens (or creates) both streams for append. A trailing partial
// line left by a crash is cut off first so new records start on a clean
// line.
func NewJSONL(tradesPath, equityPath string) (*JSONLJournal, error) {
	tf, err := openAppend(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := openAppend(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}
	return &JSONLJournal{trades: tf, equity: ef}, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if _, err := Repair(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("repair %s: %w", path, err)
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func (j *JSONLJournal) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return appendLine(j.trades, t)
}

func (j *JSONLJournal) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return appendLine(j.equity, e.Rounded())
}

func (j *JSONLJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return errors.Join(j.trades.Close(), j.equity.Close())
}

func appendLine(f *os.File, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := f.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	return nil
}

// Repair truncates a trailing line that lacks its newline. It reports
// whether anything was cut.
func Repair(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	keep, err := completeLen(data)
	if err == nil {
		return false, nil
	}
	if err := os.Truncate(path, int64(keep)); err != nil {
		return false, err
	}
	return true, nil
}

// completeLen is the length of data up to and including its last newline.
// It returns ErrTruncated when bytes follow that newline.
func completeLen(data []byte) (int, error) {
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return len(data), nil
	}
	return bytes.LastIndexByte(data, '\n') + 1, ErrTruncated
}

// readLines returns the complete, non-empty lines of r, dropping a
// trailing partial one.
func readLines(r io.Reader) ([][]byte, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}
	n, terr := completeLen(data)
	var out [][]byte
	for _, l := range bytes.Split(data[:n], []byte{'\n'}) {
		if l = bytes.TrimSpace(l); len(l) > 0 {
			out = append(out, l)
		}
	}
	return out, terr != nil, nil
}

func readJSONL[T any](path string) ([]T, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	lines, truncated, err := readLines(f)
	if err != nil {
		return nil, false, err
	}
	out := make([]T, 0, len(lines))
	for i, l := range lines {
		var v T
		if err := json.Unmarshal(l, &v); err != nil {
			return nil, truncated, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		out = append(out, v)
	}
	return out, truncated, nil
}

// ReadTrades loads a trade stream. truncated is true when a partial
// trailing record was discarded.
func ReadTrades(path string) (trades []TradeRecord, truncated bool, err error) {
	return readJSONL[TradeRecord](path)
}

// ReadEquity loads an equity stream, discarding a partial trailing record.
func ReadEquity(path string) (snaps []EquitySnapshot, truncated bool, err error) {
	return readJSONL[EquitySnapshot](path)
}

// Tail returns the last n complete lines of path.
func Tail(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines, _, err := readLines(f)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out, nil
}
