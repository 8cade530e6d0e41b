package market

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// maxLine bounds one record. Longer lines are skipped as malformed.
const maxLine = 1 << 20

// Feed streams JSON-lines records. Malformed lines are logged and skipped;
// only I/O errors end the stream.
type Feed[T any] struct {
	c      io.Closer
	r      *bufio.Reader
	buf    []byte
	decode func([]byte) (T, error)
	kind   string
	log    zerolog.Logger

	line    int
	skipped int
}

func newFeed[T any](r io.Reader, c io.Closer, kind string, decode func([]byte) (T, error), log zerolog.Logger) *Feed[T] {
	return &Feed[T]{c: c, r: bufio.NewReaderSize(r, 64*1024), decode: decode, kind: kind, log: log}
}

func NewSignalFeed(r io.Reader, log zerolog.Logger) *Feed[Signal] {
	return newFeed(r, nil, "signal", DecodeSignal, log)
}

func NewTickFeed(r io.Reader, log zerolog.Logger) *Feed[Tick] {
	return newFeed(r, nil, "tick", DecodeTick, log)
}

func OpenSignalFeed(path string, log zerolog.Logger) (*Feed[Signal], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newFeed(f, f, "signal", DecodeSignal, log), nil
}

func OpenTickFeed(path string, log zerolog.Logger) (*Feed[Tick], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return newFeed(f, f, "tick", DecodeTick, log), nil
}

// readLine returns the next line, newline included. A line longer
// than maxLine is consumed and reported as oversized with no content.
func (f *Feed[T]) readLine() ([]byte, bool, error) {
	f.buf = f.buf[:0]
	oversized := false
	for {
		chunk, err := f.r.ReadSlice('\n')
		if !oversized {
			if len(f.buf)+len(chunk) > maxLine+1 {
				oversized = true
				f.buf = f.buf[:0]
			} else {
				f.buf = append(f.buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return f.buf, oversized, err
	}
}

// Next returns the next well-formed record, or ok=false at end of input.
func (f *Feed[T]) Next() (T, bool, error) {
	var zero T
	for {
		line, oversized, err := f.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return zero, false, err
		}
		if err != nil && len(line) == 0 && !oversized {
			return zero, false, nil
		}
		f.line++

		if oversized {
			f.skipped++
			f.log.Warn().Str("kind", f.kind).Int("line", f.line).Int("max_bytes", maxLine).Msg("skipping oversized record")
			continue
		}
		raw := bytes.TrimSpace(line)
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		v, err := f.decode(raw)
		if err != nil {
			if !errors.Is(err, ErrMalformed) {
				return zero, false, err
			}
			f.skipped++
			f.log.Warn().Str("kind", f.kind).Int("line", f.line).Err(err).Msg("skipping record")
			continue
		}
		return v, true, nil
	}
}

// All drains the feed.
func (f *Feed[T]) All() ([]T, error) {
	var out []T
	for {
		v, ok, err := f.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Skipped counts malformed lines seen so far.
func (f *Feed[T]) Skipped() int { return f.skipped }

func (f *Feed[T]) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

// ReadSignals loads every well-formed signal in path, sorted by timestamp.
func ReadSignals(path string, log zerolog.Logger) ([]Signal, error) {
	feed, err := OpenSignalFeed(path, log)
	if err != nil {
		return nil, err
	}
	defer feed.Close()

	out, err := feed.All()
	if err != nil {
		return nil, err
	}
	SortSignals(out)
	return out, nil
}

// ReadTicks loads every well-formed tick in path, sorted by timestamp.
func ReadTicks(path string, log zerolog.Logger) ([]Tick, error) {
	feed, err := OpenTickFeed(path, log)
	if err != nil {
		return nil, err
	}
	defer feed.Close()

	out, err := feed.All()
	if err != nil {
		return nil, err
	}
	SortTicks(out)
	return out, nil
}
