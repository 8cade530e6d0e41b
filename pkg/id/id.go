package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces monotonic ULIDs from its own entropy source.
// A simulated broker seeded for a reproducible run gets reproducible
// order ids by owning a Generator built from that seed.
type Generator struct {
	mu   sync.Mutex
	mono io.Reader
}

// NewGenerator wraps r in a monotonic ULID entropy source.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{mono: ulid.Monotonic(r, 0)}
}

// NewSeeded returns a Generator whose ids depend only on seed and the
// timestamps passed to At.
func NewSeeded(seed int64) *Generator {
	return NewGenerator(rand.New(rand.NewSource(seed)))
}

// At returns a ULID string stamped with t.
func (g *Generator) At(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), g.mono)
	if err != nil {
		// Only on monotonic entropy overflow within one millisecond or a
		// failing reader.
		panic(err)
	}
	return id.String()
}

var global *Generator

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	global = NewSeeded(seed)
}

// New returns a time-sortable ULID string for the current instant.
//
// ULIDs sort lexicographically by generation time, which keeps order ids
// in submission order in journals and SQLite indexes.
func New() string {
	return global.At(time.Now())
}
