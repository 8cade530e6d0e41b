package id

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsValidULID(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := ulid.Parse(s)
	require.NoError(t, err)
	assert.Len(t, s, 26)
}

func TestGeneratorMonotonicWithinMillisecond(t *testing.T) {
	t.Parallel()

	g := NewSeeded(7)
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	prev := g.At(ts)
	for i := 0; i < 100; i++ {
		next := g.At(ts)
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestSeededGeneratorIsReproducible(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	a := NewSeeded(42)
	b := NewSeeded(42)

	for i := 0; i < 5; i++ {
		assert.Equal(t, a.At(ts.Add(time.Duration(i)*time.Second)), b.At(ts.Add(time.Duration(i)*time.Second)))
	}
}
