package outbox

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	ceiling := time.Minute
	for attempts, want := range map[int]time.Duration{
		0: 0,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		7: time.Minute,
	} {
		assert.Equal(t, want, backoff(attempts, ceiling), "attempts=%d", attempts)
	}
}

func TestJitter(t *testing.T) {
	ceiling := 200 * time.Millisecond
	a := jitter(rand.New(rand.NewSource(1)), ceiling)
	b := jitter(rand.New(rand.NewSource(1)), ceiling)
	assert.Equal(t, a, b)
	assert.True(t, a >= 0 && a <= ceiling)
	assert.Zero(t, jitter(nil, ceiling))
	assert.Zero(t, jitter(rand.New(rand.NewSource(1)), -1))
}

func TestTruncateError(t *testing.T) {
	assert.Empty(t, truncateError(nil, 10))
	assert.Equal(t, "hello", truncateError(errors.New("hello world"), 5))
	// never splits a multi-byte rune
	got := truncateError(errors.New(strings.Repeat("é", 4)), 3)
	assert.Equal(t, "é", got)
}
