package outbox

import (
	"math/rand"
	"time"
	"unicode/utf8"
)

// backoff doubles from one second per failed attempt, capped at ceiling.
func backoff(attempts int, ceiling time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	d := time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}

// jitter returns a value in [0, ceiling].
func jitter(r *rand.Rand, ceiling time.Duration) time.Duration {
	if r == nil || ceiling <= 0 {
		return 0
	}
	return time.Duration(r.Int63n(int64(ceiling) + 1)) //nolint:gosec
}

// truncateError keeps at most limit bytes of err's message without splitting a rune.
func truncateError(err error, limit int) string {
	if err == nil || limit <= 0 {
		return ""
	}
	s := err.Error()
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
