package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleaner_CleanOnce(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	c, err := NewCleaner(pool, testTable, CleanerOptions{
		Retention:     24 * time.Hour,
		DeadRetention: 30 * 24 * time.Hour,
		DeadAttempts:  25,
	})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	pool.ExpectExec(`DELETE FROM "hierarchy_outbox" WHERE published_at IS NOT NULL`).
		WithArgs(now.Add(-24 * time.Hour)).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	pool.ExpectExec(`WHERE published_at IS NULL AND attempts >= \$1`).
		WithArgs(25, now.Add(-30*24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	deleted, err := c.CleanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestNewCleaner_DeadRetentionNeedsThreshold(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	_, err = NewCleaner(pool, testTable, CleanerOptions{DeadRetention: time.Hour})
	require.ErrorIs(t, err, ErrInvalidConfig)
}
