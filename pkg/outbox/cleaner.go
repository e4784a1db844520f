package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/feedback-hub/pkg/repo"
)

// Cleaner prunes delivered rows and, optionally, dead ones.
type Cleaner struct {
	pool  repo.Tx
	table pgx.Identifier
	label string
	opts  CleanerOptions
	now   func() time.Time
}

func NewCleaner(pool repo.Tx, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if opts.DeadRetention > 0 && opts.DeadAttempts <= 0 {
		return nil, invalidConfig("dead retention requires DeadAttempts > 0")
	}
	opts.setDefaults()
	return &Cleaner{pool: pool, table: table, label: tableLabel(table), opts: opts, now: time.Now}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := c.CleanOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.opts.Logger.WithError(err).WithField("table", c.label).Warn("outbox: cleaner tick failed")
		}
	}
}

// CleanOnce returns the number of deleted rows.
func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	table := c.table.Sanitize()
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, table),
		c.now().Add(-c.opts.Retention),
	)
	if err != nil {
		return 0, fmt.Errorf("outbox clean published: %w", err)
	}
	deleted := tag.RowsAffected()

	if c.opts.DeadRetention > 0 {
		tag, err = c.pool.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NULL AND attempts >= $1 AND created_at < $2`, table),
			c.opts.DeadAttempts, c.now().Add(-c.opts.DeadRetention),
		)
		if err != nil {
			return deleted, fmt.Errorf("outbox clean dead: %w", err)
		}
		deleted += tag.RowsAffected()
	}
	return deleted, nil
}
