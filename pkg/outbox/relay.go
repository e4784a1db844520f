package outbox

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/repo"
)

const (
	claimTurnSQL = `SELECT pg_try_advisory_xact_lock($1)`

	claimSQL = `SELECT organization_id, topic, payload, event_id, sequence, attempts
  FROM %s
 WHERE published_at IS NULL
   AND available_at <= $1
   AND attempts < $2
   AND (locked_at IS NULL OR locked_at < $3)
 ORDER BY available_at, sequence
 LIMIT $4
   FOR UPDATE SKIP LOCKED`

	lockSQL = `UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE event_id = ANY ($2)`

	ackSQL = `UPDATE %s
   SET published_at = now(), locked_at = NULL, last_error = NULL
 WHERE event_id = $1 AND published_at IS NULL`

	retrySQL = `UPDATE %s
   SET locked_at = NULL, last_error = $2, available_at = $3
 WHERE event_id = $1 AND published_at IS NULL`

	deadSQL = `UPDATE %s
   SET locked_at = NULL, last_error = $2
 WHERE event_id = $1 AND published_at IS NULL`

	depthSQL = `SELECT count(*) FILTER (WHERE published_at IS NULL),
       count(*) FILTER (WHERE published_at IS NULL AND locked_at IS NOT NULL)
  FROM %s`
)

// Relay moves committed outbox rows to a Dispatcher. Delivery is at least
// once: a message whose ack fails is dispatched again after LockTTL.
type Relay struct {
	pool       repo.Pool
	table      pgx.Identifier
	label      string
	dispatcher Dispatcher
	opts       RelayOptions
	lockKey    int64
	m          *metrics
	now        func() time.Time
}

func NewRelay(pool repo.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	if dispatcher == nil {
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	label := tableLabel(table)
	return &Relay{
		pool:       pool,
		table:      table,
		label:      label,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    advisoryLockKey("outbox:" + label),
		m:          getMetrics(),
		now:        time.Now,
	}, nil
}

// Run polls until ctx is cancelled and returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	r.opts.Logger.WithField("table", r.label).Info("outbox relay started")
	var nextDepth time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if now := r.now(); !now.Before(nextDepth) {
			if err := r.observeDepth(ctx); err != nil {
				r.opts.Logger.WithError(err).Debug("outbox: queue depth query failed")
			}
			nextDepth = now.Add(r.opts.DepthEvery)
		}
		if _, err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.opts.Logger.WithError(err).WithField("table", r.label).Warn("outbox: relay tick failed")
		}
	}
}

// Tick claims one batch and dispatches it in sequence order. It returns how
// many messages were delivered.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	batch, err := r.claim(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, env := range batch {
		if r.deliver(ctx, env) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) claim(ctx context.Context) ([]Envelope, error) {
	return composables.InTxResult(composables.WithPool(ctx, r.pool), func(txCtx context.Context) ([]Envelope, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, err
		}
		if r.opts.SingleActive {
			var turn bool
			if err := tx.QueryRow(txCtx, claimTurnSQL, r.lockKey).Scan(&turn); err != nil {
				return nil, fmt.Errorf("outbox claim turn: %w", err)
			}
			if !turn {
				r.m.claimer.WithLabelValues(r.label).Set(0)
				return nil, nil
			}
			r.m.claimer.WithLabelValues(r.label).Set(1)
		}

		now := r.now()
		rows, err := tx.Query(txCtx, r.sql(claimSQL), now, r.opts.MaxAttempts, now.Add(-r.opts.LockTTL), r.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("outbox claim: %w", err)
		}
		batch, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Envelope, error) {
			var env Envelope
			var payload []byte
			if err := row.Scan(&env.OrganizationID, &env.Topic, &payload, &env.EventID, &env.Sequence, &env.Attempts); err != nil {
				return env, err
			}
			env.Payload = payload
			env.Attempts++
			return env, nil
		})
		if err != nil {
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		if len(batch) == 0 {
			return nil, nil
		}

		ids := make([]uuid.UUID, len(batch))
		for i, env := range batch {
			ids[i] = env.EventID
		}
		if _, err := tx.Exec(txCtx, r.sql(lockSQL), now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return nil, fmt.Errorf("outbox claim lock: %w", err)
		}
		return batch, nil
	})
}

func (r *Relay) deliver(ctx context.Context, env Envelope) bool {
	dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	start := time.Now()
	err := r.dispatcher.Dispatch(dispatchCtx, env)
	cancel()

	result := "success"
	if err != nil {
		result = "failure"
	}
	r.m.dispatchTotal.WithLabelValues(r.label, env.Topic, result).Inc()
	r.m.dispatchLatency.WithLabelValues(r.label, env.Topic, result).Observe(time.Since(start).Seconds())

	logger := r.opts.Logger.WithFields(logrus.Fields{
		"table":           r.label,
		"topic":           env.Topic,
		"event_id":        env.EventID,
		"organization_id": env.OrganizationID,
		"sequence":        env.Sequence,
		"attempts":        env.Attempts,
	})
	if err == nil {
		if _, ackErr := r.pool.Exec(ctx, r.sql(ackSQL), env.EventID); ackErr != nil {
			logger.WithError(ackErr).Warn("outbox: ack failed")
		}
		return true
	}

	lastErr := truncateError(err, r.opts.LastErrorMaxLen)
	if env.Attempts >= r.opts.MaxAttempts {
		r.m.deadTotal.WithLabelValues(r.label, env.Topic).Inc()
		logger.WithError(err).Error("outbox: message exhausted its attempts")
		if _, deadErr := r.pool.Exec(ctx, r.sql(deadSQL), env.EventID, lastErr); deadErr != nil {
			logger.WithError(deadErr).Warn("outbox: dead update failed")
		}
		return false
	}

	next := r.now().Add(backoff(env.Attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
	logger.WithError(err).Warn("outbox: dispatch failed, retrying")
	if _, retryErr := r.pool.Exec(ctx, r.sql(retrySQL), env.EventID, lastErr, next); retryErr != nil {
		logger.WithError(retryErr).Warn("outbox: retry update failed")
	}
	return false
}

func (r *Relay) observeDepth(ctx context.Context) error {
	var pending, locked int64
	if err := r.pool.QueryRow(ctx, r.sql(depthSQL)).Scan(&pending, &locked); err != nil {
		return err
	}
	r.m.pending.WithLabelValues(r.label).Set(float64(pending))
	r.m.locked.WithLabelValues(r.label).Set(float64(locked))
	return nil
}

func (r *Relay) sql(tmpl string) string {
	return fmt.Sprintf(tmpl, r.table.Sanitize())
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
