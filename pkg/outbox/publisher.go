package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/feedback-hub/pkg/repo"
)

type Publisher struct {
	table pgx.Identifier
	label string
	m     *metrics
}

func NewPublisher(table pgx.Identifier) *Publisher {
	return &Publisher{table: table, label: tableLabel(table), m: getMetrics()}
}

// Enqueue writes msg through tx so it commits or rolls back with the caller's
// change. Re-enqueueing an event id is a no-op that returns the original sequence.
func (p *Publisher) Enqueue(ctx context.Context, tx repo.Tx, msg Message) (int64, error) {
	switch {
	case len(p.table) == 0:
		return 0, invalidConfig("table is required")
	case msg.OrganizationID == uuid.Nil:
		return 0, invalidConfig("organization_id is required")
	case msg.EventID == uuid.Nil:
		return 0, invalidConfig("event_id is required")
	case msg.Topic == "":
		return 0, invalidConfig("topic is required")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (organization_id, topic, payload, event_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		p.table.Sanitize(),
	)
	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.OrganizationID, msg.Topic, []byte(msg.Payload), msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}
	p.m.enqueueTotal.WithLabelValues(p.label, msg.Topic).Inc()
	return sequence, nil
}
