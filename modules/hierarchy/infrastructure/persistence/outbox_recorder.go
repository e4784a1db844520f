package persistence

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/outbox"
)

var OutboxTable = pgx.Identifier{"hierarchy_outbox"}

type OutboxRecorder struct {
	publisher *outbox.Publisher
}

func NewOutboxRecorder() services.EventRecorder {
	return &OutboxRecorder{publisher: outbox.NewPublisher(OutboxTable)}
}

// Record stores e in the transaction bound to ctx.
func (r *OutboxRecorder) Record(ctx context.Context, e *events.HierarchyChanged) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.publisher.Enqueue(ctx, tx, outbox.Message{
		OrganizationID: e.OrganizationID,
		Topic:          events.Topic,
		EventID:        e.ID,
		Payload:        payload,
	})
	return err
}
