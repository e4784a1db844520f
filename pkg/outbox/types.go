package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Message is one row written next to the business change it describes.
type Message struct {
	OrganizationID uuid.UUID
	Topic          string
	EventID        uuid.UUID
	Payload        json.RawMessage
}

// Envelope is what the relay hands to a Dispatcher. Attempts counts the
// current delivery.
type Envelope struct {
	Message
	Sequence int64
	Attempts int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) error
}
