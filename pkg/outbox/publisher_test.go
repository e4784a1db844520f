package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Enqueue(t *testing.T) {
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	msg := Message{
		OrganizationID: uuid.New(),
		Topic:          "hierarchy.changed",
		EventID:        uuid.New(),
		Payload:        json.RawMessage(`{"change_type":"deleted"}`),
	}
	pool.ExpectQuery(`INSERT INTO "hierarchy_outbox" \(organization_id, topic, payload, event_id\)`).
		WithArgs(msg.OrganizationID, msg.Topic, []byte(msg.Payload), msg.EventID).
		WillReturnRows(pgxmock.NewRows([]string{"sequence"}).AddRow(int64(42)))

	seq, err := NewPublisher(testTable).Enqueue(context.Background(), pool, msg)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPublisher_EnqueueRejectsIncompleteMessages(t *testing.T) {
	valid := Message{OrganizationID: uuid.New(), Topic: "t", EventID: uuid.New()}
	cases := map[string]func(m *Message){
		"organization": func(m *Message) { m.OrganizationID = uuid.Nil },
		"event":        func(m *Message) { m.EventID = uuid.Nil },
		"topic":        func(m *Message) { m.Topic = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			msg := valid
			mutate(&msg)
			_, err := NewPublisher(testTable).Enqueue(context.Background(), nil, msg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
