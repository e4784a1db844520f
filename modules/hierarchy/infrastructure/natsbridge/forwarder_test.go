package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/pkg/outbox"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
	flushErr error
	flushes  int
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func (p *recordingPublisher) FlushWithContext(context.Context) error {
	p.flushes++
	return p.flushErr
}

func TestForwarder_Handle(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	f := newForwarder(pub, "feedback.hierarchy.changed", logger)

	orgID, managerID := uuid.New(), uuid.New()
	e := &events.HierarchyChanged{
		OrganizationID: orgID,
		EmployeeID:     uuid.New(),
		EdgeID:         uuid.New(),
		ManagerID:      &managerID,
		ChangeType:     events.ChangeUpdated,
		OccurredAt:     time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.Handle(e)

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "feedback.hierarchy.changed."+orgID.String(), pub.subjects[0])

	var decoded events.HierarchyChanged
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, e.EdgeID, decoded.EdgeID)
	assert.Equal(t, events.ChangeUpdated, decoded.ChangeType)
	require.NotNil(t, decoded.ManagerID)
	assert.Equal(t, managerID, *decoded.ManagerID)
}

func TestForwarder_HandleLogsPublishFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	f := newForwarder(&recordingPublisher{err: errors.New("nats: connection closed")}, "s", logger)

	f.Handle(&events.HierarchyChanged{OrganizationID: uuid.New(), ChangeType: events.ChangeDeleted})

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "failed to forward hierarchy event", hook.LastEntry().Message)
	assert.NoError(t, f.Close())
}

func TestForwarder_Dispatch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	f := newForwarder(pub, "feedback.hierarchy.changed", logger)
	orgID := uuid.New()

	err := f.Dispatch(context.Background(), outbox.Envelope{Message: outbox.Message{
		OrganizationID: orgID,
		Topic:          events.Topic,
		EventID:        uuid.New(),
		Payload:        json.RawMessage(`{"change_type":"created"}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, pub.flushes)
	assert.Equal(t, []string{"feedback.hierarchy.changed." + orgID.String()}, pub.subjects)
	assert.JSONEq(t, `{"change_type":"created"}`, string(pub.payloads[0]))

	pub.err = errors.New("nats: timeout")
	err = f.Dispatch(context.Background(), outbox.Envelope{Message: outbox.Message{OrganizationID: orgID}})
	require.ErrorContains(t, err, "nats: timeout")
}

func TestForwarder_DispatchFlushFailureIsRetried(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{flushErr: errors.New("nats: flush timeout")}
	f := newForwarder(pub, "feedback.hierarchy.changed", logger)
	orgID, eventID := uuid.New(), uuid.New()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()
	relay, err := outbox.NewRelay(pool, pgx.Identifier{"hierarchy_outbox"}, f, outbox.RelayOptions{
		Rand:      rand.New(rand.NewSource(1)),
		JitterMax: -1,
	})
	require.NoError(t, err)

	pool.ExpectBegin()
	pool.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"organization_id", "topic", "payload", "event_id", "sequence", "attempts"}).
			AddRow(orgID, events.Topic, []byte(`{"change_type":"created"}`), eventID, int64(1), 0))
	pool.ExpectExec(`SET locked_at = \$1`).WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectCommit()
	// The message was buffered but never confirmed, so it goes back for a retry
	// instead of being acked.
	pool.ExpectExec(`SET locked_at = NULL, last_error = \$2, available_at = \$3`).
		WithArgs(eventID, "flush feedback.hierarchy.changed."+orgID.String()+": nats: flush timeout", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	delivered, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Len(t, pub.subjects, 1)
	assert.Equal(t, 1, pub.flushes)
	require.NoError(t, pool.ExpectationsWereMet())
}
