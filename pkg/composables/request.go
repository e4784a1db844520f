package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/pkg/constants"
)

var ErrNoActor = errors.New("acting user not found in context")

// Actor is the user on whose behalf a request runs. It is resolved by an
// upstream gateway; this service only trusts the forwarded identity.
type Actor struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Roles          []string
}

func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, constants.UserKey, actor)
}

func UseActor(ctx context.Context) (*Actor, error) {
	actor, ok := ctx.Value(constants.UserKey).(*Actor)
	if !ok || actor == nil {
		return nil, ErrNoActor
	}
	return actor, nil
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the request logger, or the standard logger outside of a request.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) string {
	id, _ := ctx.Value(constants.RequestIDKey).(string)
	return id
}
