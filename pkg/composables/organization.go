package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/feedback-hub/pkg/constants"
)

var ErrNoOrganization = errors.New("organization not found in context")

func WithOrganizationID(ctx context.Context, organizationID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.OrganizationIDKey, organizationID)
}

func UseOrganizationID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(constants.OrganizationIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoOrganization
	}
	return id, nil
}

// InOrganizationTx is InTx with the organization bound to the transaction context.
func InOrganizationTx[T any](ctx context.Context, organizationID uuid.UUID, fn func(context.Context) (T, error)) (T, error) {
	return InTxResult(WithOrganizationID(ctx, organizationID), fn)
}
