package events

import (
	"time"

	"github.com/google/uuid"
)

// UserRolesChanged is published after a grantor replaced a user's roles.
type UserRolesChanged struct {
	UserID               uuid.UUID
	OrganizationID       uuid.UUID
	GrantorID            uuid.UUID
	Roles                []string
	AdminOrganizationIDs []uuid.UUID
	OccurredAt           time.Time
}
