package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic names HierarchyChanged rows in the outbox.
const Topic = "hierarchy.changed"

type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// HierarchyChanged is published after a reporting line was committed.
type HierarchyChanged struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	EmployeeID     uuid.UUID  `json:"employee_id"`
	EdgeID         uuid.UUID  `json:"edge_id"`
	ManagerID      *uuid.UUID `json:"manager_id"`
	ChangeType     ChangeType `json:"change_type"`
	OccurredAt     time.Time  `json:"occurred_at"`
}
