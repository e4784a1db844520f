package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

// ChainLink is one ancestor in a manager chain; Depth 1 is the direct manager.
type ChainLink struct {
	Node  hierarchy.Node
	Depth int
}

type SearchParams struct {
	OrganizationID uuid.UUID   `form:"organization_id"`
	Query          string      `form:"q"`
	Role           string      `form:"role"`
	ExcludeIDs     []uuid.UUID `form:"exclude"`
}

type HierarchyRepository interface {
	ListDirectReports(ctx context.Context, orgID, managerID uuid.UUID) ([]hierarchy.Node, error)
	// ManagerChain returns at most maxDepth ancestors ordered by depth.
	ManagerChain(ctx context.Context, orgID, employeeID uuid.UUID, maxDepth int) ([]ChainLink, error)
	ListActiveNodes(ctx context.Context, orgID uuid.UUID) ([]hierarchy.Node, error)
	SearchEmployees(ctx context.Context, params SearchParams, limit int) ([]hierarchy.Node, error)
	CountMembers(ctx context.Context, orgID uuid.UUID, userIDs []uuid.UUID) (int, error)
	// Ancestors returns userID followed by every active ancestor, stopping at repeats.
	Ancestors(ctx context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error)
	ActiveEdges(ctx context.Context, orgID uuid.UUID) ([]hierarchy.Edge, error)
	// LockOrganization serializes hierarchy writes for orgID until the
	// surrounding transaction ends.
	LockOrganization(ctx context.Context, orgID uuid.UUID) error
	InsertEdge(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error)
	LockActiveEdge(ctx context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error)
	UpdateEdgeManager(ctx context.Context, edgeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error)
	// DeactivateEdge returns pgx.ErrNoRows when the edge is missing or already inactive.
	DeactivateEdge(ctx context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error)
	// UpsertActiveEdge reports true when a new edge was inserted.
	UpsertActiveEdge(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, bool, error)
	Stats(ctx context.Context, orgID uuid.UUID) (*hierarchy.Stats, error)
}

// EventRecorder persists a change event in the transaction carried by ctx.
type EventRecorder interface {
	Record(ctx context.Context, e *events.HierarchyChanged) error
}
