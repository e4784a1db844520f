package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/constants"
	"github.com/iota-uz/feedback-hub/pkg/eventbus"
)

const (
	DefaultMaxChainDepth = 20
	DefaultSearchLimit   = 20
)

type Options struct {
	MaxChainDepth int
	SearchLimit   int
	Cache         TreeCache
	// Recorder, when set, stores every change event in the writing
	// transaction for later relay.
	Recorder EventRecorder
}

type HierarchyService struct {
	repo      HierarchyRepository
	publisher eventbus.EventBus
	cache     TreeCache
	opts      Options
	now       func() time.Time
}

func NewHierarchyService(repo HierarchyRepository, publisher eventbus.EventBus, opts Options) *HierarchyService {
	if opts.MaxChainDepth <= 0 {
		opts.MaxChainDepth = DefaultMaxChainDepth
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewNoopTreeCache()
	}
	return &HierarchyService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *HierarchyService) Cache() TreeCache {
	return s.cache
}

func (s *HierarchyService) GetDirectReports(ctx context.Context, orgID, managerID uuid.UUID) ([]hierarchy.Node, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	nodes, err := s.repo.ListDirectReports(ctx, orgID, managerID)
	if err != nil {
		return nil, err
	}
	return withChildren(nodes), nil
}

// GetManagerChain returns the ancestors of employeeID, root first. Chains
// longer than the depth ceiling are cut off without an error.
func (s *HierarchyService) GetManagerChain(ctx context.Context, orgID, employeeID uuid.UUID) ([]hierarchy.Node, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	links, err := s.repo.ManagerChain(ctx, orgID, employeeID, s.opts.MaxChainDepth)
	if err != nil {
		return nil, err
	}
	if len(links) > s.opts.MaxChainDepth {
		links = links[:s.opts.MaxChainDepth]
	}
	if n := len(links); n == s.opts.MaxChainDepth && links[n-1].Node.ManagerID != nil {
		chainTruncated.Inc()
		composables.UseLogger(ctx).WithFields(logrus.Fields{
			"organization_id": orgID,
			"employee_id":     employeeID,
			"max_depth":       s.opts.MaxChainDepth,
		}).Warn("manager chain truncated at depth ceiling")
	}

	out := make([]hierarchy.Node, 0, len(links))
	for i := len(links) - 1; i >= 0; i-- {
		out = append(out, links[i].Node)
	}
	return withChildren(out), nil
}

// GetHierarchyTree returns the organization's full reporting forest.
func (s *HierarchyService) GetHierarchyTree(ctx context.Context, orgID uuid.UUID) ([]*hierarchy.Node, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	if forest, ok := s.cache.Get(ctx, orgID); ok {
		return forest, nil
	}
	gen := s.cache.Generation(ctx, orgID)
	nodes, err := s.repo.ListActiveNodes(ctx, orgID)
	if err != nil {
		return nil, err
	}
	forest := BuildForest(nodes)
	s.cache.Set(ctx, orgID, gen, forest)
	return forest, nil
}

func (s *HierarchyService) SearchEmployees(ctx context.Context, params SearchParams) ([]hierarchy.Node, error) {
	if err := requireOrganization(params.OrganizationID); err != nil {
		return nil, err
	}
	if params.ExcludeIDs == nil {
		params.ExcludeIDs = []uuid.UUID{}
	}
	nodes, err := s.repo.SearchEmployees(ctx, params, s.opts.SearchLimit)
	if err != nil {
		return nil, err
	}
	return withChildren(nodes), nil
}

// CreateHierarchy inserts a new active edge after rejecting self management,
// foreign users and reporting cycles.
func (s *HierarchyService) CreateHierarchy(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	if employeeID == uuid.Nil {
		return nil, newServiceError(http.StatusBadRequest, CodeInvalidBody, "employee_id is required", nil)
	}
	managerID = normalizeManager(managerID)

	var changed *events.HierarchyChanged
	edge, err := composables.InOrganizationTx(ctx, orgID, func(txCtx context.Context) (*hierarchy.Edge, error) {
		if err := s.repo.LockOrganization(txCtx, orgID); err != nil {
			return nil, mapPgError(err)
		}
		if err := s.checkAssignment(txCtx, orgID, employeeID, managerID); err != nil {
			return nil, err
		}
		edge, err := s.repo.InsertEdge(txCtx, orgID, employeeID, managerID)
		if err != nil {
			return nil, mapPgError(err)
		}
		changed, err = s.record(txCtx, edge, events.ChangeCreated)
		return edge, err
	})
	if err != nil {
		return nil, err
	}
	s.publish(changed)
	return edge, nil
}

// UpdateHierarchy repoints an active edge to a new manager.
func (s *HierarchyService) UpdateHierarchy(ctx context.Context, orgID, edgeID uuid.UUID, newManagerID *uuid.UUID) (*hierarchy.Edge, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	newManagerID = normalizeManager(newManagerID)

	var changed *events.HierarchyChanged
	edge, err := composables.InOrganizationTx(ctx, orgID, func(txCtx context.Context) (*hierarchy.Edge, error) {
		if err := s.repo.LockOrganization(txCtx, orgID); err != nil {
			return nil, mapPgError(err)
		}
		current, err := s.repo.LockActiveEdge(txCtx, orgID, edgeID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if err := s.checkAssignment(txCtx, orgID, current.EmployeeID, newManagerID); err != nil {
			return nil, err
		}
		updated, err := s.repo.UpdateEdgeManager(txCtx, edgeID, newManagerID)
		if err != nil {
			return nil, mapPgError(err)
		}
		changed, err = s.record(txCtx, updated, events.ChangeUpdated)
		return updated, err
	})
	if err != nil {
		return nil, err
	}
	s.publish(changed)
	return edge, nil
}

// DeleteHierarchy retires an edge. Missing or already retired edges are a no-op.
func (s *HierarchyService) DeleteHierarchy(ctx context.Context, orgID, edgeID uuid.UUID) error {
	if err := requireOrganization(orgID); err != nil {
		return err
	}
	changed, err := composables.InOrganizationTx(ctx, orgID, func(txCtx context.Context) (*events.HierarchyChanged, error) {
		edge, err := s.repo.DeactivateEdge(txCtx, orgID, edgeID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, mapPgError(err)
		}
		return s.record(txCtx, edge, events.ChangeDeleted)
	})
	if err != nil {
		return err
	}
	s.publish(changed)
	return nil
}

// BulkUpdateHierarchy upserts each relationship in its own transaction.
// Item failures are collected; the batch itself only fails on bad input.
func (s *HierarchyService) BulkUpdateHierarchy(ctx context.Context, orgID uuid.UUID, relationships []hierarchy.Relationship) (*hierarchy.BulkResult, error) {
	if err := requireOrganization(orgID); err != nil {
		return nil, err
	}
	logger := composables.UseLogger(ctx).WithField("organization_id", orgID)
	result := &hierarchy.BulkResult{Errors: []string{}}

	for _, rel := range relationships {
		if err := constants.Validate.Struct(rel); err != nil {
			recordBulkItem("failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: employee_id is required", rel.EmployeeID))
			continue
		}
		managerID := normalizeManager(rel.ManagerID)
		type upserted struct {
			changed  *events.HierarchyChanged
			inserted bool
		}
		out, err := composables.InOrganizationTx(ctx, orgID, func(txCtx context.Context) (upserted, error) {
			if err := s.repo.LockOrganization(txCtx, orgID); err != nil {
				return upserted{}, mapPgError(err)
			}
			if err := s.checkAssignment(txCtx, orgID, rel.EmployeeID, managerID); err != nil {
				return upserted{}, err
			}
			edge, inserted, err := s.repo.UpsertActiveEdge(txCtx, orgID, rel.EmployeeID, managerID)
			if err != nil {
				return upserted{}, mapPgError(err)
			}
			change := events.ChangeUpdated
			if inserted {
				change = events.ChangeCreated
			}
			changed, err := s.record(txCtx, edge, change)
			return upserted{changed: changed, inserted: inserted}, err
		})
		if err != nil {
			recordBulkItem("failed")
			logger.WithError(err).WithField("employee_id", rel.EmployeeID).Warn("bulk hierarchy item failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", rel.EmployeeID, errorMessage(err)))
			continue
		}
		if out.inserted {
			result.Created++
			recordBulkItem("created")
		} else {
			result.Updated++
			recordBulkItem("updated")
		}
		s.publish(out.changed)
	}
	return result, nil
}

// checkAssignment reads ancestors without row locks; callers must hold
// LockOrganization so two concurrent moves cannot both pass and close a loop.
func (s *HierarchyService) checkAssignment(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) error {
	if managerID != nil && *managerID == employeeID {
		return errSelfManagement()
	}
	members := []uuid.UUID{employeeID}
	if managerID != nil {
		members = append(members, *managerID)
	}
	count, err := s.repo.CountMembers(ctx, orgID, members)
	if err != nil {
		return err
	}
	if count != len(members) {
		return errUserNotFound()
	}
	if managerID == nil {
		return nil
	}
	ancestors, err := s.repo.Ancestors(ctx, orgID, *managerID)
	if err != nil {
		return err
	}
	for _, id := range ancestors {
		if id == employeeID {
			recordWriteConflict("cycle")
			return errCycle()
		}
	}
	return nil
}

// record builds the change event for edge and, with a Recorder configured,
// stores it alongside the write.
func (s *HierarchyService) record(ctx context.Context, edge *hierarchy.Edge, change events.ChangeType) (*events.HierarchyChanged, error) {
	e := &events.HierarchyChanged{
		ID:             uuid.New(),
		OrganizationID: edge.OrganizationID,
		EmployeeID:     edge.EmployeeID,
		EdgeID:         edge.ID,
		ManagerID:      edge.ManagerID,
		ChangeType:     change,
		OccurredAt:     s.now().UTC(),
	}
	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(ctx, e); err != nil {
			return nil, fmt.Errorf("record hierarchy change: %w", err)
		}
	}
	return e, nil
}

// publish notifies in-process subscribers once the change has committed.
func (s *HierarchyService) publish(e *events.HierarchyChanged) {
	if s.publisher == nil || e == nil {
		return
	}
	s.publisher.Publish(e)
}

func requireOrganization(orgID uuid.UUID) error {
	if orgID == uuid.Nil {
		return newServiceError(http.StatusBadRequest, CodeNoOrganization, "organization_id is required", nil)
	}
	return nil
}

func normalizeManager(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	v := *id
	return &v
}

func withChildren(nodes []hierarchy.Node) []hierarchy.Node {
	for i := range nodes {
		if nodes[i].Children == nil {
			nodes[i].Children = []*hierarchy.Node{}
		}
	}
	return nodes
}

func errorMessage(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return err.Error()
}
