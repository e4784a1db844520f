package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

type fakeUser struct {
	orgID uuid.UUID
	name  string
	role  string
}

// fakeRepo is an in-memory HierarchyRepository. Edges are never removed,
// only retired, the same way the table keeps history.
type fakeRepo struct {
	users     map[uuid.UUID]fakeUser
	edges     []*hierarchy.Edge
	stats     *hierarchy.Stats
	listCalls int
	insertErr error
	// afterList runs once ListActiveNodes has taken its snapshot.
	afterList func()
	// calls logs organization locks and ancestor reads in order.
	calls []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: map[uuid.UUID]fakeUser{}}
}

func (r *fakeRepo) addUser(orgID uuid.UUID, name string) uuid.UUID {
	id := uuid.New()
	r.users[id] = fakeUser{orgID: orgID, name: name, role: "employee"}
	return id
}

func (r *fakeRepo) link(orgID, employeeID uuid.UUID, managerID *uuid.UUID) *hierarchy.Edge {
	edge := &hierarchy.Edge{
		ID:             uuid.New(),
		OrganizationID: orgID,
		EmployeeID:     employeeID,
		ManagerID:      managerID,
		IsActive:       true,
		EffectiveDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	r.edges = append(r.edges, edge)
	return edge
}

func (r *fakeRepo) activeEdge(orgID, employeeID uuid.UUID) *hierarchy.Edge {
	for _, e := range r.edges {
		if e.IsActive && e.OrganizationID == orgID && e.EmployeeID == employeeID {
			return e
		}
	}
	return nil
}

func (r *fakeRepo) activeCount(orgID uuid.UUID) int {
	n := 0
	for _, e := range r.edges {
		if e.IsActive && e.OrganizationID == orgID {
			n++
		}
	}
	return n
}

func (r *fakeRepo) node(id uuid.UUID, edge *hierarchy.Edge) hierarchy.Node {
	u := r.users[id]
	n := hierarchy.Node{EmployeeID: id, Name: u.name, Email: strings.ToLower(u.name) + "@example.com", Role: u.role}
	if edge != nil {
		edgeID := edge.ID
		n.EdgeID = &edgeID
		n.ManagerID = edge.ManagerID
	}
	return n
}

func (r *fakeRepo) ListDirectReports(_ context.Context, orgID, managerID uuid.UUID) ([]hierarchy.Node, error) {
	var out []hierarchy.Node
	for _, e := range r.edges {
		if e.IsActive && e.OrganizationID == orgID && e.ManagerID != nil && *e.ManagerID == managerID {
			out = append(out, r.node(e.EmployeeID, e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRepo) ManagerChain(_ context.Context, orgID, employeeID uuid.UUID, maxDepth int) ([]ChainLink, error) {
	var out []ChainLink
	seen := map[uuid.UUID]bool{employeeID: true}
	cur := r.activeEdge(orgID, employeeID)
	for depth := 1; cur != nil && cur.ManagerID != nil && depth <= maxDepth; depth++ {
		managerID := *cur.ManagerID
		if seen[managerID] {
			break
		}
		seen[managerID] = true
		next := r.activeEdge(orgID, managerID)
		out = append(out, ChainLink{Node: r.node(managerID, next), Depth: depth})
		cur = next
	}
	return out, nil
}

func (r *fakeRepo) ListActiveNodes(_ context.Context, orgID uuid.UUID) ([]hierarchy.Node, error) {
	r.listCalls++
	var out []hierarchy.Node
	for _, e := range r.edges {
		if e.IsActive && e.OrganizationID == orgID {
			out = append(out, r.node(e.EmployeeID, e))
		}
	}
	if r.afterList != nil {
		hook := r.afterList
		r.afterList = nil
		hook()
	}
	return out, nil
}

func (r *fakeRepo) LockOrganization(_ context.Context, orgID uuid.UUID) error {
	r.calls = append(r.calls, "lock:"+orgID.String())
	return nil
}

func (r *fakeRepo) SearchEmployees(_ context.Context, params SearchParams, limit int) ([]hierarchy.Node, error) {
	excluded := map[uuid.UUID]bool{}
	for _, id := range params.ExcludeIDs {
		excluded[id] = true
	}
	var out []hierarchy.Node
	for id, u := range r.users {
		if u.orgID != params.OrganizationID || excluded[id] {
			continue
		}
		if !strings.Contains(strings.ToLower(u.name), strings.ToLower(params.Query)) {
			continue
		}
		out = append(out, r.node(id, r.activeEdge(u.orgID, id)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) CountMembers(_ context.Context, orgID uuid.UUID, userIDs []uuid.UUID) (int, error) {
	seen := map[uuid.UUID]bool{}
	for _, id := range userIDs {
		if u, ok := r.users[id]; ok && u.orgID == orgID {
			seen[id] = true
		}
	}
	return len(seen), nil
}

func (r *fakeRepo) Ancestors(_ context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error) {
	r.calls = append(r.calls, "ancestors:"+userID.String())
	out := []uuid.UUID{userID}
	seen := map[uuid.UUID]bool{userID: true}
	cur := r.activeEdge(orgID, userID)
	for cur != nil && cur.ManagerID != nil && !seen[*cur.ManagerID] {
		seen[*cur.ManagerID] = true
		out = append(out, *cur.ManagerID)
		cur = r.activeEdge(orgID, *cur.ManagerID)
	}
	return out, nil
}

func (r *fakeRepo) ActiveEdges(_ context.Context, orgID uuid.UUID) ([]hierarchy.Edge, error) {
	var out []hierarchy.Edge
	for _, e := range r.edges {
		if e.IsActive && e.OrganizationID == orgID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *fakeRepo) InsertEdge(_ context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error) {
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	if r.activeEdge(orgID, employeeID) != nil {
		return nil, errors.New("duplicate active edge")
	}
	edge := *r.link(orgID, employeeID, managerID)
	return &edge, nil
}

func (r *fakeRepo) LockActiveEdge(_ context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error) {
	for _, e := range r.edges {
		if e.ID == edgeID && e.OrganizationID == orgID && e.IsActive {
			out := *e
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRepo) UpdateEdgeManager(_ context.Context, edgeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error) {
	for _, e := range r.edges {
		if e.ID == edgeID {
			e.ManagerID = managerID
			out := *e
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRepo) DeactivateEdge(_ context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error) {
	for _, e := range r.edges {
		if e.ID == edgeID && e.OrganizationID == orgID && e.IsActive {
			e.IsActive = false
			end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
			e.EndDate = &end
			out := *e
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeRepo) UpsertActiveEdge(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, bool, error) {
	if e := r.activeEdge(orgID, employeeID); e != nil {
		e.ManagerID = managerID
		out := *e
		return &out, false, nil
	}
	edge, err := r.InsertEdge(ctx, orgID, employeeID, managerID)
	return edge, err == nil, err
}

func (r *fakeRepo) Stats(_ context.Context, orgID uuid.UUID) (*hierarchy.Stats, error) {
	if r.stats != nil {
		out := *r.stats
		return &out, nil
	}
	return &hierarchy.Stats{TotalRelationships: int64(r.activeCount(orgID)), AverageSpanOfControl: decimal.Zero}, nil
}
