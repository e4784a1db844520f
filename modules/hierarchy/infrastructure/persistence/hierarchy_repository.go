package persistence

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/composables"
)

const (
	nodeColumns = `
			u.id,
			u.name,
			u.email,
			COALESCE(u.title, ''),
			COALESCE(u.department, ''),
			u.role,
			h.manager_id,
			h.id`

	edgeColumns = `id, organization_id, employee_id, manager_id, is_active, effective_date, end_date, level`

	directReportsQuery = `
		SELECT` + nodeColumns + `
		FROM organizational_hierarchy h
		JOIN users u ON u.id = h.employee_id AND u.organization_id = h.organization_id
		WHERE h.organization_id = $1 AND h.manager_id = $2 AND h.is_active
		ORDER BY lower(u.name), u.id`

	activeNodesQuery = `
		SELECT` + nodeColumns + `
		FROM organizational_hierarchy h
		JOIN users u ON u.id = h.employee_id AND u.organization_id = h.organization_id
		WHERE h.organization_id = $1 AND h.is_active`

	managerChainQuery = `
		WITH RECURSIVE chain (user_id, depth, path) AS (
			SELECT h.manager_id, 1, ARRAY[h.employee_id, h.manager_id]
			FROM organizational_hierarchy h
			WHERE h.organization_id = $1 AND h.employee_id = $2 AND h.is_active AND h.manager_id IS NOT NULL
			UNION ALL
			SELECT h.manager_id, c.depth + 1, c.path || h.manager_id
			FROM organizational_hierarchy h
			JOIN chain c ON h.employee_id = c.user_id
			WHERE h.organization_id = $1
			  AND h.is_active
			  AND h.manager_id IS NOT NULL
			  AND NOT h.manager_id = ANY (c.path)
			  AND c.depth < $3
		)
		SELECT` + nodeColumns + `,
			c.depth
		FROM chain c
		JOIN users u ON u.id = c.user_id AND u.organization_id = $1
		LEFT JOIN organizational_hierarchy h
			ON h.organization_id = $1 AND h.employee_id = c.user_id AND h.is_active
		ORDER BY c.depth`

	searchQuery = `
		SELECT` + nodeColumns + `
		FROM users u
		LEFT JOIN organizational_hierarchy h
			ON h.organization_id = u.organization_id AND h.employee_id = u.id AND h.is_active
		WHERE u.organization_id = $1
		  AND (u.name ILIKE $2 ESCAPE '\' OR u.email ILIKE $2 ESCAPE '\')
		  AND ($3 = '' OR u.role = $3 OR EXISTS (
				SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role = $3))
		  AND NOT (u.id = ANY ($4::uuid[]))
		ORDER BY lower(u.name), u.id
		LIMIT $5`

	countMembersQuery = `
		SELECT count(DISTINCT u.id)
		FROM users u
		WHERE u.organization_id = $1 AND u.id = ANY ($2::uuid[])`

	ancestorsQuery = `
		WITH RECURSIVE up (user_id, path) AS (
			SELECT $2::uuid, ARRAY[$2::uuid]
			UNION ALL
			SELECT h.manager_id, up.path || h.manager_id
			FROM organizational_hierarchy h
			JOIN up ON h.employee_id = up.user_id
			WHERE h.organization_id = $1
			  AND h.is_active
			  AND h.manager_id IS NOT NULL
			  AND NOT h.manager_id = ANY (up.path)
		)
		SELECT user_id FROM up`

	activeEdgesQuery = `
		SELECT ` + edgeColumns + `
		FROM organizational_hierarchy
		WHERE organization_id = $1 AND is_active
		ORDER BY employee_id, effective_date`

	lockOrganizationQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`

	insertEdgeQuery = `
		INSERT INTO organizational_hierarchy (organization_id, employee_id, manager_id)
		VALUES ($1, $2, $3)
		RETURNING ` + edgeColumns

	lockActiveEdgeQuery = `
		SELECT ` + edgeColumns + `
		FROM organizational_hierarchy
		WHERE organization_id = $1 AND id = $2 AND is_active
		FOR UPDATE`

	updateEdgeManagerQuery = `
		UPDATE organizational_hierarchy
		SET manager_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + edgeColumns

	deactivateEdgeQuery = `
		UPDATE organizational_hierarchy
		SET is_active = false, end_date = now(), updated_at = now()
		WHERE organization_id = $1 AND id = $2 AND is_active
		RETURNING ` + edgeColumns

	upsertActiveEdgeQuery = `
		INSERT INTO organizational_hierarchy (organization_id, employee_id, manager_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, employee_id) WHERE is_active
		DO UPDATE SET manager_id = EXCLUDED.manager_id, updated_at = now()
		RETURNING ` + edgeColumns + `, (xmax = 0)`

	statsQuery = `
		SELECT total_relationships, max_depth, average_span_of_control::text, orphaned_employees
		FROM get_hierarchy_stats($1)`
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type PgHierarchyRepository struct{}

func NewHierarchyRepository() services.HierarchyRepository {
	return &PgHierarchyRepository{}
}

func (g *PgHierarchyRepository) ListDirectReports(ctx context.Context, orgID, managerID uuid.UUID) ([]hierarchy.Node, error) {
	nodes, err := g.queryNodes(ctx, directReportsQuery, orgID, managerID)
	if err != nil {
		return nil, errors.Wrapf(err, "direct reports of %s", managerID)
	}
	return nodes, nil
}

func (g *PgHierarchyRepository) ManagerChain(ctx context.Context, orgID, employeeID uuid.UUID, maxDepth int) ([]services.ChainLink, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, managerChainQuery, orgID, employeeID, maxDepth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query manager chain")
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (services.ChainLink, error) {
		var link services.ChainLink
		dest := append(nodeDest(&link.Node), &link.Depth)
		err := row.Scan(dest...)
		return link, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan manager chain")
	}
	return links, nil
}

func (g *PgHierarchyRepository) ListActiveNodes(ctx context.Context, orgID uuid.UUID) ([]hierarchy.Node, error) {
	nodes, err := g.queryNodes(ctx, activeNodesQuery, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "active hierarchy nodes")
	}
	return nodes, nil
}

func (g *PgHierarchyRepository) SearchEmployees(ctx context.Context, params services.SearchParams, limit int) ([]hierarchy.Node, error) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(params.Query)) + "%"
	exclude := params.ExcludeIDs
	if exclude == nil {
		exclude = []uuid.UUID{}
	}
	nodes, err := g.queryNodes(ctx, searchQuery, params.OrganizationID, pattern, params.Role, exclude, limit)
	if err != nil {
		return nil, errors.Wrap(err, "employee search")
	}
	return nodes, nil
}

func (g *PgHierarchyRepository) CountMembers(ctx context.Context, orgID uuid.UUID, userIDs []uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get transaction")
	}
	var count int
	if err := tx.QueryRow(ctx, countMembersQuery, orgID, userIDs).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count organization members")
	}
	return count, nil
}

func (g *PgHierarchyRepository) Ancestors(ctx context.Context, orgID, userID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, ancestorsQuery, orgID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query ancestors")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan ancestors")
	}
	return ids, nil
}

func (g *PgHierarchyRepository) ActiveEdges(ctx context.Context, orgID uuid.UUID) ([]hierarchy.Edge, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, activeEdgesQuery, orgID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query active edges")
	}
	edges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (hierarchy.Edge, error) {
		var e hierarchy.Edge
		err := row.Scan(edgeDest(&e)...)
		return e, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan active edges")
	}
	return edges, nil
}

func (g *PgHierarchyRepository) LockOrganization(ctx context.Context, orgID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, lockOrganizationQuery, orgID.String()); err != nil {
		return errors.Wrap(err, "failed to lock organization hierarchy")
	}
	return nil
}

func (g *PgHierarchyRepository) InsertEdge(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error) {
	return g.queryEdge(ctx, insertEdgeQuery, orgID, employeeID, managerID)
}

func (g *PgHierarchyRepository) LockActiveEdge(ctx context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error) {
	return g.queryEdge(ctx, lockActiveEdgeQuery, orgID, edgeID)
}

func (g *PgHierarchyRepository) UpdateEdgeManager(ctx context.Context, edgeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, error) {
	return g.queryEdge(ctx, updateEdgeManagerQuery, edgeID, managerID)
}

func (g *PgHierarchyRepository) DeactivateEdge(ctx context.Context, orgID, edgeID uuid.UUID) (*hierarchy.Edge, error) {
	return g.queryEdge(ctx, deactivateEdgeQuery, orgID, edgeID)
}

func (g *PgHierarchyRepository) UpsertActiveEdge(ctx context.Context, orgID, employeeID uuid.UUID, managerID *uuid.UUID) (*hierarchy.Edge, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get transaction")
	}
	var e hierarchy.Edge
	var inserted bool
	dest := append(edgeDest(&e), &inserted)
	if err := tx.QueryRow(ctx, upsertActiveEdgeQuery, orgID, employeeID, managerID).Scan(dest...); err != nil {
		return nil, false, err
	}
	return &e, inserted, nil
}

func (g *PgHierarchyRepository) Stats(ctx context.Context, orgID uuid.UUID) (*hierarchy.Stats, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	var (
		stats hierarchy.Stats
		span  string
	)
	if err := tx.QueryRow(ctx, statsQuery, orgID).Scan(
		&stats.TotalRelationships,
		&stats.MaxDepth,
		&span,
		&stats.OrphanedEmployees,
	); err != nil {
		return nil, errors.Wrap(err, "failed to query hierarchy stats")
	}
	stats.AverageSpanOfControl, err = decimal.NewFromString(span)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid span of control %q", span)
	}
	return &stats, nil
}

// queryEdge leaves errors unwrapped so callers can map pg error codes.
func (g *PgHierarchyRepository) queryEdge(ctx context.Context, query string, args ...any) (*hierarchy.Edge, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	var e hierarchy.Edge
	if err := tx.QueryRow(ctx, query, args...).Scan(edgeDest(&e)...); err != nil {
		return nil, err
	}
	return &e, nil
}

func (g *PgHierarchyRepository) queryNodes(ctx context.Context, query string, args ...any) ([]hierarchy.Node, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query nodes")
	}
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (hierarchy.Node, error) {
		var n hierarchy.Node
		err := row.Scan(nodeDest(&n)...)
		return n, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan nodes")
	}
	return nodes, nil
}

func nodeDest(n *hierarchy.Node) []any {
	return []any{&n.EmployeeID, &n.Name, &n.Email, &n.Title, &n.Department, &n.Role, &n.ManagerID, &n.EdgeID}
}

func edgeDest(e *hierarchy.Edge) []any {
	return []any{&e.ID, &e.OrganizationID, &e.EmployeeID, &e.ManagerID, &e.IsActive, &e.EffectiveDate, &e.EndDate, &e.Level}
}
