package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/feedback-hub/modules/core/domain/user"
	"github.com/iota-uz/feedback-hub/modules/core/services"
	"github.com/iota-uz/feedback-hub/pkg/composables"
)

const (
	userFindQuery = `
		SELECT
			u.id,
			u.organization_id,
			u.name,
			u.email,
			COALESCE(u.title, ''),
			COALESCE(u.department, ''),
			u.role
		FROM users u`

	userRolesQuery = `
		SELECT role FROM (
			SELECT ur.role FROM user_roles ur WHERE ur.user_id = $1
			UNION
			SELECT u.role FROM users u WHERE u.id = $1
		) r
		ORDER BY role`

	userAdminOrganizationsQuery = `
		SELECT organization_id
		FROM user_admin_organizations
		WHERE user_id = $1
		ORDER BY organization_id`

	userRoleDeleteQuery     = `DELETE FROM user_roles WHERE user_id = $1`
	userRoleInsertQuery     = `INSERT INTO user_roles (user_id, role) SELECT $1, unnest($2::text[])`
	userPrimaryRoleQuery    = `UPDATE users SET role = $2 WHERE id = $1`
	userAdminOrgDeleteQuery = `DELETE FROM user_admin_organizations WHERE user_id = $1`
	userAdminOrgInsertQuery = `INSERT INTO user_admin_organizations (user_id, organization_id) SELECT $1, unnest($2::uuid[])`
)

type PgUserRepository struct{}

func NewUserRepository() services.UserRepository {
	return &PgUserRepository{}
}

func (g *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, err := g.queryUser(ctx, userFindQuery+" WHERE u.id = $1", id)
	if err != nil {
		return nil, errors.Wrapf(err, "user %s", id)
	}
	return u, nil
}

func (g *PgUserRepository) GetByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*user.User, error) {
	u, err := g.queryUser(ctx, userFindQuery+" WHERE u.organization_id = $1 AND lower(u.email) = lower($2)", organizationID, email)
	if err != nil {
		return nil, errors.Wrapf(err, "user with email %s", email)
	}
	return u, nil
}

func (g *PgUserRepository) ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, userRolesQuery, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query user roles")
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan user roles")
	}
	return roles, nil
}

func (g *PgUserRepository) ListAdminOrganizations(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, userAdminOrganizationsQuery, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query admin organizations")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan admin organizations")
	}
	return ids, nil
}

func (g *PgUserRepository) ReplaceRoles(ctx context.Context, userID uuid.UUID, roles []string, primary string) error {
	if err := g.execQuery(ctx, userRoleDeleteQuery, userID); err != nil {
		return errors.Wrapf(err, "failed to delete existing roles for user %s", userID)
	}
	if len(roles) > 0 {
		if err := g.execQuery(ctx, userRoleInsertQuery, userID, roles); err != nil {
			return errors.Wrapf(err, "failed to insert roles for user %s", userID)
		}
	}
	if err := g.execQuery(ctx, userPrimaryRoleQuery, userID, primary); err != nil {
		return errors.Wrapf(err, "failed to update primary role for user %s", userID)
	}
	return nil
}

func (g *PgUserRepository) ReplaceAdminOrganizations(ctx context.Context, userID uuid.UUID, organizationIDs []uuid.UUID) error {
	if err := g.execQuery(ctx, userAdminOrgDeleteQuery, userID); err != nil {
		return errors.Wrapf(err, "failed to delete admin organizations for user %s", userID)
	}
	if len(organizationIDs) == 0 {
		return nil
	}
	if err := g.execQuery(ctx, userAdminOrgInsertQuery, userID, organizationIDs); err != nil {
		return errors.Wrapf(err, "failed to insert admin organizations for user %s", userID)
	}
	return nil
}

func (g *PgUserRepository) queryUser(ctx context.Context, query string, args ...any) (*user.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	var u user.User
	if err := tx.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.OrganizationID,
		&u.Name,
		&u.Email,
		&u.Title,
		&u.Department,
		&u.Role,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func (g *PgUserRepository) execQuery(ctx context.Context, query string, args ...any) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to execute query")
	}
	return nil
}
