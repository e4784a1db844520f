package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/pkg/composables"
)

func newMockContext(t *testing.T) (context.Context, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return composables.WithPool(context.Background(), pool), pool
}

func TestPgUserRepository_GetByID(t *testing.T) {
	ctx, pool := newMockContext(t)
	id, orgID := uuid.New(), uuid.New()

	pool.ExpectQuery(`FROM users u WHERE u.id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "organization_id", "name", "email", "title", "department", "role"}).
			AddRow(id, orgID, "Ada", "ada@example.com", "CTO", "Engineering", "admin"))

	u, err := NewUserRepository().GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, orgID, u.OrganizationID)
	require.Equal(t, "Ada", u.Name)
	require.Equal(t, "admin", u.Role)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPgUserRepository_GetByIDNotFound(t *testing.T) {
	ctx, pool := newMockContext(t)
	id := uuid.New()

	pool.ExpectQuery(`FROM users u WHERE u.id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := NewUserRepository().GetByID(ctx, id)
	require.ErrorIs(t, err, pgx.ErrNoRows)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPgUserRepository_ListRolesAndOrganizations(t *testing.T) {
	ctx, pool := newMockContext(t)
	id, orgA := uuid.New(), uuid.New()

	pool.ExpectQuery(`SELECT role FROM`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"role"}).AddRow("admin").AddRow("employee"))
	pool.ExpectQuery(`FROM user_admin_organizations`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"organization_id"}).AddRow(orgA))

	repo := NewUserRepository()
	roles, err := repo.ListRoles(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "employee"}, roles)

	orgs, err := repo.ListAdminOrganizations(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{orgA}, orgs)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPgUserRepository_ReplaceRolesAndOrganizations(t *testing.T) {
	ctx, pool := newMockContext(t)
	id, orgA := uuid.New(), uuid.New()

	pool.ExpectExec(`DELETE FROM user_roles`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectExec(`INSERT INTO user_roles`).WithArgs(id, []string{"manager"}).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`UPDATE users SET role`).WithArgs(id, "manager").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	pool.ExpectExec(`DELETE FROM user_admin_organizations`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	pool.ExpectExec(`INSERT INTO user_admin_organizations`).WithArgs(id, []uuid.UUID{orgA}).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectExec(`DELETE FROM user_admin_organizations`).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	repo := NewUserRepository()
	require.NoError(t, repo.ReplaceRoles(ctx, id, []string{"manager"}, "manager"))
	require.NoError(t, repo.ReplaceAdminOrganizations(ctx, id, []uuid.UUID{orgA}))
	require.NoError(t, repo.ReplaceAdminOrganizations(ctx, id, nil))
	require.NoError(t, pool.ExpectationsWereMet())
}
