package services

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
)

// GrantorContext describes the acting user of a role or admin-scope assignment.
type GrantorContext struct {
	UserID               uuid.UUID
	Roles                []string
	IsSuperAdmin         bool
	AdminOrganizationIDs []uuid.UUID
}

// PrivilegeGuard rejects assignments that would let a grantor hand out
// privileges at or above their own.
type PrivilegeGuard struct {
	roles *role.Hierarchy
}

func NewPrivilegeGuard(roles *role.Hierarchy) *PrivilegeGuard {
	if roles == nil {
		roles = role.DefaultHierarchy()
	}
	return &PrivilegeGuard{roles: roles}
}

func (g *PrivilegeGuard) Roles() *role.Hierarchy {
	return g.roles
}

// ValidateRoleAssignment allows only roles strictly below the grantor's
// highest level. Roles outside the taxonomy are always allowed.
func (g *PrivilegeGuard) ValidateRoleAssignment(requested []string, grantor GrantorContext) error {
	highest := g.roles.Highest(grantor.Roles)
	for _, name := range requested {
		level, known := g.roles.Level(name)
		if !known {
			continue
		}
		if level >= highest.Level {
			return newServiceError(
				http.StatusForbidden,
				CodePrivilegeEscalation,
				fmt.Sprintf(
					"cannot assign role %q (level %d): grantor's highest role %q has level %d, only lower levels can be assigned",
					role.Normalize(name), level, highest.Name, highest.Level,
				),
				nil,
			)
		}
	}
	return nil
}

// ValidateAdminOrganizations requires every requested organization to be one
// the grantor administers. Super admins bypass the check.
func (g *PrivilegeGuard) ValidateAdminOrganizations(requested []uuid.UUID, grantor GrantorContext) error {
	if grantor.IsSuperAdmin {
		return nil
	}
	allowed := make(map[uuid.UUID]struct{}, len(grantor.AdminOrganizationIDs))
	for _, id := range grantor.AdminOrganizationIDs {
		allowed[id] = struct{}{}
	}
	var violations []string
	seen := make(map[uuid.UUID]struct{}, len(requested))
	for _, id := range requested {
		if _, ok := allowed[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		violations = append(violations, id.String())
	}
	if len(violations) == 0 {
		return nil
	}
	return newServiceError(
		http.StatusForbidden,
		CodePrivilegeOrgScope,
		fmt.Sprintf("cannot grant admin access to organizations you do not administer: %s", strings.Join(violations, ", ")),
		nil,
	)
}

// ValidateAdminRoleRequirements rejects an admin role without any organization.
func (g *PrivilegeGuard) ValidateAdminRoleRequirements(roles []string, organizationIDs []uuid.UUID) error {
	for _, name := range roles {
		if role.Normalize(name) == role.Admin && len(organizationIDs) == 0 {
			return newServiceError(
				http.StatusBadRequest,
				CodeAdminOrgsRequired,
				"admin role requires at least one organization",
				nil,
			)
		}
	}
	return nil
}
