package services

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules/core/domain/events"
	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/core/domain/user"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/constants"
	"github.com/iota-uz/feedback-hub/pkg/eventbus"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, organizationID uuid.UUID, email string) (*user.User, error)
	ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	ListAdminOrganizations(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ReplaceRoles(ctx context.Context, userID uuid.UUID, roles []string, primary string) error
	ReplaceAdminOrganizations(ctx context.Context, userID uuid.UUID, organizationIDs []uuid.UUID) error
}

type AssignRolesInput struct {
	UserID               uuid.UUID   `json:"-" validate:"required"`
	Roles                []string    `json:"roles" validate:"required,min=1,dive,required,max=64"`
	AdminOrganizationIDs []uuid.UUID `json:"admin_organization_ids"`
}

type RoleAssignment struct {
	UserID               uuid.UUID   `json:"user_id"`
	OrganizationID       uuid.UUID   `json:"organization_id"`
	Roles                []string    `json:"roles"`
	AdminOrganizationIDs []uuid.UUID `json:"admin_organization_ids"`
}

type UserRoleService struct {
	repo      UserRepository
	guard     *PrivilegeGuard
	publisher eventbus.EventBus
	now       func() time.Time
}

func NewUserRoleService(repo UserRepository, guard *PrivilegeGuard, publisher eventbus.EventBus) *UserRoleService {
	return &UserRoleService{
		repo:      repo,
		guard:     guard,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *UserRoleService) Guard() *PrivilegeGuard {
	return s.guard
}

// GrantorContext loads the roles and admin scope of userID.
func (s *UserRoleService) GrantorContext(ctx context.Context, userID uuid.UUID) (GrantorContext, error) {
	roles, err := s.repo.ListRoles(ctx, userID)
	if err != nil {
		return GrantorContext{}, err
	}
	orgs, err := s.repo.ListAdminOrganizations(ctx, userID)
	if err != nil {
		return GrantorContext{}, err
	}
	top := s.guard.Roles().Top().Name
	isSuperAdmin := false
	for _, r := range roles {
		if role.Normalize(r) == top {
			isSuperAdmin = true
			break
		}
	}
	return GrantorContext{
		UserID:               userID,
		Roles:                roles,
		IsSuperAdmin:         isSuperAdmin,
		AdminOrganizationIDs: orgs,
	}, nil
}

// Actor resolves a user id into the acting identity for a request.
func (s *UserRoleService) Actor(ctx context.Context, userID uuid.UUID) (*composables.Actor, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	roles, err := s.repo.ListRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &composables.Actor{ID: u.ID, OrganizationID: u.OrganizationID, Roles: roles}, nil
}

// AssignRoles replaces the grantee's roles and admin organizations after
// running every privilege check against the grantor.
func (s *UserRoleService) AssignRoles(ctx context.Context, grantorID uuid.UUID, in AssignRolesInput) (*RoleAssignment, error) {
	if grantorID == uuid.Nil {
		return nil, newServiceError(http.StatusUnauthorized, CodeUnauthenticated, "acting user is required", nil)
	}
	in.Roles = normalizeRoles(in.Roles)
	in.AdminOrganizationIDs = dedupeIDs(in.AdminOrganizationIDs)
	if err := constants.Validate.Struct(in); err != nil {
		return nil, newServiceError(http.StatusBadRequest, CodeInvalidBody, err.Error(), nil)
	}

	logger := composables.UseLogger(ctx).WithFields(logrus.Fields{
		"grantor_id": grantorID,
		"user_id":    in.UserID,
	})

	result, err := composables.InTxResult(ctx, func(txCtx context.Context) (*RoleAssignment, error) {
		grantor, err := s.GrantorContext(txCtx, grantorID)
		if err != nil {
			return nil, err
		}
		grantee, err := s.repo.GetByID(txCtx, in.UserID)
		if err != nil {
			return nil, mapPgError(err)
		}
		if !grantor.IsSuperAdmin && !containsID(grantor.AdminOrganizationIDs, grantee.OrganizationID) {
			return nil, newServiceError(http.StatusForbidden, CodePrivilegeOrgScope, "user belongs to an organization you do not administer", nil)
		}
		if err := s.guard.ValidateRoleAssignment(in.Roles, grantor); err != nil {
			return nil, err
		}
		if err := s.guard.ValidateAdminRoleRequirements(in.Roles, in.AdminOrganizationIDs); err != nil {
			return nil, err
		}
		if err := s.guard.ValidateAdminOrganizations(in.AdminOrganizationIDs, grantor); err != nil {
			return nil, err
		}

		primary := s.guard.Roles().Highest(in.Roles).Name
		if err := s.repo.ReplaceRoles(txCtx, in.UserID, in.Roles, primary); err != nil {
			return nil, mapPgError(err)
		}
		if err := s.repo.ReplaceAdminOrganizations(txCtx, in.UserID, in.AdminOrganizationIDs); err != nil {
			return nil, mapPgError(err)
		}
		return &RoleAssignment{
			UserID:               in.UserID,
			OrganizationID:       grantee.OrganizationID,
			Roles:                in.Roles,
			AdminOrganizationIDs: in.AdminOrganizationIDs,
		}, nil
	})
	if err != nil {
		logger.WithError(err).Warn("role assignment rejected")
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(&events.UserRolesChanged{
			UserID:               result.UserID,
			OrganizationID:       result.OrganizationID,
			GrantorID:            grantorID,
			Roles:                result.Roles,
			AdminOrganizationIDs: result.AdminOrganizationIDs,
			OccurredAt:           s.now().UTC(),
		})
	}
	logger.WithField("roles", result.Roles).Info("roles assigned")
	return result, nil
}

func normalizeRoles(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		n := role.Normalize(r)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func dedupeIDs(in []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(in))
	out := make([]uuid.UUID, 0, len(in))
	for _, id := range in {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
