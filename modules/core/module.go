package core

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/core/infrastructure/persistence"
	"github.com/iota-uz/feedback-hub/modules/core/presentation/controllers"
	"github.com/iota-uz/feedback-hub/modules/core/services"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/middleware"
)

type ModuleOptions struct {
	Roles *role.Hierarchy
	Authz *authz.Service
}

func NewModule(opts *ModuleOptions) application.Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.options.Authz == nil {
		return errors.New("core: authz service is required")
	}
	userRepo := persistence.NewUserRepository()
	guard := services.NewPrivilegeGuard(m.options.Roles)
	userRoleService := services.NewUserRoleService(userRepo, guard, app.EventPublisher())

	app.RegisterServices(userRoleService, guard)
	app.RegisterControllers(controllers.NewUserRolesAPIController(userRoleService, m.options.Authz))
	return nil
}

func (m *Module) Name() string {
	return "core"
}

// ActorResolver adapts the role service to the actor middleware.
func ActorResolver(svc *services.UserRoleService) middleware.ActorResolver {
	return func(ctx context.Context, userID uuid.UUID) (*composables.Actor, error) {
		actor, err := svc.Actor(ctx, userID)
		var svcErr *services.ServiceError
		if errors.As(err, &svcErr) && svcErr.Status == http.StatusNotFound {
			return nil, middleware.ErrActorNotFound
		}
		return actor, err
	}
}
