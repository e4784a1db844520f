package modules

import (
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/feedback-hub/modules/core"
	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/hierarchy"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/infrastructure/natsbridge"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
)

// Dependencies are the shared runtime pieces every built-in module may need.
type Dependencies struct {
	Config    *configuration.Configuration
	Roles     *role.Hierarchy
	Authz     *authz.Service
	Redis     redis.UniversalClient
	Forwarder *natsbridge.Forwarder
}

func BuiltInModules(deps Dependencies) []application.Module {
	return []application.Module{
		core.NewModule(&core.ModuleOptions{
			Roles: deps.Roles,
			Authz: deps.Authz,
		}),
		hierarchy.NewModule(&hierarchy.ModuleOptions{
			Config:    deps.Config.Hierarchy,
			Roles:     deps.Roles,
			Authz:     deps.Authz,
			Redis:     deps.Redis,
			Forwarder: deps.Forwarder,
			Outbox:    deps.Config.Outbox.Enabled,
		}),
	}
}
