package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	coreevents "github.com/iota-uz/feedback-hub/modules/core/domain/events"
	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/events"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/infrastructure/natsbridge"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/infrastructure/persistence"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/presentation/controllers"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
)

type ModuleOptions struct {
	Config    configuration.HierarchyOptions
	Roles     *role.Hierarchy
	Authz     *authz.Service
	Redis     redis.UniversalClient
	Forwarder *natsbridge.Forwarder
	// Outbox stores change events in hierarchy_outbox; the relay then owns
	// NATS delivery instead of the in-process forwarder.
	Outbox bool
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
		return errors.New("hierarchy: authz service is required")
	}
	roles := m.options.Roles
	if roles == nil {
		roles = role.DefaultHierarchy()
	}
	cache, err := m.treeCache()
	if err != nil {
		return err
	}

	repo := persistence.NewHierarchyRepository()
	serviceOpts := services.Options{
		MaxChainDepth: m.options.Config.MaxChainDepth,
		SearchLimit:   m.options.Config.SearchLimit,
		Cache:         cache,
	}
	if m.options.Outbox {
		serviceOpts.Recorder = persistence.NewOutboxRecorder()
	}
	hierarchyService := services.NewHierarchyService(repo, app.EventPublisher(), serviceOpts)
	validator := services.NewHierarchyValidator(repo, m.options.Config.DepthWarningThreshold)

	if bus := app.EventPublisher(); bus != nil {
		bus.Subscribe(func(e *events.HierarchyChanged) {
			cache.Invalidate(context.Background(), e.OrganizationID, string(e.ChangeType))
		})
		// Nodes carry users.role, so a role change stales the tree too.
		bus.Subscribe(func(e *coreevents.UserRolesChanged) {
			cache.Invalidate(context.Background(), e.OrganizationID, "roles_changed")
		})
		if m.options.Forwarder != nil && !m.options.Outbox {
			bus.Subscribe(m.options.Forwarder.Handle)
		}
	}

	app.RegisterServices(hierarchyService, validator)
	app.RegisterControllers(controllers.NewHierarchyAPIController(
		hierarchyService,
		validator,
		m.options.Authz,
		roles.Top().Name,
	))
	return nil
}

func (m *Module) Name() string {
	return "hierarchy"
}

func (m *Module) treeCache() (services.TreeCache, error) {
	cfg := m.options.Config
	switch cfg.TreeCache {
	case "", "none":
		return services.NewNoopTreeCache(), nil
	case "memory":
		return services.NewMemoryTreeCache(cfg.TreeCacheTTL), nil
	case "redis":
		if m.options.Redis == nil {
			return nil, errors.New("hierarchy: redis tree cache selected without a redis client")
		}
		return services.NewRedisTreeCache(m.options.Redis, cfg.TreeCacheTTL), nil
	default:
		return nil, fmt.Errorf("hierarchy: unknown tree cache %q", cfg.TreeCache)
	}
}
