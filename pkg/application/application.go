package application

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/pkg/eventbus"
	"github.com/iota-uz/feedback-hub/pkg/repo"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

type Module interface {
	Register(app Application) error
	Name() string
}

// Application is the registry modules use to expose services and controllers.
type Application interface {
	DB() repo.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...any)
	Service(service any) any
}

type ApplicationOptions struct {
	Pool     repo.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]any),
	}
}

type application struct {
	pool           repo.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]any
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
}

func (app *application) DB() repo.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// Controllers are returned sorted by key so routes register deterministically.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Controller, 0, len(keys))
	for _, k := range keys {
		out = append(out, app.controllers[k])
	}
	return out
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers pointers to services keyed by their element type.
func (app *application) RegisterServices(services ...any) {
	for _, service := range services {
		app.services[reflect.TypeOf(service).Elem()] = service
	}
}

// Service retrieves a service by the type of the zero value passed in.
func (app *application) Service(service any) any {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

// Load registers modules in order, stopping at the first failure.
func Load(app Application, modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(app); err != nil {
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
	}
	return nil
}
