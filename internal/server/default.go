package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/feedback-hub/modules/core"
	coreservices "github.com/iota-uz/feedback-hub/modules/core/services"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/configuration"
	"github.com/iota-uz/feedback-hub/pkg/constants"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
	"github.com/iota-uz/feedback-hub/pkg/metrics"
	"github.com/iota-uz/feedback-hub/pkg/middleware"
	"github.com/iota-uz/feedback-hub/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),

		middleware.TracedMiddleware("database"),
		middleware.Provide(constants.AppKey, app),
		middleware.ProvidePool(options.Pool),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CORSAllowedOrigins()...),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		var err error

		switch conf.RateLimit.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
			}),
		)
	}

	roleService := app.Service(coreservices.UserRoleService{}).(*coreservices.UserRoleService)
	middlewares = append(middlewares,
		middleware.TracedMiddleware("actor"),
		middleware.ProvideActor(conf.UserIDHeader, core.ActorResolver(roleService)),
	)

	app.RegisterMiddleware(middlewares...)
	app.RegisterControllers(NewHealthController(options.Pool))
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	serverInstance := server.NewHTTPServer(
		app,
		http.HandlerFunc(notFound),
		http.HandlerFunc(methodNotAllowed),
	)
	return serverInstance, nil
}

func notFound(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteRequestError(w, http.StatusNotFound, composables.UseRequestID(r.Context()), "NOT_FOUND", "route not found")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = httpapi.WriteRequestError(w, http.StatusMethodNotAllowed, composables.UseRequestID(r.Context()), "METHOD_NOT_ALLOWED", "method not allowed")
}
