package server

import (
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/venuehq/venue-sdk/pkg/application"
	"github.com/venuehq/venue-sdk/pkg/configuration"
	"github.com/venuehq/venue-sdk/pkg/constants"
	"github.com/venuehq/venue-sdk/pkg/metrics"
	"github.com/venuehq/venue-sdk/pkg/middleware"
	"github.com/venuehq/venue-sdk/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

// Default assembles the standard middleware chain and the HTTP server. Order
// matters: logging and panic recovery wrap everything, rate limiting runs
// before tenant resolution so floods are shed cheaply, and tenant resolution
// guards every API route after it.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.LoggerOptions{}),
		middleware.Provide(constants.AppKey, app),
		middleware.WithPool(options.Pool),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		var err error

		switch conf.RateLimit.Storage {
		case "redis":
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("failed to create redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}))
	}

	middlewares = append(middlewares, middleware.TenantFromHeader())

	app.RegisterMiddleware(middlewares...)

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	return server.NewHTTPServer(app, nil, nil), nil
}
