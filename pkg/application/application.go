// Package application is the composition root registry: the pool, the event
// bus, controllers, services and the middleware chain are registered here and
// the HTTP server is built from it.
package application

import (
	"fmt"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/venuehq/venue-sdk/pkg/eventbus"
)

// Controller is a registerable HTTP surface. Key must be unique; registering
// the same key twice replaces the earlier controller.
type Controller interface {
	Key() string
	Register(r *mux.Router)
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger

	Controllers() []Controller
	RegisterControllers(controllers ...Controller)

	Middleware() []mux.MiddlewareFunc
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)

	RegisterServices(services ...any)
	Service(service any) any
}

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:        opts.Pool,
		eventBus:    opts.EventBus,
		logger:      opts.Logger,
		controllers: make(map[string]Controller),
		services:    make(map[reflect.Type]any),
	}
}

type application struct {
	pool             *pgxpool.Pool
	eventBus         eventbus.EventBus
	logger           *logrus.Logger
	controllers      map[string]Controller
	controllerOrder  []string
	middleware       []mux.MiddlewareFunc
	services         map[reflect.Type]any
}

func (a *application) DB() *pgxpool.Pool {
	return a.pool
}

func (a *application) EventPublisher() eventbus.EventBus {
	return a.eventBus
}

func (a *application) Logger() *logrus.Logger {
	return a.logger
}

func (a *application) Controllers() []Controller {
	out := make([]Controller, 0, len(a.controllerOrder))
	for _, key := range a.controllerOrder {
		out = append(out, a.controllers[key])
	}
	return out
}

func (a *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		if _, exists := a.controllers[c.Key()]; !exists {
			a.controllerOrder = append(a.controllerOrder, c.Key())
		}
		a.controllers[c.Key()] = c
	}
}

func (a *application) Middleware() []mux.MiddlewareFunc {
	return a.middleware
}

func (a *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, middleware...)
}

func (a *application) RegisterServices(services ...any) {
	for _, s := range services {
		a.services[reflect.TypeOf(s)] = s
	}
}

// Service returns the registered service with the same type as the given
// value. Panics when the service was never registered: that is a wiring bug,
// not a runtime condition.
func (a *application) Service(service any) any {
	svc, ok := a.services[reflect.TypeOf(service)]
	if !ok {
		panic(fmt.Sprintf("service %s is not registered", reflect.TypeOf(service)))
	}
	return svc
}
