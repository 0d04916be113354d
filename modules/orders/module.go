// Package orders wires the point-of-sale orders module into the application.
package orders

import (
	"github.com/venuehq/venue-sdk/modules/orders/handlers"
	"github.com/venuehq/venue-sdk/modules/orders/infrastructure/persistence"
	"github.com/venuehq/venue-sdk/modules/orders/presentation/controllers"
	"github.com/venuehq/venue-sdk/modules/orders/services"
	"github.com/venuehq/venue-sdk/pkg/application"
	"github.com/venuehq/venue-sdk/pkg/executor"
)

func Register(app application.Application, exec *executor.Executor) {
	orderService := services.NewOrderService(persistence.NewOrderRepository(), exec)

	app.RegisterServices(orderService)
	app.RegisterControllers(controllers.NewOrdersAPIController(orderService))
	handlers.RegisterOutboxEventHandlers(app)
}
