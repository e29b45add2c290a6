package membership

import (
	"cesworld/pkg/task"

	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// Worker consumes order events published by the storefront.
var Worker = fx.Module("membership.worker",
	fx.Provide(task.AsHandler(NewConsumer)),
)
