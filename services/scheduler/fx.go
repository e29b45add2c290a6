package scheduler

import (
	"cesworld/pkg/task"

	"go.uber.org/fx"
)

// Module runs the nightly scheduler and the admin job endpoints.
var Module = fx.Module("scheduler.service",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(
		StartScheduler,
		registerRoutes,
	),
)

// Worker executes the daily jobs.
var Worker = fx.Module("scheduler.worker",
	fx.Provide(task.AsHandler(func(s *Service) *Service { return s })),
)
