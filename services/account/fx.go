package account

import (
	"cesworld/pkg/middleware"

	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(
		NewService,
		NewHandler,
		func(s *Service) middleware.RoleLookup { return s },
	),
	fx.Invoke(registerRoutes),
)
