package httpapi

import (
	"cesworld/pkg/access"
	"cesworld/pkg/health"
	"cesworld/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewRoutes),
	fx.Invoke(registerHealthEndpoint),
)

// Routes are the guarded route groups services mount their handlers on.
type Routes struct {
	// Member routes under /v1/membership; a session is required.
	Member *gin.RouterGroup
	// Admin routes under /v1/admin; the caller must pass the admin gate.
	Admin *gin.RouterGroup
}

type RoutesParams struct {
	fx.In
	Engine   *gin.Engine
	Lookup   middleware.RoleLookup
	Enforcer access.Enforcer
}

func NewRoutes(p RoutesParams) *Routes {
	return &Routes{
		Member: p.Engine.Group("/v1/membership", middleware.Authenticated()),
		Admin:  p.Engine.Group("/v1/admin", middleware.AdminOnly(p.Lookup, p.Enforcer)),
	}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
