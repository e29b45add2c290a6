package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/vault-client-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type check struct {
	name string
	fn   func(ctx context.Context) error
}

type health struct {
	checks  []check
	timeout time.Duration
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
	Vault *vault.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	h := &health{timeout: 2 * time.Second}

	if p.DB != nil {
		h.checks = append(h.checks, check{name: "database", fn: func(ctx context.Context) error {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if p.Redis != nil {
		h.checks = append(h.checks, check{name: "redis", fn: func(ctx context.Context) error {
			return p.Redis.Ping(ctx).Err()
		}})
	}
	if p.Vault != nil {
		h.checks = append(h.checks, check{name: "vault", fn: func(ctx context.Context) error {
			_, err := p.Vault.System.ReadHealthStatus(ctx)
			return err
		}})
	}

	return h
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

// Readiness pings every dependency concurrently. One failing dependency marks
// the service unavailable.
func (h *health) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		mu   sync.Mutex
		deps = make([]Dependency, len(h.checks))
		g    errgroup.Group
	)

	for i, chk := range h.checks {
		g.Go(func() error {
			dep := Dependency{Name: chk.name, Status: StatusHealthy, Message: "OK"}
			if err := chk.fn(ctx); err != nil {
				dep.Status = StatusUnhealthy
				dep.Message = err.Error()
			}
			mu.Lock()
			deps[i] = dep
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	this := &Health{Status: StatusHealthy, Message: "OK", Deps: deps}
	code := http.StatusOK
	for _, dep := range deps {
		if dep.Status != StatusHealthy {
			this.Status = StatusUnhealthy
			this.Message = dep.Name + " unavailable"
			code = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, this)
}
