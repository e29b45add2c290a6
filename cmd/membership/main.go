package main

import (
	"log"

	"cesworld/pkg/access"
	"cesworld/pkg/auth"
	"cesworld/pkg/config"
	"cesworld/pkg/db"
	"cesworld/pkg/featureflags"
	"cesworld/pkg/gen"
	"cesworld/pkg/hashistack/secretmanager"
	"cesworld/pkg/health"
	"cesworld/pkg/httpapi"
	"cesworld/pkg/logger"
	"cesworld/pkg/minio"
	"cesworld/pkg/otelcol"
	"cesworld/pkg/profiling"
	"cesworld/pkg/redis"
	"cesworld/pkg/sequence"
	"cesworld/pkg/server"
	"cesworld/pkg/task"
	"cesworld/services/account"
	"cesworld/services/audit"
	"cesworld/services/membership"
	"cesworld/services/reward"
	"cesworld/services/scheduler"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		task.Client,
		task.Server,
		auth.Module,
		access.Module,
		featureflags.Module,
		minio.Client,
		health.Module,
		gen.Module,
		fx.Invoke(autoMigrate),
		server.ProvideHTTPServer,
		httpapi.Module,
		audit.Module,
		account.Module,
		membership.Module,
		membership.Worker,
		reward.Module,
		scheduler.Module,
		scheduler.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func autoMigrate(cfg *config.Config, conn *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}

	var models []any
	models = append(models, membership.Models()...)
	models = append(models, reward.Models()...)
	models = append(models, account.Models()...)
	models = append(models, scheduler.Models()...)
	models = append(models, &audit.LogEntry{})

	if err := conn.AutoMigrate(models...); err != nil {
		zap.L().Error("[DB] auto migrate failed", zap.Error(err))
		return err
	}
	zap.L().Info("[DB] schema migrated", zap.Int("models", len(models)))
	return nil
}
