package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/db"
	"smallbiznis-tenancy/pkg/gen"
	"smallbiznis-tenancy/pkg/logger"
	"smallbiznis-tenancy/pkg/otelcol"
	"smallbiznis-tenancy/pkg/profiling"
	"smallbiznis-tenancy/pkg/redis"
	"smallbiznis-tenancy/pkg/task"
	"smallbiznis-tenancy/services/lifecycle"
	"smallbiznis-tenancy/services/tenant"
)

// The worker runs the daily expiry sweep. Migrations belong to the API
// process, so it expects the schema to exist.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		profiling.Module,
		gen.Module,
		task.Client,
		task.Server,
		tenant.Module,
		lifecycle.WorkerModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})
