package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/db"
	"smallbiznis-tenancy/pkg/gen"
	"smallbiznis-tenancy/pkg/httpapi"
	"smallbiznis-tenancy/pkg/logger"
	"smallbiznis-tenancy/pkg/otelcol"
	"smallbiznis-tenancy/pkg/profiling"
	"smallbiznis-tenancy/pkg/redis"
	"smallbiznis-tenancy/pkg/sequence"
	"smallbiznis-tenancy/pkg/server"
	"smallbiznis-tenancy/pkg/task"
	"smallbiznis-tenancy/services/admin"
	"smallbiznis-tenancy/services/bootstrap"
	"smallbiznis-tenancy/services/domain"
	"smallbiznis-tenancy/services/lifecycle"
	"smallbiznis-tenancy/services/tenant"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		profiling.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		tenant.Module,
		domain.Module,
		lifecycle.Module,
		bootstrap.Module,
		httpapi.Module,
		admin.Module,
		server.ProvideHTTPServer,
		fx.Invoke(server.Run),
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
