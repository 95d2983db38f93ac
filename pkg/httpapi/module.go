package httpapi

import (
	"smallbiznis-tenancy/pkg/config"
	"smallbiznis-tenancy/pkg/health"
	"smallbiznis-tenancy/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	health.Module,
	fx.Provide(NewRouter),
	fx.Invoke(registerHealthEndpoint),
)

// NewRouter builds the gin engine shared by every route group.
func NewRouter(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.AppName))
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Error())
	return r
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}
