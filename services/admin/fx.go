package admin

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("admin.module",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)

func RegisterRoutes(r *gin.Engine, h *Handler) {
	admin := r.Group("/admin")

	tenants := admin.Group("/tenants")
	tenants.GET("", h.ListTenants)
	tenants.POST("", h.CreateTenant)
	tenants.POST("/actions/deactivate", h.DeactivateSelected)
	tenants.POST("/actions/activate", h.ActivateSelected)
	tenants.POST("/actions/sweep", h.TriggerSweep)
	tenants.GET("/:id", h.GetTenant)
	tenants.PATCH("/:id", h.UpdateTenant)
	tenants.PUT("/:id/pin", h.SetAccessPIN)
	tenants.DELETE("/:id/pin", h.ClearAccessPIN)
	tenants.POST("/:id/pin/check", h.CheckAccessPIN)
	tenants.POST("/:id/deactivate", h.DeactivateTenant)
	tenants.POST("/:id/activate", h.ActivateTenant)
	tenants.GET("/:id/expired", h.HasExpired)
	tenants.GET("/:id/events", h.ListEvents)

	domains := admin.Group("/domains")
	domains.GET("", h.ListDomains)
	domains.POST("", h.CreateDomain)
	domains.GET("/:id", h.GetDomain)
	domains.DELETE("/:id", h.DeleteDomain)
	domains.POST("/:id/primary", h.SetPrimaryDomain)
	domains.POST("/:id/verify", h.VerifyDomain)

	admin.GET("/resolve", h.ResolveDomain)
	admin.GET("/lifecycle/runs", h.ListSweepRuns)
}
