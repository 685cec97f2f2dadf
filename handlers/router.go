package handlers

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tenantcrm/middleware"
	"tenantcrm/monitoring"
)

// Handlers groups every HTTP handler mounted by NewRouter.
type Handlers struct {
	Auth     middleware.Authenticator
	Admin    *AdminHandler
	Clients  *ClientHandler
	Projects *ProjectHandler
	Pitches  *PitchHandler
	Leads    *LeadHandler
	Records  *RecordHandler
	Health   *HealthHandler
}

func NewRouter(h Handlers, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.SentryMiddleware(),
		middleware.PrometheusMetrics(),
		middleware.ErrorHandler(),
		cors.New(corsConfig(corsOrigins)),
	)

	r.GET("/metrics", gin.WrapH(monitoring.Handler()))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health.Health)
	api.POST("/auth/login", h.Admin.Login)

	authed := api.Group("", middleware.RequireAuth(h.Auth))
	authed.GET("/auth/me", h.Admin.Me)
	authed.GET("/users", h.Admin.ListUsers)
	authed.POST("/users", h.Admin.CreateUser)
	authed.PATCH("/users/:id", h.Admin.UpdateUser)
	authed.DELETE("/users/:id", h.Admin.DeleteUser)

	platform := authed.Group("/tenants", middleware.RequireSuperAdmin())
	platform.GET("", h.Admin.ListTenants)
	platform.POST("", h.Admin.CreateTenant)
	platform.GET("/:id", h.Admin.GetTenant)
	platform.PATCH("/:id", h.Admin.UpdateTenant)
	platform.DELETE("/:id", h.Admin.DeleteTenant)

	h.Clients.register(authed)
	h.Projects.register(authed)
	h.Pitches.register(authed)
	h.Leads.register(authed)
	h.Records.register(authed)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.TenantHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "Content-Disposition", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
