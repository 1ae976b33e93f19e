package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/api/handlers"
	"github.com/Kareem-Elnokali/system-creator/internal/api/middleware"
	"github.com/Kareem-Elnokali/system-creator/internal/config"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
}

func NewServer(cfg *config.Config, h *handlers.Handler, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
	}

	server.setupRoutes(h)
	return server
}

func (s *Server) setupRoutes(h *handlers.Handler) {
	s.Router.GET("/health", h.HealthCheck)
	s.Router.GET("/health/mfa", h.MFAHealth)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api/v1")
	api.Use(middleware.AuthRequired(s.Config.Auth.JWTSecret, s.Config.Auth.SuperuserClaim))

	// Read access for any authenticated operator
	{
		api.GET("/tenants", h.ListTenants)
		api.GET("/tenants/:id", h.GetTenant)
		api.GET("/tenants/:id/usage", h.GetUsageStats)
		api.GET("/tenants/:id/api-logs", h.GetAPICallLogs)
		api.GET("/tenants/:id/users", h.GetRemoteUsers)
		api.GET("/tenants/:id/auth-logs", h.GetRemoteAuthLogs)

		// The gateway itself decides how much of the connection a
		// non-privileged caller gets to see.
		api.GET("/tenants/:id/connection", h.GetConnectionStatus)

		// Privilege checks for disconnect/security live in the access
		// policy, not in routing, so denials carry the specific reason.
		api.POST("/tenants/:id/connection/disconnect", h.Disconnect)
		api.PUT("/tenants/:id/connection/security", h.ModifySecurity)
	}

	// Administrative operations
	admin := api.Group("")
	admin.Use(middleware.RequireSuperuser())
	{
		admin.GET("/overview", h.GetOverview)
		admin.POST("/tenants", h.CreateTenant)
		admin.PUT("/tenants/:id/status", h.UpdateTenantStatus)
		admin.POST("/tenants/:id/verify-domain", h.VerifyTenantDomain)
		admin.POST("/tenants/:id/connection", h.CreateConnection)
		admin.PUT("/tenants/:id/features", h.UpdateRemoteFeatures)
		admin.POST("/tenants/:id/sync", h.SyncTenant)
		admin.POST("/sync", h.SyncAll)
		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)
	}
}
