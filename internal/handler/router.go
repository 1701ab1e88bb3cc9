package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tripdesk/backoffice/internal/ratelimit"
	"github.com/tripdesk/backoffice/internal/service"
)

type RouterConfig struct {
	AllowedOrigins []string
	Production     bool
	// Limiter may be nil; rate limiting is then skipped.
	Limiter  ratelimit.Limiter
	Gatherer prometheus.Gatherer
}

// NewRouter wires every HTTP route onto a fresh gin engine.
func NewRouter(svc AuthService, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORSMiddleware(cfg.AllowedOrigins, true))

	router.GET("/", Root)
	router.GET("/ping", Ping)
	router.GET("/openapi.json", OpenAPIDoc)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	authHandler := NewAuthHandler(svc, cfg.Production)
	adminHandler := NewAdminHandler(svc)
	requireAuth := AuthMiddleware(svc)

	auth := router.Group("/auth")
	{
		auth.POST("/register", RateLimit(cfg.Limiter, "register"), authHandler.Register)
		auth.POST("/login", RateLimit(cfg.Limiter, "login"), authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/recover", RateLimit(cfg.Limiter, "recover"), authHandler.Recover)
		auth.POST("/reset-password", RateLimit(cfg.Limiter, "reset-password"), authHandler.ResetPassword)

		auth.POST("/logout", requireAuth, authHandler.Logout)
		auth.POST("/change-password", requireAuth, authHandler.ChangePassword)
		auth.GET("/me", requireAuth, authHandler.Me)
	}

	admin := router.Group("/admin", requireAuth)
	{
		admin.POST("/accounts/:id/unlock",
			RequirePermission(service.PermissionAccountsUnlock),
			adminHandler.UnlockAccount,
		)
	}

	return router
}
