package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "docxingest/docs"
	"docxingest/internal/handler"
	"docxingest/internal/middleware"
	"docxingest/internal/service"
)

// Handlers groups the API handlers the router mounts.
type Handlers struct {
	Auth   *handler.AuthHandler
	Health *handler.HealthHandler
	Runs   *handler.RunHandler
	Events *handler.EventHandler
	Ledger *handler.LedgerHandler
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(authSvc service.AuthService, h Handlers, allowedOrigins []string) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", h.Health.Liveness)
	r.GET("/readyz", h.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/token", h.Auth.Token)

	// Protected routes - require valid JWT
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(authSvc))

	runs := protected.Group("/runs")
	runs.POST("", h.Runs.Start)
	runs.GET("/latest", h.Runs.Latest)

	protected.GET("/events", h.Events.List)
	protected.GET("/ledger/:hash", h.Ledger.Get)

	return r
}
