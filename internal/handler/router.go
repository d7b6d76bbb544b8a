package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/middleware"
	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/internal/service"
	"github.com/civicgrid/civicgrid-api/pkg/config"
	"github.com/civicgrid/civicgrid-api/pkg/logger"
	corsmiddleware "github.com/civicgrid/civicgrid-api/pkg/middleware/cors"
	reqidmiddleware "github.com/civicgrid/civicgrid-api/pkg/middleware/requestid"
)

// Dependencies bundles everything the router needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Redis         *redis.Client
	Auth          *service.AuthService
	Users         *service.UserService
	Issues        *service.IssueService
	Engine        *service.EscalationService
	Notifications *service.NotificationService
	Analytics     *service.AnalyticsService
	Photos        *service.PhotoService
	Metrics       *service.MetricsService
}

// NewRouter builds the gin engine with all routes and middleware attached.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", NewMetricsHandler(deps.Metrics).Prometheus)

	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := NewAuthHandler(deps.Auth)
	userHandler := NewUserHandler(deps.Users)
	issueHandler := NewIssueHandler(deps.Issues)
	escalationHandler := NewEscalationHandler(deps.Engine, deps.Issues)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	analyticsHandler := NewAnalyticsHandler(deps.Analytics)
	photoHandler := NewPhotoHandler(deps.Photos)

	r.GET("/photos/:token", photoHandler.Fetch)

	api := r.Group(deps.Config.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", userHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(deps.Auth), authHandler.Logout)
		auth.POST("/logout-all", middleware.JWT(deps.Auth), authHandler.LogoutAll)
	}

	users := api.Group("/users", middleware.JWT(deps.Auth))
	{
		users.GET("/me", userHandler.Me)
		users.PUT("/me", userHandler.UpdateMe)
		users.GET("/staff",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleCommissioner, models.RoleAdmin),
			userHandler.ListStaff)
		users.POST("/staff", middleware.RequireRoles(models.RoleAdmin), userHandler.CreateStaff)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
	}

	issues := api.Group("/issues", middleware.JWT(deps.Auth))
	{
		issues.POST("",
			middleware.SubmissionRateLimit(deps.Redis, deps.Config.RateLimit, deps.Logger),
			issueHandler.Create)
		issues.GET("", issueHandler.List)
		issues.GET("/:id", issueHandler.Get)
		issues.GET("/:id/history", issueHandler.History)
		issues.POST("/:id/accept", middleware.RequireStaff(), issueHandler.Accept)
		issues.POST("/:id/resolve", middleware.RequireStaff(), issueHandler.Resolve)
		issues.POST("/:id/escalate",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleCommissioner, models.RoleAdmin),
			escalationHandler.Escalate)
	}

	api.POST("/photos", middleware.JWT(deps.Auth), photoHandler.Upload)

	escalations := api.Group("/escalations", middleware.JWT(deps.Auth))
	{
		escalations.POST("/sweep", middleware.RequireRoles(models.RoleAdmin), escalationHandler.RunSweep)
		escalations.GET("/status",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleCommissioner, models.RoleAdmin),
			escalationHandler.SweepStatus)
	}

	notifications := api.Group("/notifications", middleware.JWT(deps.Auth))
	{
		notifications.GET("", notificationHandler.List)
	}

	analytics := api.Group("/analytics", middleware.JWT(deps.Auth))
	{
		analytics.GET("/issues",
			middleware.RequireRoles(models.RoleSupervisor, models.RoleCommissioner, models.RoleAdmin),
			analyticsHandler.Issues)
		analytics.GET("/system", middleware.RequireRoles(models.RoleAdmin), analyticsHandler.System)
	}

	return r
}
