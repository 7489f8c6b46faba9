package app

import (
	"time"

	"marking_backend/docs"
	"marking_backend/internal/config"
	"marking_backend/internal/middleware"
	"marking_backend/internal/model"
	"marking_backend/pkg/monitoring"
	"marking_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(
		middleware.AuthMiddleware(cfg),
		security.RateLimiter(cfg.RateLimit.MarkerMaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute, middleware.MarkerKey),
		middleware.ActivityMiddleware(repos.user),
	)
	{
		authGroup.GET("/marking/methods", c.marking.ListMethods)
		authGroup.GET("/tasks/progress/:id", c.progress.Poll)

		a.registerAssignmentRoutes(authGroup, c)
		a.registerMarkingRoutes(authGroup, c)
	}
}

func (a *App) registerAssignmentRoutes(rg *gin.RouterGroup, c *controllers) {
	assignments := rg.Group("/assignments")
	assignments.Use(middleware.RoleMiddleware(model.Teacher))
	{
		assignments.POST("", c.assignment.Create)
		assignments.GET("/:id", c.assignment.Get)
		assignments.PUT("/:id", c.assignment.Update)
		assignments.POST("/:id/regrade", c.assignment.Regrade)
		assignments.POST("/:id/workflow/batch", c.marking.BatchWorkflow)
	}
}

func (a *App) registerMarkingRoutes(rg *gin.RouterGroup, c *controllers) {
	submission := rg.Group("/assignments/:id/users/:userId")
	submission.Use(middleware.RoleMiddleware(model.Teacher))
	{
		submission.GET("/markers", c.marking.GetMarkers)
		submission.PUT("/markers", c.marking.SetMarkers)

		submission.GET("/grade", c.marking.GetGrade)
		submission.POST("/grade", c.marking.SaveGrade)
		// 覆盖总成绩仅限管理员
		submission.PUT("/grade/manual", middleware.RoleMiddleware(model.Admin), c.marking.SetManualGrade)
		submission.GET("/marks/:markerId", c.marking.GetMark)
		submission.POST("/workflow/recalculate", c.marking.Recalculate)

		submission.GET("/feedback", c.marking.GetFeedback)
		submission.POST("/feedback", c.marking.SaveFeedback)
	}
}
