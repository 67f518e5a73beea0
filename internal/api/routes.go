package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/metrics"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config            *config.Config
	Logger            logrus.FieldLogger
	DB                *gorm.DB
	Hub               *websocket.Hub
	Authenticator     auth.Authenticator
	TaskService       service.TaskService
	QueryService      service.QueryService
	SuggestionService service.SuggestionService
	HealthCheckers    []HealthChecker
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestLogMiddleware(deps.Logger))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	router.Use(CORSMiddleware(cfg.CORS.AllowedOrigins))
	router.Use(ErrorHandlerMiddleware(deps.Logger))

	// 健康检查和指标
	var clients ClientCounter
	if deps.Hub != nil {
		clients = deps.Hub
	}
	health := NewHealthController(deps.DB, clients, deps.HealthCheckers...)
	router.GET("/health", health.Check)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 推送通道
	if deps.Hub != nil {
		upgrader := websocket.NewUpgrader(cfg.CORS.AllowedOrigins)
		router.GET("/ws", websocket.WebSocketHandler(deps.Hub, deps.Authenticator, upgrader, deps.Logger))
		router.GET("/sse/tasks", SSEHandler(deps.Hub, deps.Authenticator, deps.Logger))
		router.GET("/sse/tasks/:id", SSEHandler(deps.Hub, deps.Authenticator, deps.Logger))
	}

	taskController := NewTaskController(deps.TaskService, deps.QueryService, cfg.Server.MaxUploadSize)
	annotationController := NewAnnotationController(deps.TaskService, deps.QueryService)
	aiController := NewAIController(deps.SuggestionService)
	adminController := NewAdminController(deps.TaskService, deps.QueryService)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		v1.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	v1.Use(auth.AuthMiddleware(deps.Authenticator))
	{
		tasks := v1.Group("/tasks")
		{
			tasks.GET("", taskController.List)
			tasks.POST("", taskController.Create)
			tasks.POST("/upload", taskController.Upload)
			tasks.GET("/:id", taskController.Get)
			tasks.GET("/:id/history", taskController.History)
			tasks.POST("/:id/lock", taskController.Lock)
			tasks.POST("/:id/unlock", taskController.Unlock)
			tasks.POST("/:id/status", auth.RequireRoles(model.RoleAdmin), taskController.Override)
		}

		annotations := v1.Group("/annotations")
		{
			annotations.GET("/:taskId", annotationController.Get)
			annotations.POST("/:taskId", annotationController.Submit)
			annotations.POST("/:taskId/review", auth.RequireRoles(model.RoleReviewer, model.RoleAdmin), annotationController.Review)
		}

		ai := v1.Group("/ai")
		{
			ai.POST("/predict", aiController.Predict)
		}

		admin := v1.Group("/admin", auth.RequireRoles(model.RoleAdmin))
		{
			admin.POST("/assign", adminController.Assign)
			admin.GET("/export", adminController.Export)
			admin.GET("/statistics", adminController.Statistics)
		}
	}

	return router
}
