package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/database"
	"gorm.io/gorm"
)

// HealthChecker 可选的外部依赖检查
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// ClientCounter 推送连接数
type ClientCounter interface {
	GetClientCount() int
}

// HealthController 健康检查控制器
type HealthController struct {
	db       *gorm.DB
	clients  ClientCounter
	checkers []HealthChecker
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, clients ClientCounter, checkers ...HealthChecker) *HealthController {
	return &HealthController{
		db:       db,
		clients:  clients,
		checkers: checkers,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 数据库不可用时整体不健康
	if err := database.CheckHealth(ctx.Request.Context(), c.db); err != nil {
		status = "unhealthy"
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	// 其他依赖只影响对应项,不影响整体状态
	for _, checker := range c.checkers {
		if err := checker.Check(ctx.Request.Context()); err != nil {
			checks[checker.Name()] = "degraded: " + err.Error()
		} else {
			checks[checker.Name()] = "healthy"
		}
	}

	body := gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	}
	if c.clients != nil {
		body["push_clients"] = c.clients.GetClientCount()
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	ctx.JSON(httpStatus, body)
}
