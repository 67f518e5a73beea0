package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
)

// AdminController 管理员控制器
type AdminController struct {
	taskService  service.TaskService
	queryService service.QueryService
}

// NewAdminController 创建管理员控制器
func NewAdminController(taskService service.TaskService, queryService service.QueryService) *AdminController {
	return &AdminController{
		taskService:  taskService,
		queryService: queryService,
	}
}

// Assign 分配任务给标注员
// @Summary      分配任务
// @Tags         管理
// @Accept       json
// @Produce      json
// @Param        request body service.AssignRequest true "任务和用户"
// @Success      200  {object}  Response
// @Router       /admin/assign [post]
func (c *AdminController) Assign(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.AssignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	for _, id := range []string{req.TaskID, req.UserID} {
		if err := utils.ValidateID(id); err != nil {
			abortWithError(ctx, err)
			return
		}
	}

	task, err := c.taskService.Assign(ctx.Request.Context(), actor, &req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"task": task})
}

// Export 导出全部任务和标注
// @Summary      导出
// @Tags         管理
// @Produce      json
// @Success      200  {object}  Response
// @Router       /admin/export [get]
func (c *AdminController) Export(ctx *gin.Context) {
	export, err := c.queryService.Export(ctx.Request.Context())
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, export)
}

// Statistics 按状态统计任务
func (c *AdminController) Statistics(ctx *gin.Context) {
	stats, err := c.queryService.Statistics(ctx.Request.Context())
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, stats)
}
