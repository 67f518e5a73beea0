package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
)

// AnnotationController 标注控制器
type AnnotationController struct {
	taskService  service.TaskService
	queryService service.QueryService
}

// NewAnnotationController 创建标注控制器
func NewAnnotationController(taskService service.TaskService, queryService service.QueryService) *AnnotationController {
	return &AnnotationController{
		taskService:  taskService,
		queryService: queryService,
	}
}

// Get 获取任务当前的标注集合
// @Summary      获取标注
// @Tags         标注管理
// @Produce      json
// @Param        taskId path string true "任务 ID"
// @Success      200  {object}  Response
// @Router       /annotations/{taskId} [get]
func (c *AnnotationController) Get(ctx *gin.Context) {
	id, ok := taskIDParam(ctx, "taskId")
	if !ok {
		return
	}

	annotations, err := c.queryService.GetAnnotations(ctx.Request.Context(), id)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"annotations": annotations})
}

// Submit 替换标注集合并提交审核
// @Summary      提交标注
// @Description  调用方必须持有任务锁,提交后锁释放,任务进入待审核
// @Tags         标注管理
// @Accept       json
// @Produce      json
// @Param        taskId  path string                 true "任务 ID"
// @Param        request body service.SubmitRequest  true "标注集合"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Router       /annotations/{taskId} [post]
func (c *AnnotationController) Submit(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := taskIDParam(ctx, "taskId")
	if !ok {
		return
	}

	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	task, annotations, err := c.taskService.Submit(ctx.Request.Context(), actor, id, req.Annotations)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"task": task, "annotations": annotations})
}

// Review 审核标注
// @Summary      审核标注
// @Tags         标注管理
// @Accept       json
// @Produce      json
// @Param        taskId  path string                 true "任务 ID"
// @Param        request body service.ReviewRequest  true "审核结论"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Router       /annotations/{taskId}/review [post]
func (c *AnnotationController) Review(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := taskIDParam(ctx, "taskId")
	if !ok {
		return
	}

	var req service.ReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	notes, err := utils.TrimAndValidate(req.Notes, utils.MaxNotesLength)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	req.Notes = notes

	task, err := c.taskService.Review(ctx.Request.Context(), actor, id, &req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"task": task})
}
