package api

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/auth"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
)

// TaskController 任务控制器
type TaskController struct {
	taskService   service.TaskService
	queryService  service.QueryService
	maxUploadSize int64
}

// NewTaskController 创建任务控制器
func NewTaskController(taskService service.TaskService, queryService service.QueryService, maxUploadSize int64) *TaskController {
	return &TaskController{
		taskService:   taskService,
		queryService:  queryService,
		maxUploadSize: maxUploadSize,
	}
}

// currentActor 获取调用方身份,认证中间件缺失时返回 401
func currentActor(ctx *gin.Context) (model.Actor, bool) {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		Error(ctx, http.StatusUnauthorized, "unauthorized", "")
	}
	return actor, ok
}

// taskIDParam 读取并校验路径中的任务 ID
func taskIDParam(ctx *gin.Context, name string) (string, bool) {
	id := ctx.Param(name)
	if err := utils.ValidateID(id); err != nil {
		abortWithError(ctx, err)
		return "", false
	}
	return id, true
}

// List 获取任务列表
// @Summary      获取任务列表
// @Description  Annotator 看到分配给自己和未分配的任务,Reviewer 看到待审核任务,Admin 看到全部
// @Tags         任务管理
// @Produce      json
// @Param        status   query string false "任务状态"
// @Param        page     query int    false "页码"
// @Param        pageSize query int    false "每页数量"
// @Success      200  {object}  Response
// @Router       /tasks [get]
func (c *TaskController) List(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.ListTasksRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	resp, err := c.queryService.ListTasks(ctx.Request.Context(), actor, &req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, resp)
}

// Create 登记已上传到对象存储的媒体
// @Summary      创建任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateTaskRequest true "媒体信息"
// @Success      201  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Router       /tasks [post]
func (c *TaskController) Create(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	name, err := utils.CleanFileName(req.FileName)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	req.FileName = name
	if req.AssignedTo != nil {
		if err := utils.ValidateID(*req.AssignedTo); err != nil {
			abortWithError(ctx, err)
			return
		}
	}

	task, err := c.taskService.Create(ctx.Request.Context(), actor, &req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Created(ctx, gin.H{"task": task})
}

// Upload 上传媒体并创建任务
// @Summary      上传媒体
// @Tags         任务管理
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "图片或视频"
// @Success      201  {object}  Response
// @Failure      400  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /tasks/upload [post]
func (c *TaskController) Upload(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	if c.maxUploadSize > 0 {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxUploadSize)
	}
	header, err := ctx.FormFile("file")
	if err != nil {
		Error(ctx, http.StatusBadRequest, "file is required", err.Error())
		return
	}
	name, err := utils.CleanFileName(header.Filename)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	file, err := header.Open()
	if err != nil {
		Error(ctx, http.StatusBadRequest, "failed to read upload", err.Error())
		return
	}
	defer file.Close()

	task, err := c.taskService.Upload(ctx.Request.Context(), actor, &service.UploadFile{
		Name:        name,
		ContentType: contentType(header.Header.Get("Content-Type"), name),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Created(ctx, gin.H{"task": task})
}

// contentType 优先使用客户端声明的类型,否则按扩展名推断
func contentType(declared string, name string) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Get 获取任务详情和当前标注集合
// @Summary      获取任务详情
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (c *TaskController) Get(ctx *gin.Context) {
	id, ok := taskIDParam(ctx, "id")
	if !ok {
		return
	}

	detail, err := c.queryService.GetTask(ctx.Request.Context(), id)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, detail)
}

// History 获取任务状态历史
func (c *TaskController) History(ctx *gin.Context) {
	id, ok := taskIDParam(ctx, "id")
	if !ok {
		return
	}

	history, err := c.queryService.GetHistory(ctx.Request.Context(), id)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"history": history})
}

// Lock 领取任务
// @Summary      领取任务
// @Description  只有一个标注员能持有锁,其他人返回 423
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      409  {object}  ErrorResponse
// @Failure      423  {object}  ErrorResponse
// @Router       /tasks/{id}/lock [post]
func (c *TaskController) Lock(ctx *gin.Context) {
	c.transition(ctx, c.taskService.Lock)
}

// Unlock 释放任务
// @Summary      释放任务
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  Response
// @Failure      423  {object}  ErrorResponse
// @Router       /tasks/{id}/unlock [post]
func (c *TaskController) Unlock(ctx *gin.Context) {
	c.transition(ctx, c.taskService.Unlock)
}

// Override 管理员修改任务状态
// @Summary      修改任务状态
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Param        request body service.OverrideRequest true "目标状态"
// @Success      200  {object}  Response
// @Router       /tasks/{id}/status [post]
func (c *TaskController) Override(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := taskIDParam(ctx, "id")
	if !ok {
		return
	}

	var req service.OverrideRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	reason, err := utils.TrimAndValidate(req.Reason, utils.MaxNotesLength)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	req.Reason = reason

	task, err := c.taskService.Override(ctx.Request.Context(), actor, id, &req)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"task": task})
}

// transition 执行无请求体的转换
func (c *TaskController) transition(ctx *gin.Context, fn func(context.Context, model.Actor, string) (*model.TaskModel, error)) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}
	id, ok := taskIDParam(ctx, "id")
	if !ok {
		return
	}

	task, err := fn(ctx.Request.Context(), actor, id)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, gin.H{"task": task})
}
