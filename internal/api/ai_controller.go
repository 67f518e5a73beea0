package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/service"
	"github.com/rithindattag/Annotara/internal/utils"
)

// AIController 预标注控制器
type AIController struct {
	suggestionService service.SuggestionService
}

// NewAIController 创建预标注控制器
func NewAIController(suggestionService service.SuggestionService) *AIController {
	return &AIController{suggestionService: suggestionService}
}

// Predict 为任务生成建议标注,结果不会自动保存
// @Summary      AI 预标注
// @Tags         AI
// @Accept       json
// @Produce      json
// @Param        request body service.PredictRequest true "任务 ID"
// @Success      200  {object}  Response
// @Failure      502  {object}  ErrorResponse
// @Router       /ai/predict [post]
func (c *AIController) Predict(ctx *gin.Context) {
	actor, ok := currentActor(ctx)
	if !ok {
		return
	}

	var req service.PredictRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := utils.ValidateID(req.TaskID); err != nil {
		abortWithError(ctx, err)
		return
	}

	result, err := c.suggestionService.Predict(ctx.Request.Context(), actor, req.TaskID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	Success(ctx, result)
}
