package service

import (
	"context"
	"time"

	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/metrics"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
	"github.com/rithindattag/Annotara/internal/suggestion"
	"github.com/sirupsen/logrus"
)

// SuggestionService AI 预标注服务接口
type SuggestionService interface {
	Predict(ctx context.Context, actor model.Actor, taskID string) (*suggestion.Result, error)
}

// PredictRequest 预标注请求
type PredictRequest struct {
	TaskID string `json:"taskId" binding:"required"`
}

// suggestionService AI 预标注服务实现
type suggestionService struct {
	tasks   repository.TaskRepository
	adapter *suggestion.Adapter
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewSuggestionService 创建预标注服务
func NewSuggestionService(tasks repository.TaskRepository, adapter *suggestion.Adapter, logger logrus.FieldLogger) SuggestionService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &suggestionService{
		tasks:   tasks,
		adapter: adapter,
		logger:  logger.WithField("component", "suggestion"),
		now:     time.Now,
	}
}

// Predict 为任务生成建议标注
// 建议只返回给调用方,不写入标注集合,也不改变任务状态;成功时记录来源信息
func (s *suggestionService) Predict(ctx context.Context, actor model.Actor, taskID string) (*suggestion.Result, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, lifecycle.StoreError("load task", err)
	}

	result, err := s.adapter.Suggest(ctx, task.ID, task.StorageKey)
	metrics.RecordSuggestion(s.adapter.ProviderName(), err == nil)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"task_id": taskID,
			"actor":   actor.ID,
		}).Warn("Suggestion provider failed")
		return nil, err
	}

	// 来源信息写入失败不影响返回建议
	if _, err := s.tasks.UpdateSuggestion(ctx, task.ID, result.Model, s.now(), result.Labels); err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to record suggestion provenance")
	}

	s.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"actor":   actor.ID,
		"model":   result.Model,
		"shapes":  len(result.Shapes),
	}).Info("Suggestion generated")
	return result, nil
}
