package service

import (
	"context"
	"fmt"

	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
)

// QueryService 查询服务接口
type QueryService interface {
	ListTasks(ctx context.Context, actor model.Actor, req *ListTasksRequest) (*ListTasksResponse, error)
	GetTask(ctx context.Context, id string) (*TaskDetail, error)
	GetAnnotations(ctx context.Context, taskID string) ([]*model.AnnotationModel, error)
	GetHistory(ctx context.Context, taskID string) ([]*model.StateHistoryModel, error)
	Export(ctx context.Context) (*ExportResponse, error)
	Statistics(ctx context.Context) (*StatisticsResponse, error)
}

// ListTasksRequest 任务列表请求
type ListTasksRequest struct {
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}

// ListTasksResponse 任务列表响应
type ListTasksResponse struct {
	Tasks []*model.TaskModel `json:"tasks"`
	Total int64              `json:"total"`
}

// TaskDetail 任务及其当前标注集合
type TaskDetail struct {
	Task        *model.TaskModel         `json:"task"`
	Annotations []*model.AnnotationModel `json:"annotations"`
}

// ExportResponse 全量导出
type ExportResponse struct {
	Tasks       []*model.TaskModel       `json:"tasks"`
	Annotations []*model.AnnotationModel `json:"annotations"`
}

// StatisticsResponse 按状态统计
type StatisticsResponse struct {
	Total    int64                      `json:"total"`
	ByStatus map[model.TaskStatus]int64 `json:"byStatus"`
}

// queryService 查询服务实现
type queryService struct {
	tasks       repository.TaskRepository
	annotations repository.AnnotationRepository
	history     repository.StateHistoryRepository
}

// NewQueryService 创建查询服务
func NewQueryService(
	tasks repository.TaskRepository,
	annotations repository.AnnotationRepository,
	history repository.StateHistoryRepository,
) QueryService {
	return &queryService{
		tasks:       tasks,
		annotations: annotations,
		history:     history,
	}
}

// ListTasks 按角色过滤任务列表
// Annotator 看到分配给自己的和未分配的任务,Reviewer 只看到待审核任务,Admin 看到全部
func (s *queryService) ListTasks(ctx context.Context, actor model.Actor, req *ListTasksRequest) (*ListTasksResponse, error) {
	if req == nil {
		req = &ListTasksRequest{}
	}
	filter := &repository.TaskFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	if req.Status != "" {
		status := model.TaskStatus(req.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", lifecycle.ErrInvalidArgument, req.Status)
		}
		filter.Status = &status
	}

	switch actor.Role {
	case model.RoleAnnotator:
		id := actor.ID
		filter.AssignedTo = &id
		filter.IncludeUnassigned = true
	case model.RoleReviewer:
		status := model.TaskStatusAwaitingReview
		filter.Status = &status
	case model.RoleAdmin:
	default:
		return nil, fmt.Errorf("%w: unknown role %q", lifecycle.ErrInvalidArgument, actor.Role)
	}

	tasks, total, err := s.tasks.FindByFilter(ctx, filter)
	if err != nil {
		return nil, lifecycle.StoreError("list tasks", err)
	}
	if tasks == nil {
		tasks = []*model.TaskModel{}
	}
	return &ListTasksResponse{Tasks: tasks, Total: total}, nil
}

// GetTask 获取任务详情
func (s *queryService) GetTask(ctx context.Context, id string) (*TaskDetail, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, lifecycle.StoreError("load task", err)
	}

	annotations, err := s.GetAnnotations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: task, Annotations: annotations}, nil
}

// GetAnnotations 获取任务当前的标注集合
func (s *queryService) GetAnnotations(ctx context.Context, taskID string) ([]*model.AnnotationModel, error) {
	annotations, err := s.annotations.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, lifecycle.StoreError("load annotations", err)
	}
	if annotations == nil {
		annotations = []*model.AnnotationModel{}
	}
	return annotations, nil
}

// GetHistory 获取任务状态历史,任务不存在时返回 ErrNotFound
func (s *queryService) GetHistory(ctx context.Context, taskID string) ([]*model.StateHistoryModel, error) {
	if _, err := s.tasks.FindByID(ctx, taskID); err != nil {
		return nil, lifecycle.StoreError("load task", err)
	}

	history, err := s.history.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, lifecycle.StoreError("load state history", err)
	}
	if history == nil {
		history = []*model.StateHistoryModel{}
	}
	return history, nil
}

// Export 导出全部任务和标注
func (s *queryService) Export(ctx context.Context) (*ExportResponse, error) {
	tasks, err := s.tasks.FindAll(ctx)
	if err != nil {
		return nil, lifecycle.StoreError("export tasks", err)
	}
	annotations, err := s.annotations.FindAll(ctx)
	if err != nil {
		return nil, lifecycle.StoreError("export annotations", err)
	}

	if tasks == nil {
		tasks = []*model.TaskModel{}
	}
	if annotations == nil {
		annotations = []*model.AnnotationModel{}
	}
	return &ExportResponse{Tasks: tasks, Annotations: annotations}, nil
}

// Statistics 按状态统计任务数
func (s *queryService) Statistics(ctx context.Context) (*StatisticsResponse, error) {
	counts, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, lifecycle.StoreError("count tasks", err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	return &StatisticsResponse{Total: total, ByStatus: counts}, nil
}
