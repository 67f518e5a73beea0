package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rithindattag/Annotara/internal/model"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// Expectation 条件更新时期望的当前字段值
// LockedBy 为 nil 表示期望任务未被锁定
type Expectation struct {
	Status   model.TaskStatus
	LockedBy *string
	Version  int64
}

// TaskRepository 任务仓储接口
type TaskRepository interface {
	Create(ctx context.Context, task *model.TaskModel) error
	FindByID(ctx context.Context, id string) (*model.TaskModel, error)
	// ConditionalUpdate 仅当 status/locked_by 与期望值一致时更新,返回是否命中
	ConditionalUpdate(ctx context.Context, id string, expect Expectation, fields map[string]interface{}) (bool, error)
	UpdateSuggestion(ctx context.Context, id string, modelName string, at time.Time, labels []string) (bool, error)
	FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, int64, error)
	FindAll(ctx context.Context) ([]*model.TaskModel, error)
	CountByStatus(ctx context.Context) (map[model.TaskStatus]int64, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	Status *model.TaskStatus
	// AssignedTo 非空时只返回分配给该用户的任务,IncludeUnassigned 同时包含未分配任务
	AssignedTo        *string
	IncludeUnassigned bool
	Page              int
	PageSize          int
}

// taskRepository 任务仓储实现
type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Create 保存新任务
func (r *taskRepository) Create(ctx context.Context, task *model.TaskModel) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// FindByID 根据 ID 查找任务
func (r *taskRepository) FindByID(ctx context.Context, id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// ConditionalUpdate 条件更新,命中时 version 加一
// 等价于 UPDATE tasks SET ..., version = version + 1 WHERE id = ? AND status = ? AND locked_by <=> ? AND version = ?
func (r *taskRepository) ConditionalUpdate(ctx context.Context, id string, expect Expectation, fields map[string]interface{}) (bool, error) {
	query := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("id = ? AND status = ? AND version = ?", id, expect.Status, expect.Version)
	if expect.LockedBy == nil {
		query = query.Where("locked_by IS NULL")
	} else {
		query = query.Where("locked_by = ?", *expect.LockedBy)
	}

	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")

	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateSuggestion 记录最近一次 AI 建议的来源,不参与状态转换
func (r *taskRepository) UpdateSuggestion(ctx context.Context, id string, modelName string, at time.Time, labels []string) (bool, error) {
	if labels == nil {
		labels = []string{}
	}
	result := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("id = ?", id).
		Select("last_suggestion_model", "last_suggestion_at", "last_suggestion_labels", "updated_at").
		Updates(&model.TaskModel{
			LastSuggestionModel:  &modelName,
			LastSuggestionAt:     &at,
			LastSuggestionLabels: labels,
			UpdatedAt:            at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindByFilter 根据过滤器分页查找任务
func (r *taskRepository) FindByFilter(ctx context.Context, filter *TaskFilter) ([]*model.TaskModel, int64, error) {
	var tasks []*model.TaskModel
	query := r.db.WithContext(ctx).Model(&model.TaskModel{})

	if filter != nil {
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.AssignedTo != nil {
			if filter.IncludeUnassigned {
				query = query.Where("(assigned_to = ? OR assigned_to IS NULL)", *filter.AssignedTo)
			} else {
				query = query.Where("assigned_to = ?", *filter.AssignedTo)
			}
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at DESC")
	if filter != nil && filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	err := query.Find(&tasks).Error
	return tasks, total, err
}

// FindAll 查找所有任务
func (r *taskRepository) FindAll(ctx context.Context) ([]*model.TaskModel, error) {
	var tasks []*model.TaskModel
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

// CountByStatus 按状态统计任务数
func (r *taskRepository) CountByStatus(ctx context.Context) (map[model.TaskStatus]int64, error) {
	var rows []struct {
		Status model.TaskStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.TaskStatus]int64, len(model.TaskStatuses))
	for _, st := range model.TaskStatuses {
		counts[st] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
