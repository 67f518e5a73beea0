package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/lifecycle"
	"github.com/rithindattag/Annotara/internal/metrics"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
	"github.com/rithindattag/Annotara/internal/storage"
	"github.com/sirupsen/logrus"
)

// ErrUploadUnavailable 未配置对象存储
var ErrUploadUnavailable = errors.New("object storage not configured")

// TaskService 任务服务接口
type TaskService interface {
	Create(ctx context.Context, actor model.Actor, req *CreateTaskRequest) (*model.TaskModel, error)
	Upload(ctx context.Context, actor model.Actor, file *UploadFile) (*model.TaskModel, error)
	Lock(ctx context.Context, actor model.Actor, id string) (*model.TaskModel, error)
	Unlock(ctx context.Context, actor model.Actor, id string) (*model.TaskModel, error)
	Submit(ctx context.Context, actor model.Actor, id string, annotations []json.RawMessage) (*model.TaskModel, []*model.AnnotationModel, error)
	Review(ctx context.Context, actor model.Actor, id string, req *ReviewRequest) (*model.TaskModel, error)
	Override(ctx context.Context, actor model.Actor, id string, req *OverrideRequest) (*model.TaskModel, error)
	Assign(ctx context.Context, actor model.Actor, req *AssignRequest) (*model.TaskModel, error)
}

// CreateTaskRequest 登记已上传媒体的请求
type CreateTaskRequest struct {
	FileName   string  `json:"fileName" binding:"required"`
	FileType   string  `json:"fileType" binding:"required"`
	FileSize   int64   `json:"fileSize"`
	StorageKey string  `json:"storageKey" binding:"required"`
	PreviewURL string  `json:"previewUrl"`
	AssignedTo *string `json:"assignedTo"`
}

// UploadFile 上传的媒体文件
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SubmitRequest 提交标注请求
// annotations 必须出现,显式的空数组表示清空标注集合
type SubmitRequest struct {
	Annotations []json.RawMessage `json:"annotations" binding:"required"`
}

// ReviewRequest 审核请求
type ReviewRequest struct {
	Decision string `json:"decision" binding:"required"` // approved/rejected
	Notes    string `json:"notes"`
}

// OverrideRequest 管理员修改状态请求
type OverrideRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// AssignRequest 分配任务请求
type AssignRequest struct {
	TaskID string `json:"taskId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

// taskService 任务服务实现
type taskService struct {
	engine    *lifecycle.Engine
	tasks     repository.TaskRepository
	uploader  storage.Uploader
	publisher lifecycle.Publisher
	audit     AuditLogService
	logger    logrus.FieldLogger
}

// NewTaskService 创建任务服务,uploader 为空时不支持上传
func NewTaskService(
	engine *lifecycle.Engine,
	tasks repository.TaskRepository,
	uploader storage.Uploader,
	publisher lifecycle.Publisher,
	audit AuditLogService,
	logger logrus.FieldLogger,
) TaskService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &taskService{
		engine:    engine,
		tasks:     tasks,
		uploader:  uploader,
		publisher: publisher,
		audit:     audit,
		logger:    logger,
	}
}

// Create 登记新任务,初始为 pending 且未锁定
func (s *taskService) Create(ctx context.Context, actor model.Actor, req *CreateTaskRequest) (*model.TaskModel, error) {
	now := time.Now()
	task := &model.TaskModel{
		ID:         uuid.New().String(),
		FileName:   req.FileName,
		FileType:   req.FileType,
		FileSize:   req.FileSize,
		StorageKey: req.StorageKey,
		PreviewURL: req.PreviewURL,
		Status:     model.TaskStatusPending,
		AssignedTo: req.AssignedTo,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", lifecycle.ErrInvalidArgument, err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, lifecycle.StoreError("create task", err)
	}

	metrics.RecordTaskCreated()
	s.record(ctx, actor, "create", task.ID, req)
	if s.publisher != nil {
		s.publisher.Publish(task)
	}
	return task, nil
}

// Upload 上传媒体到对象存储并登记任务
func (s *taskService) Upload(ctx context.Context, actor model.Actor, file *UploadFile) (*model.TaskModel, error) {
	if s.uploader == nil {
		return nil, ErrUploadUnavailable
	}

	obj, err := s.uploader.Upload(ctx, file.Name, file.ContentType, file.Size, file.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to upload media: %w", err)
	}

	return s.Create(ctx, actor, &CreateTaskRequest{
		FileName:   file.Name,
		FileType:   file.ContentType,
		FileSize:   file.Size,
		StorageKey: obj.Key,
		PreviewURL: obj.URL,
	})
}

// Lock 领取任务
func (s *taskService) Lock(ctx context.Context, actor model.Actor, id string) (*model.TaskModel, error) {
	task, err := s.engine.Lock(ctx, id, actor)
	s.observe(ctx, actor, lifecycle.EventLock, id, err, nil)
	return task, err
}

// Unlock 释放任务
func (s *taskService) Unlock(ctx context.Context, actor model.Actor, id string) (*model.TaskModel, error) {
	task, err := s.engine.Release(ctx, id, actor)
	s.observe(ctx, actor, lifecycle.EventRelease, id, err, nil)
	return task, err
}

// Submit 替换标注集合并提交审核
func (s *taskService) Submit(ctx context.Context, actor model.Actor, id string, annotations []json.RawMessage) (*model.TaskModel, []*model.AnnotationModel, error) {
	task, saved, err := s.engine.Submit(ctx, id, actor, annotations)
	s.observe(ctx, actor, lifecycle.EventSubmit, id, err, map[string]interface{}{"annotations": len(annotations)})
	return task, saved, err
}

// Review 审核,decision 为 approved 或 rejected
func (s *taskService) Review(ctx context.Context, actor model.Actor, id string, req *ReviewRequest) (*model.TaskModel, error) {
	var (
		task  *model.TaskModel
		err   error
		event lifecycle.Event
	)
	switch model.TaskStatus(req.Decision) {
	case model.TaskStatusApproved:
		event = lifecycle.EventApprove
		task, err = s.engine.Approve(ctx, id, actor)
	case model.TaskStatusRejected:
		event = lifecycle.EventReject
		task, err = s.engine.Reject(ctx, id, actor, req.Notes)
	default:
		return nil, fmt.Errorf("%w: invalid decision %q", lifecycle.ErrInvalidArgument, req.Decision)
	}

	s.observe(ctx, actor, event, id, err, req)
	return task, err
}

// Override 管理员修改状态
func (s *taskService) Override(ctx context.Context, actor model.Actor, id string, req *OverrideRequest) (*model.TaskModel, error) {
	task, err := s.engine.Override(ctx, id, actor, model.TaskStatus(req.Status), req.Reason)
	s.observe(ctx, actor, lifecycle.EventOverride, id, err, req)
	return task, err
}

// Assign 管理员分配任务
func (s *taskService) Assign(ctx context.Context, actor model.Actor, req *AssignRequest) (*model.TaskModel, error) {
	task, err := s.engine.Assign(ctx, req.TaskID, actor, req.UserID)
	s.observe(ctx, actor, lifecycle.EventAssign, req.TaskID, err, req)
	return task, err
}

// observe 记录转换指标,成功时写审计日志
func (s *taskService) observe(ctx context.Context, actor model.Actor, event lifecycle.Event, taskID string, err error, details interface{}) {
	metrics.RecordTransition(string(event), Outcome(err))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"task_id": taskID,
			"event":   event,
			"actor":   actor.ID,
		}).Info("Task transition rejected")
		return
	}
	s.record(ctx, actor, string(event), taskID, details)
}

// record 审计日志写入失败只记录,不影响已提交的转换
func (s *taskService) record(ctx context.Context, actor model.Actor, action string, taskID string, details interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordAction(ctx, actor, action, "task", taskID, details); err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to record audit log")
	}
}

// Outcome 将错误归类为指标标签
func Outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, lifecycle.ErrLockConflict):
		return "lock_conflict"
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		return "illegal"
	case errors.Is(err, lifecycle.ErrNotFound):
		return "not_found"
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		return "invalid"
	default:
		return "store_unavailable"
	}
}
