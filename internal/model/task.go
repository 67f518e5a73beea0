package model

import (
	"errors"
	"time"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusInProgress     TaskStatus = "in_progress"
	TaskStatusAwaitingReview TaskStatus = "awaiting_review"
	TaskStatusApproved       TaskStatus = "approved"
	TaskStatusRejected       TaskStatus = "rejected"
)

// TaskStatuses 所有合法的任务状态
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusAwaitingReview,
	TaskStatusApproved,
	TaskStatusRejected,
}

// Valid 判断状态是否为已声明的状态
func (s TaskStatus) Valid() bool {
	for _, st := range TaskStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsReviewed 是否为审核结束状态(approved/rejected)
func (s TaskStatus) IsReviewed() bool {
	return s == TaskStatusApproved || s == TaskStatusRejected
}

// TaskModel 标注任务数据模型,同时作为推送给观察者的完整快照
type TaskModel struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	FileName   string     `gorm:"type:varchar(255);not null" json:"fileName"`
	FileType   string     `gorm:"type:varchar(128);not null" json:"fileType"`
	FileSize   int64      `gorm:"not null" json:"fileSize"`
	StorageKey string     `gorm:"type:varchar(512);not null" json:"storageKey"` // 对象存储 key
	PreviewURL string     `gorm:"type:text" json:"previewUrl,omitempty"`
	Status     TaskStatus `gorm:"type:varchar(32);not null;index" json:"status"`
	AssignedTo *string    `gorm:"type:varchar(64);index" json:"assignedTo"`
	LockedBy   *string    `gorm:"type:varchar(64);index" json:"lockedBy"` // 当前持有编辑锁的用户
	LockedAt   *time.Time `json:"lockedAt"`

	// 审核结果,每次重新提交时清空
	ReviewedBy  *string    `gorm:"type:varchar(64)" json:"reviewedBy"`
	ReviewNotes *string    `gorm:"type:text" json:"reviewNotes"`
	ReviewedAt  *time.Time `json:"reviewedAt"`

	// AI 建议来源,仅供参考
	LastSuggestionModel  *string    `gorm:"type:varchar(128)" json:"lastSuggestionModel"`
	LastSuggestionAt     *time.Time `json:"lastSuggestionAt"`
	LastSuggestionLabels []string   `gorm:"type:text;serializer:json" json:"lastSuggestionLabels"`

	Version   int64     `gorm:"not null;default:0" json:"version"` // 每次状态转换递增
	CreatedBy string    `gorm:"type:varchar(64);index" json:"createdBy,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.FileName == "" {
		return errors.New("file name is required")
	}
	if tm.StorageKey == "" {
		return errors.New("storage key is required")
	}
	if !tm.Status.Valid() {
		return errors.New("task status is invalid")
	}
	if tm.LockedBy != nil && tm.Status != TaskStatusInProgress {
		return errors.New("locked task must be in progress")
	}
	return nil
}

// IsLockedBy 判断任务是否被指定用户锁定
func (tm *TaskModel) IsLockedBy(actorID string) bool {
	return tm.LockedBy != nil && *tm.LockedBy == actorID
}

// HolderID 返回锁持有人,未锁定时为空字符串
func (tm *TaskModel) HolderID() string {
	if tm.LockedBy == nil {
		return ""
	}
	return *tm.LockedBy
}
