package model

import (
	"errors"
	"time"
)

// StateHistoryModel 任务状态转换历史,与转换在同一事务中写入
type StateHistoryModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID    string    `gorm:"type:varchar(64);not null;index" json:"taskId"`
	Event     string    `gorm:"type:varchar(32);not null" json:"event"`
	FromState string    `gorm:"type:varchar(32)" json:"fromState"`
	ToState   string    `gorm:"type:varchar(32);not null" json:"toState"`
	Operator  string    `gorm:"type:varchar(64);not null" json:"operator"`
	Version   int64     `gorm:"not null" json:"version"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
}

// TableName 指定表名
func (StateHistoryModel) TableName() string {
	return "state_history"
}

// Validate 验证状态历史模型
func (shm *StateHistoryModel) Validate() error {
	if shm.ID == "" {
		return errors.New("history ID is required")
	}
	if shm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if shm.ToState == "" {
		return errors.New("to state is required")
	}
	if shm.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}
