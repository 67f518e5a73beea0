package model

import (
	"encoding/json"
	"errors"
	"time"
)

// AnnotationModel 标注数据模型
// 一个任务的标注集合即所有引用该任务的记录,保存时整体替换
type AnnotationModel struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID      string          `gorm:"type:varchar(64);not null;index" json:"taskId"`
	AnnotatorID string          `gorm:"type:varchar(64);not null;index" json:"annotatorId"`
	Data        json.RawMessage `gorm:"type:jsonb;not null" json:"data"` // 图形数据(框、标签、置信度)
	CreatedAt   time.Time       `gorm:"not null" json:"createdAt"`
}

// TableName 指定表名
func (AnnotationModel) TableName() string {
	return "annotations"
}

// Validate 验证标注模型
func (am *AnnotationModel) Validate() error {
	if am.ID == "" {
		return errors.New("annotation ID is required")
	}
	if am.TaskID == "" {
		return errors.New("task ID is required")
	}
	if am.AnnotatorID == "" {
		return errors.New("annotator ID is required")
	}
	if len(am.Data) == 0 || !json.Valid(am.Data) {
		return errors.New("annotation data must be valid JSON")
	}
	return nil
}
