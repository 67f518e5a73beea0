package model

import (
	"errors"
	"time"
)

// AuditLogModel 审计日志数据模型
type AuditLogModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ActorID      string    `gorm:"type:varchar(64);not null;index" json:"actorId"`
	ActorRole    string    `gorm:"type:varchar(16)" json:"actorRole"`
	Action       string    `gorm:"type:varchar(64);not null;index" json:"action"` // lock/submit/approve/reject/override/...
	ResourceType string    `gorm:"type:varchar(32);not null" json:"resourceType"` // task/annotation
	ResourceID   string    `gorm:"type:varchar(64);not null;index" json:"resourceId"`
	RequestID    string    `gorm:"type:varchar(64);index" json:"requestId,omitempty"`
	IP           string    `gorm:"type:varchar(45)" json:"ip,omitempty"`
	Details      []byte    `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index" json:"createdAt"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	if alm.ID == "" {
		return errors.New("audit log ID is required")
	}
	if alm.ActorID == "" {
		return errors.New("actor ID is required")
	}
	if alm.Action == "" {
		return errors.New("action is required")
	}
	if alm.ResourceType == "" || alm.ResourceID == "" {
		return errors.New("resource is required")
	}
	return nil
}
