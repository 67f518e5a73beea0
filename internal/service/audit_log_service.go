package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientIPKey  contextKey = "ip"
)

// WithRequestInfo 将请求 ID 和客户端 IP 写入 context,供审计日志使用
func WithRequestInfo(ctx context.Context, requestID string, ip string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetRequestID 从 context 获取请求 ID
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// GetClientIP 从 context 获取客户端 IP
func GetClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey).(string); ok {
		return v
	}
	return ""
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, actor model.Actor, action string, resourceType string, resourceID string, details interface{}) error
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(
	ctx context.Context,
	actor model.Actor,
	action string,
	resourceType string,
	resourceID string,
	details interface{},
) error {
	var detailsJSON []byte
	if details != nil {
		var err error
		if detailsJSON, err = json.Marshal(details); err != nil {
			return err
		}
	}

	auditLog := &model.AuditLogModel{
		ID:           uuid.New().String(),
		ActorID:      actor.ID,
		ActorRole:    string(actor.Role),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    GetRequestID(ctx),
		IP:           GetClientIP(ctx),
		Details:      detailsJSON,
		CreatedAt:    time.Now(),
	}

	return s.auditRepo.Save(ctx, auditLog)
}
