package lifecycle

import (
	"context"
	"time"

	"github.com/rithindattag/Annotara/internal/model"
)

// LockManager 编辑锁管理
// 锁即任务记录上的 locked_by 字段,不持有任何进程内互斥量
type LockManager struct {
	engine *Engine
}

// Acquire 领取锁
// 未锁定或已由同一用户持有时成功;条件更新失败重试一次,仍失败返回 ErrLockConflict
func (m *LockManager) Acquire(ctx context.Context, taskID string, actor model.Actor) (*model.TaskModel, error) {
	return m.engine.apply(ctx, taskID, request{
		event: EventLock,
		actor: actor,
		changes: func(_ *model.TaskModel, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":    model.TaskStatusInProgress,
				"locked_by": actor.ID,
				"locked_at": now,
			}
		},
	})
}

// Release 释放锁,仅持有人可以释放
func (m *LockManager) Release(ctx context.Context, taskID string, actor model.Actor) (*model.TaskModel, error) {
	return m.engine.apply(ctx, taskID, request{
		event: EventRelease,
		actor: actor,
		changes: func(_ *model.TaskModel, _ time.Time) map[string]interface{} {
			return map[string]interface{}{
				"locked_by": nil,
				"locked_at": nil,
			}
		},
	})
}
