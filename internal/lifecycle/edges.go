package lifecycle

import (
	"fmt"

	"github.com/rithindattag/Annotara/internal/model"
)

// Event 状态机事件
type Event string

const (
	EventLock     Event = "lock"
	EventRelease  Event = "release"
	EventSubmit   Event = "submit"
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventOverride Event = "override"
	EventAssign   Event = "assign"
)

// lockRule 事件对编辑锁的要求
type lockRule int

const (
	lockIgnored   lockRule = iota
	lockFreeOrOwn          // 未锁定或已由调用方持有
	lockHeld               // 必须由调用方持有
)

// edge 状态机的一条边
type edge struct {
	from  []model.TaskStatus // 为空表示任意状态
	roles []model.Role       // 为空表示任意角色
	to    model.TaskStatus   // 为空表示保持当前状态或由请求指定
	lock  lockRule
	// notHolder 调用方未持有锁时返回的错误
	notHolder error
	// retries 条件更新失败后的重试次数
	retries int
}

// edges 转换表,所有角色与前置状态检查集中于此
var edges = map[Event]edge{
	EventLock: {
		from:    []model.TaskStatus{model.TaskStatusPending, model.TaskStatusRejected, model.TaskStatusInProgress},
		roles:   []model.Role{model.RoleAnnotator},
		to:      model.TaskStatusInProgress,
		lock:    lockFreeOrOwn,
		retries: 1,
	},
	EventRelease: {
		lock:      lockHeld,
		notHolder: ErrLockConflict,
	},
	EventSubmit: {
		from:      []model.TaskStatus{model.TaskStatusInProgress},
		roles:     []model.Role{model.RoleAnnotator},
		to:        model.TaskStatusAwaitingReview,
		lock:      lockHeld,
		notHolder: ErrIllegalTransition,
	},
	EventApprove: {
		from:  []model.TaskStatus{model.TaskStatusAwaitingReview},
		roles: []model.Role{model.RoleReviewer, model.RoleAdmin},
		to:    model.TaskStatusApproved,
	},
	EventReject: {
		from:  []model.TaskStatus{model.TaskStatusAwaitingReview},
		roles: []model.Role{model.RoleReviewer, model.RoleAdmin},
		to:    model.TaskStatusRejected,
	},
	EventOverride: {
		roles: []model.Role{model.RoleAdmin},
	},
	EventAssign: {
		roles: []model.Role{model.RoleAdmin},
		to:    model.TaskStatusPending,
	},
}

// check 校验调用方能否对当前任务执行事件
func (e edge) check(event Event, task *model.TaskModel, actor model.Actor) error {
	if len(e.roles) > 0 && !actor.Is(e.roles...) {
		return fmt.Errorf("%w: role %q may not %s", ErrIllegalTransition, actor.Role, event)
	}
	if len(e.from) > 0 && !containsStatus(e.from, task.Status) {
		return fmt.Errorf("%w: cannot %s task in status %s", ErrIllegalTransition, event, task.Status)
	}

	switch e.lock {
	case lockFreeOrOwn:
		if task.LockedBy != nil && *task.LockedBy != actor.ID {
			return fmt.Errorf("%w: task %s is locked by %s", ErrLockConflict, task.ID, *task.LockedBy)
		}
	case lockHeld:
		if !task.IsLockedBy(actor.ID) {
			return fmt.Errorf("%w: %s does not hold the lock on task %s", e.notHolder, actor.ID, task.ID)
		}
	}
	return nil
}

func containsStatus(set []model.TaskStatus, s model.TaskStatus) bool {
	for _, st := range set {
		if st == s {
			return true
		}
	}
	return false
}
