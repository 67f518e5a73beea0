package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
	"github.com/sirupsen/logrus"
)

// Publisher 接收每次成功转换后的任务快照,不得阻塞调用方
type Publisher interface {
	Publish(task *model.TaskModel)
}

// request 一次转换请求
type request struct {
	event  Event
	actor  model.Actor
	target model.TaskStatus // 仅 override 使用
	reason string
	// changes 根据当前快照计算需要写入的字段
	changes func(cur *model.TaskModel, now time.Time) map[string]interface{}
	// inTx 在条件更新命中后、同一事务内执行
	inTx func(ctx context.Context, tx repository.Store, now time.Time) error
}

// Engine 任务状态机
// 每次转换是一条带期望值的条件更新,期望值为读取时观察到的 status/locked_by/version
type Engine struct {
	store     repository.Store
	publisher Publisher
	logger    logrus.FieldLogger
	now       func() time.Time

	locks       *LockManager
	annotations *AnnotationWriter
}

// NewEngine 创建状态机
func NewEngine(store repository.Store, publisher Publisher, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{
		store:     store,
		publisher: publisher,
		logger:    logger.WithField("component", "lifecycle"),
		now:       time.Now,
	}
	e.locks = &LockManager{engine: e}
	e.annotations = &AnnotationWriter{engine: e}
	return e
}

// Locks 返回锁管理器
func (e *Engine) Locks() *LockManager {
	return e.locks
}

// Annotations 返回标注写入器
func (e *Engine) Annotations() *AnnotationWriter {
	return e.annotations
}

// Lock 领取任务编辑锁
func (e *Engine) Lock(ctx context.Context, taskID string, actor model.Actor) (*model.TaskModel, error) {
	return e.locks.Acquire(ctx, taskID, actor)
}

// Release 释放任务编辑锁
func (e *Engine) Release(ctx context.Context, taskID string, actor model.Actor) (*model.TaskModel, error) {
	return e.locks.Release(ctx, taskID, actor)
}

// Submit 替换标注集合并提交审核
func (e *Engine) Submit(ctx context.Context, taskID string, actor model.Actor, shapes []Shape) (*model.TaskModel, []*model.AnnotationModel, error) {
	return e.annotations.Replace(ctx, taskID, actor, shapes)
}

// Approve 审核通过
func (e *Engine) Approve(ctx context.Context, taskID string, actor model.Actor) (*model.TaskModel, error) {
	return e.apply(ctx, taskID, request{
		event: EventApprove,
		actor: actor,
		changes: func(_ *model.TaskModel, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":       model.TaskStatusApproved,
				"reviewed_by":  actor.ID,
				"reviewed_at":  now,
				"review_notes": nil,
			}
		},
	})
}

// Reject 审核驳回,notes 在下一次提交前保持可见
func (e *Engine) Reject(ctx context.Context, taskID string, actor model.Actor, notes string) (*model.TaskModel, error) {
	return e.apply(ctx, taskID, request{
		event:  EventReject,
		actor:  actor,
		reason: notes,
		changes: func(_ *model.TaskModel, now time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":       model.TaskStatusRejected,
				"reviewed_by":  actor.ID,
				"reviewed_at":  now,
				"review_notes": optionalString(notes),
			}
		},
	})
}

// Override 管理员强制修改状态,用于故障恢复
// 目标状态不是 in_progress 时清除锁;目标状态不是 approved/rejected 时清除审核字段
func (e *Engine) Override(ctx context.Context, taskID string, actor model.Actor, target model.TaskStatus, reason string) (*model.TaskModel, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, target)
	}
	return e.apply(ctx, taskID, request{
		event:  EventOverride,
		actor:  actor,
		target: target,
		reason: reason,
		changes: func(_ *model.TaskModel, now time.Time) map[string]interface{} {
			fields := map[string]interface{}{"status": target}
			if target != model.TaskStatusInProgress {
				fields["locked_by"] = nil
				fields["locked_at"] = nil
			}
			switch target {
			case model.TaskStatusApproved:
				fields["reviewed_by"] = actor.ID
				fields["reviewed_at"] = now
				fields["review_notes"] = nil
			case model.TaskStatusRejected:
				fields["reviewed_by"] = actor.ID
				fields["reviewed_at"] = now
				if reason != "" {
					fields["review_notes"] = reason
				}
			default:
				fields["reviewed_by"] = nil
				fields["reviewed_at"] = nil
				fields["review_notes"] = nil
			}
			return fields
		},
	})
}

// Assign 管理员分配任务,任务回到 pending
func (e *Engine) Assign(ctx context.Context, taskID string, actor model.Actor, assignee string) (*model.TaskModel, error) {
	if assignee == "" {
		return nil, fmt.Errorf("%w: assignee is required", ErrInvalidArgument)
	}
	return e.apply(ctx, taskID, request{
		event:  EventAssign,
		actor:  actor,
		reason: "assigned to " + assignee,
		changes: func(_ *model.TaskModel, _ time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":       model.TaskStatusPending,
				"assigned_to":  assignee,
				"locked_by":    nil,
				"locked_at":    nil,
				"reviewed_by":  nil,
				"reviewed_at":  nil,
				"review_notes": nil,
			}
		},
	})
}

// apply 执行一次转换
// 1. 读取当前快照并校验边 2. 事务内条件更新 3. 提交后发布快照
func (e *Engine) apply(ctx context.Context, taskID string, req request) (*model.TaskModel, error) {
	rule, ok := edges[req.event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, req.event)
	}

	var snapshot *model.TaskModel
	for attempt := 0; ; attempt++ {
		cur, err := e.store.Tasks().FindByID(ctx, taskID)
		if err != nil {
			return nil, StoreError("load task", err)
		}
		if err := rule.check(req.event, cur, req.actor); err != nil {
			return nil, err
		}

		snapshot, err = e.commit(ctx, cur, req)
		if err == nil {
			break
		}
		if !errors.Is(err, errLostRace) {
			return nil, err
		}
		if attempt >= rule.retries {
			return nil, e.lostRace(ctx, taskID, rule, req)
		}
		e.logger.WithFields(logrus.Fields{
			"task_id": taskID,
			"event":   req.event,
			"actor":   req.actor.ID,
		}).Debug("Conditional update lost race, retrying")
	}

	e.logger.WithFields(logrus.Fields{
		"task_id": taskID,
		"event":   req.event,
		"actor":   req.actor.ID,
		"status":  snapshot.Status,
		"version": snapshot.Version,
	}).Info("Task transition applied")

	if e.publisher != nil {
		e.publisher.Publish(snapshot)
	}
	return snapshot, nil
}

// commit 在单个事务中完成条件更新、附加写入和状态历史
func (e *Engine) commit(ctx context.Context, cur *model.TaskModel, req request) (*model.TaskModel, error) {
	now := e.now()
	var snapshot *model.TaskModel

	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		fields := req.changes(cur, now)
		fields["updated_at"] = now

		expect := repository.Expectation{
			Status:   cur.Status,
			LockedBy: cur.LockedBy,
			Version:  cur.Version,
		}
		applied, err := tx.Tasks().ConditionalUpdate(ctx, cur.ID, expect, fields)
		if err != nil {
			return StoreError("update task", err)
		}
		if !applied {
			return errLostRace
		}

		if req.inTx != nil {
			if err := req.inTx(ctx, tx, now); err != nil {
				return err
			}
		}

		updated, err := tx.Tasks().FindByID(ctx, cur.ID)
		if err != nil {
			return StoreError("reload task", err)
		}

		history := &model.StateHistoryModel{
			ID:        uuid.New().String(),
			TaskID:    cur.ID,
			Event:     string(req.event),
			FromState: string(cur.Status),
			ToState:   string(updated.Status),
			Operator:  req.actor.ID,
			Version:   updated.Version,
			Reason:    req.reason,
			CreatedAt: now,
		}
		if err := tx.History().Save(ctx, history); err != nil {
			return StoreError("save state history", err)
		}

		snapshot = updated
		return nil
	})
	if err != nil {
		return nil, StoreError("commit transition", err)
	}
	return snapshot, nil
}

// lostRace 重新读取任务,判断失败原因
func (e *Engine) lostRace(ctx context.Context, taskID string, rule edge, req request) error {
	cur, err := e.store.Tasks().FindByID(ctx, taskID)
	if err != nil {
		return StoreError("reload task", err)
	}
	if err := rule.check(req.event, cur, req.actor); err != nil {
		return err
	}
	if req.event == EventLock {
		return fmt.Errorf("%w: task %s was modified concurrently", ErrLockConflict, taskID)
	}
	return fmt.Errorf("%w: task %s was modified concurrently, refetch and retry", ErrIllegalTransition, taskID)
}

func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
