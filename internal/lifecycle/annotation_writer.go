package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/rithindattag/Annotara/internal/repository"
)

// Shape 单个标注图形,内容对状态机不透明
type Shape = json.RawMessage

// AnnotationWriter 标注集合整体替换
type AnnotationWriter struct {
	engine *Engine
}

// Replace 替换任务的标注集合并转入 awaiting_review
// 提交转换、删除旧集合、插入新集合在同一事务内完成,任一步失败全部回滚
func (w *AnnotationWriter) Replace(ctx context.Context, taskID string, actor model.Actor, shapes []Shape) (*model.TaskModel, []*model.AnnotationModel, error) {
	for i, shape := range shapes {
		if len(shape) == 0 || !json.Valid(shape) {
			return nil, nil, fmt.Errorf("%w: annotation %d is not valid JSON", ErrInvalidArgument, i)
		}
	}

	var saved []*model.AnnotationModel
	task, err := w.engine.apply(ctx, taskID, request{
		event: EventSubmit,
		actor: actor,
		changes: func(_ *model.TaskModel, _ time.Time) map[string]interface{} {
			return map[string]interface{}{
				"status":       model.TaskStatusAwaitingReview,
				"locked_by":    nil,
				"locked_at":    nil,
				"reviewed_by":  nil,
				"reviewed_at":  nil,
				"review_notes": nil,
			}
		},
		inTx: func(ctx context.Context, tx repository.Store, now time.Time) error {
			if _, err := tx.Annotations().DeleteByTaskID(ctx, taskID); err != nil {
				return StoreError("delete annotations", err)
			}

			records := make([]*model.AnnotationModel, 0, len(shapes))
			for _, shape := range shapes {
				records = append(records, &model.AnnotationModel{
					ID:          uuid.New().String(),
					TaskID:      taskID,
					AnnotatorID: actor.ID,
					Data:        append(json.RawMessage(nil), shape...),
					CreatedAt:   now,
				})
			}
			if err := tx.Annotations().InsertMany(ctx, records); err != nil {
				return StoreError("insert annotations", err)
			}
			saved = records
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return task, saved, nil
}
