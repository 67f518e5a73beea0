package repository

import (
	"context"

	"github.com/rithindattag/Annotara/internal/model"
	"gorm.io/gorm"
)

// AnnotationRepository 标注仓储接口
type AnnotationRepository interface {
	DeleteByTaskID(ctx context.Context, taskID string) (int64, error)
	InsertMany(ctx context.Context, annotations []*model.AnnotationModel) error
	FindByTaskID(ctx context.Context, taskID string) ([]*model.AnnotationModel, error)
	FindAll(ctx context.Context) ([]*model.AnnotationModel, error)
}

// annotationRepository 标注仓储实现
type annotationRepository struct {
	db *gorm.DB
}

// NewAnnotationRepository 创建标注仓储
func NewAnnotationRepository(db *gorm.DB) AnnotationRepository {
	return &annotationRepository{db: db}
}

// DeleteByTaskID 删除任务的全部标注
func (r *annotationRepository) DeleteByTaskID(ctx context.Context, taskID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.AnnotationModel{})
	return result.RowsAffected, result.Error
}

// InsertMany 批量插入标注
func (r *annotationRepository) InsertMany(ctx context.Context, annotations []*model.AnnotationModel) error {
	if len(annotations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&annotations).Error
}

// FindByTaskID 查找任务的标注集合
func (r *annotationRepository) FindByTaskID(ctx context.Context, taskID string) ([]*model.AnnotationModel, error) {
	var annotations []*model.AnnotationModel
	err := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at ASC, id ASC").Find(&annotations).Error
	return annotations, err
}

// FindAll 查找全部标注,用于导出
func (r *annotationRepository) FindAll(ctx context.Context) ([]*model.AnnotationModel, error) {
	var annotations []*model.AnnotationModel
	err := r.db.WithContext(ctx).Order("task_id ASC, created_at ASC").Find(&annotations).Error
	return annotations, err
}
