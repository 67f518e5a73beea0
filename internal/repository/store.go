package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store 记录存储,聚合任务、标注和状态历史仓储
// Transaction 内的所有操作作为一个整体提交或回滚
type Store interface {
	Tasks() TaskRepository
	Annotations() AnnotationRepository
	History() StateHistoryRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// gormStore 基于 GORM 的存储实现
type gormStore struct {
	db *gorm.DB
}

// NewStore 创建记录存储
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Tasks() TaskRepository {
	return NewTaskRepository(s.db)
}

func (s *gormStore) Annotations() AnnotationRepository {
	return NewAnnotationRepository(s.db)
}

func (s *gormStore) History() StateHistoryRepository {
	return NewStateHistoryRepository(s.db)
}

// Transaction 在数据库事务中执行 fn
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
