package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 从配置读取连接池参数,未设置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime <= 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// dialector 根据驱动选择 gorm dialector
func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		return postgres.Open(BuildDSN(cfg)), nil
	case "sqlite":
		// 启用外键和 WAL,写操作等待锁而不是立即失败
		return sqlite.Open(cfg.Path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// SQLite 单写者,避免 database is locked
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接,重试间隔指数退避
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration, log logrus.FieldLogger) (*gorm.DB, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			if err = ping(ctx, db); err == nil {
				return db, nil
			}
			_ = Close(db)
		}

		if i == maxRetries-1 {
			break
		}
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": i + 1,
			"wait":    retryInterval.String(),
		}).Warn("Database not ready, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
		retryInterval *= 2
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.TaskModel{},
		&model.AnnotationModel{},
		&model.StateHistoryModel{},
		&model.AuditLogModel{},
	); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// CreateIndexes 创建单列索引之外的组合索引
func CreateIndexes(db *gorm.DB) error {
	statements := []struct {
		name string
		sql  string
	}{
		// 标注员列表: 分配给自己或未分配的任务
		{"idx_tasks_assigned_status", "CREATE INDEX IF NOT EXISTS idx_tasks_assigned_status ON tasks(assigned_to, status)"},
		{"idx_tasks_status_created", "CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at)"},
		// 只索引已锁定的任务
		{"idx_tasks_locked", "CREATE INDEX IF NOT EXISTS idx_tasks_locked ON tasks(locked_by) WHERE locked_by IS NOT NULL"},
		{"idx_history_task_version", "CREATE INDEX IF NOT EXISTS idx_history_task_version ON state_history(task_id, version)"},
		{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	}

	if db.Dialector.Name() == "postgres" {
		statements = append(statements, struct {
			name string
			sql  string
		}{"idx_annotations_data_gin", "CREATE INDEX IF NOT EXISTS idx_annotations_data_gin ON annotations USING GIN (data)"})
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt.sql).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ping(ctx, db)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
