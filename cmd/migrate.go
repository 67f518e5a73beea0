package cmd

import (
	"fmt"

	"github.com/rithindattag/Annotara/internal/api"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run database migrations to create or update database schema.
This command will:
- Create the task, annotation, state history and audit log tables
- Create indexes for the task list and history queries

The command uses the database configuration from the config file or environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return runMigrate(cfg, logger)
	},
}

// runMigrate 连接数据库并执行迁移
func runMigrate(cfg *config.Config, logger logrus.FieldLogger) error {
	// 2. 连接数据库
	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"target": migrateTarget(cfg.Database),
	}).Info("Connecting to database")
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}()

	// 3. 执行迁移
	logger.Info("Running database migrations...")
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// migrateTarget 日志中展示的数据库地址,不包含密码
func migrateTarget(cfg config.DatabaseConfig) string {
	if cfg.Driver == "sqlite" {
		return cfg.Path
	}
	return fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.DBName)
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
