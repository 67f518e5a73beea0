package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rithindattag/Annotara/internal/api"
	"github.com/rithindattag/Annotara/internal/config"
	"github.com/rithindattag/Annotara/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Annotara API server.
The server will listen on the configured host and port, serve the
task, annotation, AI and admin APIs, and push task updates over
WebSocket and server-sent events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		// 2. 初始化日志
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg, configPath, logger)
	},
}

// runServer 启动服务器,ctx 结束时优雅关闭
func runServer(ctx context.Context, cfg *config.Config, configPath string, logger *logrus.Logger) error {
	// 3. 监听配置文件,日志级别支持热更新
	if configPath != "" {
		watcher := config.NewConfigWatcher(cfg, configPath, logger)
		watcher.OnConfigChange(func(newCfg *config.Config) {
			api.SetLogLevel(logger, newCfg.Log.Level)
			logger.WithField("level", newCfg.Log.Level).Info("Config reloaded")
		})
		if err := watcher.Start(); err != nil {
			logger.WithError(err).Warn("Config hot reload disabled")
		} else {
			defer watcher.Stop()
		}
	}

	// 4. 初始化链路追踪
	if cfg.Tracing.Enabled {
		shutdown, err := api.InitTracing(ctx, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.WithError(err).Warn("Failed to flush traces")
			}
		}()
	}

	// 5. 初始化容器
	ctr, err := container.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer ctr.Close()

	// 6. 启动服务器
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           ctr.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// 7. 优雅关闭
	logger.Info("Shutting down server...")
	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
